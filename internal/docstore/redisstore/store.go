// Package redisstore backs docstore with Redis: one JSON document per key,
// a set per collection for membership, and a pub/sub channel per collection
// carrying change envelopes to subscribers.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pulsechat-core/internal/docstore"
)

// Store implements docstore.Store on a Redis client.
type Store struct {
	client *redis.Client
	log    *zap.Logger

	// Documents live until reaped by housekeeping; a generous TTL keeps
	// abandoned sessions from accumulating forever.
	ttl time.Duration
}

// envelope is the pub/sub wire format for one change.
type envelope struct {
	Kind       string         `json:"kind"` // added | modified
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Fields     map[string]any `json:"fields"`
	UpdateTime time.Time      `json:"updateTime"`
}

// New opens a Redis-backed store.
func New(client *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, log: log, ttl: ttl}
}

func docKey(col, id string) string  { return "doc:" + col + ":" + id }
func memberKey(col string) string   { return "col:" + col }
func channelName(col string) string { return "docs:" + col }

// Set merge-upserts fields into col/id and publishes the change.
// The read-merge-write is not transactional; the last writer of a field
// wins, which matches the merge-upsert contract of the hosted backends.
func (s *Store) Set(ctx context.Context, col, id string, fields map[string]any) error {
	now := time.Now().UTC()

	current := make(map[string]any)
	raw, err := s.client.Get(ctx, docKey(col, id)).Result()
	switch {
	case err == redis.Nil:
		// first write
	case err != nil:
		return fmt.Errorf("redis get %s/%s: %w", col, id, err)
	default:
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("redis decode %s/%s: %w", col, id, err)
		}
	}

	for k, v := range fields {
		switch {
		case docstore.IsServerTimestamp(v):
			current[k] = now
		default:
			if elems, ok := docstore.AsArrayUnion(v); ok {
				arr, _ := current[k].([]any)
				current[k] = unionInto(arr, elems)
				continue
			}
			current[k] = v
		}
	}
	current["_updatedAt"] = now

	encoded, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("redis encode %s/%s: %w", col, id, err)
	}

	if err := s.client.Set(ctx, docKey(col, id), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", col, id, err)
	}

	added, err := s.client.SAdd(ctx, memberKey(col), id).Result()
	if err != nil {
		return fmt.Errorf("redis sadd %s: %w", col, err)
	}

	kind := "modified"
	if added > 0 {
		kind = "added"
	}
	payload, _ := json.Marshal(envelope{
		Kind:       kind,
		Collection: col,
		ID:         id,
		Fields:     current,
		UpdateTime: now,
	})
	if err := s.client.Publish(ctx, channelName(col), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", col, err)
	}
	return nil
}

// unionInto appends elems to arr, skipping elements the array already
// holds so a retried write cannot duplicate entries. Stored elements have
// been through a JSON round trip while new ones have not, so equality is
// checked on the canonical JSON encoding rather than the Go values.
func unionInto(arr []any, elems []any) []any {
	seen := make(map[string]bool, len(arr)+len(elems))
	for _, v := range arr {
		seen[canonical(v)] = true
	}
	for _, e := range elems {
		key := canonical(e)
		if seen[key] {
			continue
		}
		seen[key] = true
		arr = append(arr, e)
	}
	return arr
}

func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, col, id string) (docstore.Document, error) {
	raw, err := s.client.Get(ctx, docKey(col, id)).Result()
	if err == redis.Nil {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("redis get %s/%s: %w", col, id, err)
	}
	return decodeDocument(id, []byte(raw))
}

// Add appends a new document under a generated id.
func (s *Store) Add(ctx context.Context, col string, fields map[string]any) (string, error) {
	id := newID()
	if err := s.Set(ctx, col, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// WatchDoc streams changes for one document. The current state, if any,
// is delivered first.
func (s *Store) WatchDoc(ctx context.Context, col, id string, fn func(docstore.Document)) (docstore.Unsubscribe, error) {
	return s.watch(ctx, col, func(env envelope) {
		if env.ID != id {
			return
		}
		fn(envelopeDocument(env))
	}, func(deliver func(envelope)) {
		doc, err := s.Get(ctx, col, id)
		if err != nil {
			return
		}
		deliver(envelope{Kind: "added", Collection: col, ID: id, Fields: doc.Fields, UpdateTime: doc.UpdateTime})
	})
}

// WatchCollection streams changes for a whole collection. Documents already
// present are delivered as added changes first; a later pub/sub "added" for
// an id already seen is downgraded to modified so adds stay exactly-once.
func (s *Store) WatchCollection(ctx context.Context, col string, fn func(docstore.Change)) (docstore.Unsubscribe, error) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	deliver := func(env envelope) {
		mu.Lock()
		kind := docstore.ChangeModified
		if env.Kind == "added" && !seen[env.ID] {
			kind = docstore.ChangeAdded
		}
		seen[env.ID] = true
		mu.Unlock()
		fn(docstore.Change{Kind: kind, Doc: envelopeDocument(env)})
	}

	return s.watch(ctx, col, deliver, func(emit func(envelope)) {
		ids, err := s.client.SMembers(ctx, memberKey(col)).Result()
		if err != nil {
			s.log.Warn("redis collection scan failed", zap.String("collection", col), zap.Error(err))
			return
		}
		for _, id := range ids {
			doc, err := s.Get(ctx, col, id)
			if err != nil {
				continue // expired doc still in the membership set
			}
			emit(envelope{Kind: "added", Collection: col, ID: id, Fields: doc.Fields, UpdateTime: doc.UpdateTime})
		}
	})
}

// watch subscribes to the collection channel, replays initial state via
// scan, then pumps live envelopes. Events arriving during the scan are
// buffered so nothing is lost or delivered twice out of order.
func (s *Store) watch(ctx context.Context, col string, deliver func(envelope), scan func(emit func(envelope))) (docstore.Unsubscribe, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	pubsub := s.client.Subscribe(watchCtx, channelName(col))

	// Force the subscription to be established before scanning, so no
	// write between scan and subscribe can be missed.
	if _, err := pubsub.Receive(watchCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", col, err)
	}

	var mu sync.Mutex
	var buffered []envelope
	scanning := true

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					s.log.Warn("redis change envelope decode failed", zap.String("collection", col), zap.Error(err))
					continue
				}
				mu.Lock()
				if scanning {
					buffered = append(buffered, env)
					mu.Unlock()
					continue
				}
				mu.Unlock()
				deliver(env)
			}
		}
	}()

	scan(deliver)

	mu.Lock()
	pending := buffered
	buffered = nil
	scanning = false
	mu.Unlock()
	for _, env := range pending {
		deliver(env)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
		})
	}, nil
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func newID() string { return uuid.NewString() }

func decodeDocument(id string, raw []byte) (docstore.Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return docstore.Document{}, fmt.Errorf("redis decode %s: %w", id, err)
	}
	doc := docstore.Document{ID: id, Fields: fields}
	if stamp, ok := fields["_updatedAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, stamp); err == nil {
			doc.UpdateTime = t
		}
	}
	delete(fields, "_updatedAt")
	return doc, nil
}

func envelopeDocument(env envelope) docstore.Document {
	fields := env.Fields
	if fields != nil {
		delete(fields, "_updatedAt")
	}
	return docstore.Document{ID: env.ID, Fields: fields, UpdateTime: env.UpdateTime}
}
