// Package memory is an in-process docstore backend. It backs the test
// suites and local single-node development; change fan-out is synchronous,
// so a write has been delivered to every subscriber by the time Set returns.
package memory

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulsechat-core/internal/docstore"
)

// Store implements docstore.Store with mutex-guarded maps.
type Store struct {
	mu sync.Mutex

	// col -> id -> fields
	docs  map[string]map[string]map[string]any
	times map[string]map[string]time.Time

	nextSub     int
	docWatchers map[string]map[int]func(docstore.Document) // col/id key
	colWatchers map[string]map[int]func(docstore.Change)

	// now is swappable so tests can pin server-assigned timestamps.
	now func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		docs:        make(map[string]map[string]map[string]any),
		times:       make(map[string]map[string]time.Time),
		docWatchers: make(map[string]map[int]func(docstore.Document)),
		colWatchers: make(map[string]map[int]func(docstore.Change)),
		now:         time.Now,
	}
}

// SetClock overrides the server clock used for timestamp sentinels.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Set merge-upserts fields into col/id and fans the change out.
func (s *Store) Set(ctx context.Context, col, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	existed := s.docs[col] != nil && s.docs[col][id] != nil
	if s.docs[col] == nil {
		s.docs[col] = make(map[string]map[string]any)
		s.times[col] = make(map[string]time.Time)
	}
	if s.docs[col][id] == nil {
		s.docs[col][id] = make(map[string]any)
	}

	doc := s.docs[col][id]
	stamp := s.now()
	for k, v := range fields {
		switch {
		case docstore.IsServerTimestamp(v):
			doc[k] = stamp
		default:
			if elems, ok := docstore.AsArrayUnion(v); ok {
				doc[k] = unionInto(doc[k], elems)
				continue
			}
			doc[k] = v
		}
	}
	s.times[col][id] = stamp

	snapshot := s.snapshotLocked(col, id)
	docSubs := subscribersOf(s.docWatchers[col+"/"+id])
	colSubs := subscribersOfChange(s.colWatchers[col])
	s.mu.Unlock()

	for _, fn := range docSubs {
		fn(snapshot)
	}
	kind := docstore.ChangeModified
	if !existed {
		kind = docstore.ChangeAdded
	}
	for _, fn := range colSubs {
		fn(docstore.Change{Kind: kind, Doc: snapshot})
	}
	return nil
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, col, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[col] == nil || s.docs[col][id] == nil {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return s.snapshotLocked(col, id), nil
}

// Add appends a new document with a generated id.
func (s *Store) Add(ctx context.Context, col string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, col, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// WatchDoc subscribes to a single document. The current state, if any,
// is delivered before WatchDoc returns.
func (s *Store) WatchDoc(ctx context.Context, col, id string, fn func(docstore.Document)) (docstore.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := col + "/" + id
	s.mu.Lock()
	if s.docWatchers[key] == nil {
		s.docWatchers[key] = make(map[int]func(docstore.Document))
	}
	sub := s.nextSub
	s.nextSub++
	s.docWatchers[key][sub] = fn

	var current *docstore.Document
	if s.docs[col] != nil && s.docs[col][id] != nil {
		snapshot := s.snapshotLocked(col, id)
		current = &snapshot
	}
	s.mu.Unlock()

	if current != nil {
		fn(*current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.docWatchers[key], sub)
			s.mu.Unlock()
		})
	}, nil
}

// WatchCollection subscribes to a whole collection. Documents already
// present are delivered as added changes before WatchCollection returns.
func (s *Store) WatchCollection(ctx context.Context, col string, fn func(docstore.Change)) (docstore.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.colWatchers[col] == nil {
		s.colWatchers[col] = make(map[int]func(docstore.Change))
	}
	sub := s.nextSub
	s.nextSub++
	s.colWatchers[col][sub] = fn

	initial := make([]docstore.Document, 0, len(s.docs[col]))
	for id := range s.docs[col] {
		initial = append(initial, s.snapshotLocked(col, id))
	}
	s.mu.Unlock()

	for _, doc := range initial {
		fn(docstore.Change{Kind: docstore.ChangeAdded, Doc: doc})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.colWatchers[col], sub)
			s.mu.Unlock()
		})
	}, nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }

func (s *Store) snapshotLocked(col, id string) docstore.Document {
	src := s.docs[col][id]
	fields := make(map[string]any, len(src))
	for k, v := range src {
		fields[k] = v
	}
	return docstore.Document{ID: id, Fields: fields, UpdateTime: s.times[col][id]}
}

// unionInto appends elems to an existing []any, skipping deep-equal
// duplicates, matching array-union semantics of the hosted backends.
func unionInto(existing any, elems []any) []any {
	arr, _ := existing.([]any)
	for _, e := range elems {
		dup := false
		for _, have := range arr {
			if reflect.DeepEqual(have, e) {
				dup = true
				break
			}
		}
		if !dup {
			arr = append(arr, e)
		}
	}
	return arr
}

func subscribersOf(m map[int]func(docstore.Document)) []func(docstore.Document) {
	out := make([]func(docstore.Document), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}

func subscribersOfChange(m map[int]func(docstore.Change)) []func(docstore.Change) {
	out := make([]func(docstore.Change), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
