// Package firestorestore backs docstore with Cloud Firestore, the store the
// production deployment runs on. Sentinels map onto the native server
// timestamp and array-union transforms, so documents written here are
// byte-compatible with the existing web clients.
package firestorestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"pulsechat-core/internal/docstore"
)

// Store implements docstore.Store on a Firestore client.
type Store struct {
	client *firestore.Client
	log    *zap.Logger
}

// Config holds Firestore connection settings.
type Config struct {
	ProjectID       string
	CredentialsPath string // optional; ADC is used when empty
}

// New initializes the Firebase app and opens a Firestore client.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open firestore client: %w", err)
	}

	return &Store{client: client, log: log}, nil
}

// Set merge-upserts fields into col/id.
func (s *Store) Set(ctx context.Context, col, id string, fields map[string]any) error {
	_, err := s.client.Collection(col).Doc(id).Set(ctx, translate(fields), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", col, id, err)
	}
	return nil
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, col, id string) (docstore.Document, error) {
	snap, err := s.client.Collection(col).Doc(id).Get(ctx)
	if snap != nil && !snap.Exists() {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("firestore get %s/%s: %w", col, id, err)
	}
	return toDocument(snap), nil
}

// Add appends a new document with a Firestore-generated id.
func (s *Store) Add(ctx context.Context, col string, fields map[string]any) (string, error) {
	ref, _, err := s.client.Collection(col).Add(ctx, translate(fields))
	if err != nil {
		return "", fmt.Errorf("firestore add %s: %w", col, err)
	}
	return ref.ID, nil
}

// WatchDoc streams changes of a single document until unsubscribed.
func (s *Store) WatchDoc(ctx context.Context, col, id string, fn func(docstore.Document)) (docstore.Unsubscribe, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	iter := s.client.Collection(col).Doc(id).Snapshots(watchCtx)

	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if watchCtx.Err() == nil {
					s.log.Warn("firestore document watch terminated",
						zap.String("collection", col),
						zap.String("doc", id),
						zap.Error(err))
				}
				return
			}
			if !snap.Exists() {
				continue
			}
			fn(toDocument(snap))
		}
	}()

	return asUnsubscribe(cancel), nil
}

// WatchCollection streams added/modified/removed changes of a collection.
func (s *Store) WatchCollection(ctx context.Context, col string, fn func(docstore.Change)) (docstore.Unsubscribe, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	iter := s.client.Collection(col).Snapshots(watchCtx)

	go func() {
		defer iter.Stop()
		for {
			qsnap, err := iter.Next()
			if err != nil {
				if watchCtx.Err() == nil {
					s.log.Warn("firestore collection watch terminated",
						zap.String("collection", col),
						zap.Error(err))
				}
				return
			}
			for _, change := range qsnap.Changes {
				kind := docstore.ChangeModified
				switch change.Kind {
				case firestore.DocumentAdded:
					kind = docstore.ChangeAdded
				case firestore.DocumentRemoved:
					kind = docstore.ChangeRemoved
				}
				fn(docstore.Change{Kind: kind, Doc: toDocument(change.Doc)})
			}
		}
	}()

	return asUnsubscribe(cancel), nil
}

// Close releases the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

// translate rewrites docstore sentinels into Firestore transforms.
func translate(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch {
		case docstore.IsServerTimestamp(v):
			out[k] = firestore.ServerTimestamp
		default:
			if elems, ok := docstore.AsArrayUnion(v); ok {
				out[k] = firestore.ArrayUnion(elems...)
				continue
			}
			out[k] = v
		}
	}
	return out
}

func toDocument(snap *firestore.DocumentSnapshot) docstore.Document {
	return docstore.Document{
		ID:         snap.Ref.ID,
		Fields:     snap.Data(),
		UpdateTime: snap.UpdateTime,
	}
}

// asUnsubscribe wraps a context cancel as an Unsubscribe.
func asUnsubscribe(cancel context.CancelFunc) docstore.Unsubscribe {
	return func() { cancel() }
}
