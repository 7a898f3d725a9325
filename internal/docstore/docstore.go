// Package docstore defines the document-database capability the presence
// and signaling layers are built on: merge-upsert, single reads, appends,
// and realtime subscriptions on documents and collections.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// ChangeKind classifies an entry in a collection change feed.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

// Document is one stored document with its backend-assigned update time.
type Document struct {
	ID         string
	Fields     map[string]any
	UpdateTime time.Time
}

// Change is one entry of a collection change feed.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// Unsubscribe cancels a live subscription. Safe to call more than once.
type Unsubscribe func()

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a field to be replaced with a server-assigned
// timestamp at write time. Readers must prefer these over client clocks.
var ServerTimestamp serverTimestamp

// arrayUnion is the sentinel type produced by ArrayUnion.
type arrayUnion struct{ Elems []any }

// ArrayUnion marks a field to be treated as an append-only array: the given
// elements are added to whatever the document already holds.
func ArrayUnion(elems ...any) any {
	return arrayUnion{Elems: elems}
}

// IsServerTimestamp reports whether v is the server-timestamp sentinel.
// Backends use it when translating field maps to their native sentinels.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// AsArrayUnion returns the elements of an array-union sentinel, if v is one.
func AsArrayUnion(v any) ([]any, bool) {
	u, ok := v.(arrayUnion)
	if !ok {
		return nil, false
	}
	return u.Elems, true
}

// Store is the document database capability. Collection paths may be
// slash-nested to address subcollections ("calls/<id>/offerCandidates").
type Store interface {
	// Set merge-upserts fields into col/id. Fields may carry the
	// ServerTimestamp and ArrayUnion sentinels.
	Set(ctx context.Context, col, id string, fields map[string]any) error

	// Get reads a single document. Returns ErrNotFound when absent.
	Get(ctx context.Context, col, id string) (Document, error)

	// Add appends a new document with a generated id and returns the id.
	Add(ctx context.Context, col string, fields map[string]any) (string, error)

	// WatchDoc invokes fn for the current state of col/id and on every
	// subsequent change until unsubscribed.
	WatchDoc(ctx context.Context, col, id string, fn func(Document)) (Unsubscribe, error)

	// WatchCollection invokes fn once per added document already present,
	// then for every add/modify/remove until unsubscribed. Each change is
	// delivered exactly once; arrival order across writers is unspecified.
	WatchCollection(ctx context.Context, col string, fn func(Change)) (Unsubscribe, error)

	// Close releases backend resources.
	Close() error
}
