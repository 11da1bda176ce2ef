// Package store is the document store adapter: read-by-id, collection
// reads, realtime change subscriptions and atomic multi-document batch
// writes over named collections and per-document subcollections.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Top-level collections.
const (
	Users   = "users"
	Tweets  = "tweets"
	Handles = "handles"
)

// Per-document subcollections.
const (
	SubFollowers = "followers"
	SubFollowing = "following"
	SubLikes     = "likes"
	SubRetweets  = "retweets"
	SubBookmarks = "bookmarks"
	SubReplies   = "replies"
	SubQuotes    = "quotes"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	// Callers on parent/author resolution paths treat it as data, not as
	// a failure.
	ErrNotFound = errors.New("store: document not found")

	// ErrPreconditionFailed is returned by Apply when a batch precondition
	// does not hold; none of the batch's operations are applied.
	ErrPreconditionFailed = errors.New("store: batch precondition failed")

	// ErrChunkTooLarge is returned by FindByIDs when the id set exceeds
	// the store's membership-query cap.
	ErrChunkTooLarge = errors.New("store: id set exceeds query cap")
)

// Doc is a raw document: its id, full path and decoded field map.
type Doc struct {
	ID   string
	Path string
	Data map[string]any
}

// Decode unmarshals the document's fields into out via bson tags. The
// document id is injected as _id so struct id fields populate.
func (d Doc) Decode(out any) error {
	m := make(map[string]any, len(d.Data)+1)
	for k, v := range d.Data {
		m[k] = v
	}
	m["_id"] = d.ID
	raw, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

// Encode converts a tagged struct into a field map suitable for Batch.Set.
// The _id field is stripped; document identity lives in the path.
func Encode(v any) (map[string]any, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	return m, nil
}

// EventType classifies a change stream event.
type EventType int

const (
	EventAdded EventType = iota
	EventModified
	EventRemoved
)

// Event is one update delivered on a subscription. Within one subscription
// events arrive in the order the store applied the writes; no ordering is
// guaranteed across independent subscriptions.
type Event struct {
	Type EventType
	Doc  Doc
}

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the document store contract. Apply is atomic: either every
// operation in the batch commits or none do.
type Store interface {
	Get(ctx context.Context, path string) (Doc, error)
	List(ctx context.Context, path string) ([]Doc, error)
	// ListPage reads one cursor page of a top-level collection ordered by
	// id, starting after afterID (empty for the first page).
	ListPage(ctx context.Context, collection, afterID string, limit int) ([]Doc, error)
	// FindByIDs resolves up to ChunkSize ids in one membership query.
	// Missing ids are simply absent from the result.
	FindByIDs(ctx context.Context, collection string, ids []string) ([]Doc, error)
	Apply(ctx context.Context, b *Batch) error
	Subscribe(ctx context.Context, path string, fn func(Event)) (CancelFunc, error)
	// ChunkSize is the membership-query cap honored by FindByIDs.
	ChunkSize() int
}

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
	opIncrement
)

type operation struct {
	kind  opKind
	path  string
	data  map[string]any
	field string
	delta int64
}

type precondKind int

const (
	expectExists precondKind = iota
	expectAbsent
)

type precondition struct {
	kind precondKind
	path string
}

// Batch is an atomic collection of write operations with optional
// existence preconditions. Preconditions are evaluated transactionally:
// a batch whose precondition fails applies nothing and Apply returns
// ErrPreconditionFailed.
type Batch struct {
	ops      []operation
	preconds []precondition
}

func NewBatch() *Batch { return &Batch{} }

// Set creates or fully replaces the document at path.
func (b *Batch) Set(path string, data map[string]any) *Batch {
	b.ops = append(b.ops, operation{kind: opSet, path: path, data: data})
	return b
}

// Update merges fields into the document at path. Missing documents are
// skipped silently.
func (b *Batch) Update(path string, fields map[string]any) *Batch {
	b.ops = append(b.ops, operation{kind: opUpdate, path: path, data: fields})
	return b
}

// Delete removes the document at path. Deleting a missing document is not
// an error.
func (b *Batch) Delete(path string) *Batch {
	b.ops = append(b.ops, operation{kind: opDelete, path: path})
	return b
}

// Increment adds delta to a numeric field of the document at path. An
// increment against a nonexistent document is skipped silently, never
// fatal: the target may have been deleted concurrently.
func (b *Batch) Increment(path, field string, delta int64) *Batch {
	b.ops = append(b.ops, operation{kind: opIncrement, path: path, field: field, delta: delta})
	return b
}

// ExpectExists makes the batch conditional on the document at path
// existing at commit time.
func (b *Batch) ExpectExists(path string) *Batch {
	b.preconds = append(b.preconds, precondition{kind: expectExists, path: path})
	return b
}

// ExpectAbsent makes the batch conditional on the document at path not
// existing at commit time.
func (b *Batch) ExpectAbsent(path string) *Batch {
	b.preconds = append(b.preconds, precondition{kind: expectAbsent, path: path})
	return b
}

// Len returns the number of write operations in the batch.
func (b *Batch) Len() int { return len(b.ops) }

// DocPath builds the path of a top-level document.
func DocPath(collection, id string) string {
	return collection + "/" + id
}

// SubCollection builds the path of a subcollection under a document.
func SubCollection(collection, id, sub string) string {
	return collection + "/" + id + "/" + sub
}

// SubDoc builds the path of a document inside a subcollection.
func SubDoc(collection, id, sub, childID string) string {
	return collection + "/" + id + "/" + sub + "/" + childID
}

// ParentCollection returns the collection path a document path belongs to,
// or "" when the path is not a document path.
func ParentCollection(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

func splitPath(path string) ([]string, error) {
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("store: malformed path %q", path)
		}
	}
	return segs, nil
}
