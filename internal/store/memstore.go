package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store with the full adapter semantics:
// preconditions, atomic batches and synchronous change subscriptions. It
// backs the test suite and local development.
type MemStore struct {
	mu        sync.RWMutex
	docs      map[string]map[string]any
	subs      map[string]map[int]func(Event)
	nextSubID int
	chunkSize int

	applyErr error
	findHook func(collection string, ids []string) error

	findCalls int
}

func NewMemStore() *MemStore {
	return &MemStore{
		docs:      make(map[string]map[string]any),
		subs:      make(map[string]map[int]func(Event)),
		chunkSize: 10,
	}
}

// WithChunkSize overrides the membership-query cap (default 10).
func (s *MemStore) WithChunkSize(n int) *MemStore {
	if n > 0 {
		s.chunkSize = n
	}
	return s
}

// FailNextApply makes the next Apply call fail with err without applying
// anything. Used by tests to exercise rollback paths.
func (s *MemStore) FailNextApply(err error) {
	s.mu.Lock()
	s.applyErr = err
	s.mu.Unlock()
}

// SetFindHook installs a hook consulted before every FindByIDs call; a
// non-nil return fails that chunk. Used by tests to exercise partial
// hydration failures.
func (s *MemStore) SetFindHook(fn func(collection string, ids []string) error) {
	s.mu.Lock()
	s.findHook = fn
	s.mu.Unlock()
}

// FindCalls returns how many FindByIDs queries have been issued.
func (s *MemStore) FindCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findCalls
}

func (s *MemStore) ChunkSize() int { return s.chunkSize }

func (s *MemStore) Get(ctx context.Context, path string) (Doc, error) {
	if _, err := splitPath(path); err != nil {
		return Doc{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[path]
	if !ok {
		return Doc{}, ErrNotFound
	}
	return docAt(path, data), nil
}

func (s *MemStore) List(ctx context.Context, path string) ([]Doc, error) {
	if _, err := splitPath(path); err != nil {
		return nil, err
	}
	prefix := path + "/"
	s.mu.RLock()
	var out []Doc
	for p, data := range s.docs {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if strings.Contains(p[len(prefix):], "/") {
			continue
		}
		out = append(out, docAt(p, data))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ListPage(ctx context.Context, collection, afterID string, limit int) ([]Doc, error) {
	docs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []Doc
	for _, d := range docs {
		if afterID != "" && d.ID <= afterID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) FindByIDs(ctx context.Context, collection string, ids []string) ([]Doc, error) {
	s.mu.Lock()
	s.findCalls++
	hook := s.findHook
	s.mu.Unlock()

	if len(ids) > s.chunkSize {
		return nil, ErrChunkTooLarge
	}
	if hook != nil {
		if err := hook(collection, ids); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Doc
	for _, id := range ids {
		path := DocPath(collection, id)
		if data, ok := s.docs[path]; ok {
			out = append(out, docAt(path, data))
		}
	}
	return out, nil
}

func (s *MemStore) Apply(ctx context.Context, b *Batch) error {
	s.mu.Lock()
	if s.applyErr != nil {
		err := s.applyErr
		s.applyErr = nil
		s.mu.Unlock()
		return err
	}

	for _, pc := range b.preconds {
		_, exists := s.docs[pc.path]
		if pc.kind == expectExists && !exists {
			s.mu.Unlock()
			return ErrPreconditionFailed
		}
		if pc.kind == expectAbsent && exists {
			s.mu.Unlock()
			return ErrPreconditionFailed
		}
	}

	var events []Event
	for _, op := range b.ops {
		switch op.kind {
		case opSet:
			_, existed := s.docs[op.path]
			s.docs[op.path] = cloneMap(op.data)
			typ := EventAdded
			if existed {
				typ = EventModified
			}
			events = append(events, Event{Type: typ, Doc: docAt(op.path, s.docs[op.path])})
		case opUpdate:
			data, ok := s.docs[op.path]
			if !ok {
				continue
			}
			for k, v := range op.data {
				data[k] = v
			}
			events = append(events, Event{Type: EventModified, Doc: docAt(op.path, data)})
		case opDelete:
			if _, ok := s.docs[op.path]; !ok {
				continue
			}
			id := op.path[strings.LastIndex(op.path, "/")+1:]
			delete(s.docs, op.path)
			events = append(events, Event{Type: EventRemoved, Doc: Doc{ID: id, Path: op.path}})
		case opIncrement:
			data, ok := s.docs[op.path]
			if !ok {
				continue
			}
			data[op.field] = toInt64(data[op.field]) + op.delta
			events = append(events, Event{Type: EventModified, Doc: docAt(op.path, data)})
		}
	}

	var notify []func(Event)
	var payloads []Event
	for _, ev := range events {
		for _, fn := range s.subscribersLocked(ev.Doc.Path) {
			notify = append(notify, fn)
			payloads = append(payloads, ev)
		}
	}
	s.mu.Unlock()

	for i, fn := range notify {
		fn(payloads[i])
	}
	return nil
}

func (s *MemStore) Subscribe(ctx context.Context, path string, fn func(Event)) (CancelFunc, error) {
	if _, err := splitPath(path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]func(Event))
	}
	s.subs[path][id] = fn
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[path], id)
			if len(s.subs[path]) == 0 {
				delete(s.subs, path)
			}
			s.mu.Unlock()
		})
	}
	return cancel, nil
}

// SubscriberCount reports live subscriptions on a path; test helper.
func (s *MemStore) SubscriberCount(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[path])
}

// subscribersLocked collects callbacks watching the document path itself
// and its parent collection path.
func (s *MemStore) subscribersLocked(docPath string) []func(Event) {
	var out []func(Event)
	for _, fn := range s.subs[docPath] {
		out = append(out, fn)
	}
	if parent := ParentCollection(docPath); parent != "" {
		for _, fn := range s.subs[parent] {
			out = append(out, fn)
		}
	}
	return out
}

func docAt(path string, data map[string]any) Doc {
	return Doc{
		ID:   path[strings.LastIndex(path, "/")+1:],
		Path: path,
		Data: cloneMap(data),
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
