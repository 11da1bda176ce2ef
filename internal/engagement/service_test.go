package engagement

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	return NewService(st, zerolog.Nop()), st
}

func seedUser(t *testing.T, st *store.MemStore, id string) {
	t.Helper()
	batch := store.NewBatch().Set(store.DocPath(store.Users, id), map[string]any{
		"handle":         id,
		"followersCount": int64(0),
		"followingCount": int64(0),
	})
	if err := st.Apply(context.Background(), batch); err != nil {
		t.Fatalf("seeding user %s: %v", id, err)
	}
}

func seedTweet(t *testing.T, st *store.MemStore, id, authorID string) {
	t.Helper()
	batch := store.NewBatch().Set(store.DocPath(store.Tweets, id), map[string]any{
		"authorId":       authorID,
		"text":           "hello",
		"likesCount":     int64(0),
		"retweetsCount":  int64(0),
		"bookmarksCount": int64(0),
	})
	if err := st.Apply(context.Background(), batch); err != nil {
		t.Fatalf("seeding tweet %s: %v", id, err)
	}
}

func counter(t *testing.T, st *store.MemStore, path, field string) int64 {
	t.Helper()
	doc, err := st.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	n, ok := doc.Data[field].(int64)
	if !ok {
		t.Fatalf("%s.%s is %T, want int64", path, field, doc.Data[field])
	}
	return n
}

func exists(t *testing.T, st *store.MemStore, path string) bool {
	t.Helper()
	_, err := st.Get(context.Background(), path)
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	t.Fatalf("reading %s: %v", path, err)
	return false
}

func TestLikeWritesEdgeMirrorAndCounterTogether(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	seedTweet(t, st, "t1", "author")

	if err := svc.Set(ctx, Like, "t1", "u1", true); err != nil {
		t.Fatalf("like: %v", err)
	}
	if got := counter(t, st, "tweets/t1", "likesCount"); got != 1 {
		t.Fatalf("likesCount = %d, want 1", got)
	}
	if !exists(t, st, "tweets/t1/likes/u1") {
		t.Fatal("edge under target missing")
	}
	if !exists(t, st, "users/u1/likes/t1") {
		t.Fatal("mirror under actor missing")
	}

	engaged, err := svc.State(ctx, Like, "t1", "u1")
	if err != nil || !engaged {
		t.Fatalf("State = %v, %v; want true, nil", engaged, err)
	}
}

func TestRepeatedToggleIsIdempotent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	seedTweet(t, st, "t1", "author")

	for i := 0; i < 3; i++ {
		if err := svc.Set(ctx, Like, "t1", "u1", true); err != nil {
			t.Fatalf("like #%d: %v", i+1, err)
		}
	}
	if got := counter(t, st, "tweets/t1", "likesCount"); got != 1 {
		t.Fatalf("likesCount = %d after repeated likes, want 1", got)
	}

	for i := 0; i < 3; i++ {
		if err := svc.Set(ctx, Like, "t1", "u1", false); err != nil {
			t.Fatalf("unlike #%d: %v", i+1, err)
		}
	}
	if got := counter(t, st, "tweets/t1", "likesCount"); got != 0 {
		t.Fatalf("likesCount = %d after repeated unlikes, want 0", got)
	}
}

// racingStore injects a competing write between the service's read and its
// Apply, reproducing two clients toggling the same engagement at once.
type racingStore struct {
	*store.MemStore
	inject func()
}

func (r *racingStore) Apply(ctx context.Context, b *store.Batch) error {
	if r.inject != nil {
		fn := r.inject
		r.inject = nil
		fn()
	}
	return r.MemStore.Apply(ctx, b)
}

func TestDuplicateToggleRaceConservesCounter(t *testing.T) {
	mem := store.NewMemStore()
	rs := &racingStore{MemStore: mem}
	svc := NewService(rs, zerolog.Nop())
	ctx := context.Background()
	seedUser(t, mem, "u1")
	seedTweet(t, mem, "t1", "author")

	// The competing client commits the identical like first.
	rs.inject = func() {
		other := NewService(mem, zerolog.Nop())
		if err := other.Set(ctx, Like, "t1", "u1", true); err != nil {
			t.Fatalf("competing like: %v", err)
		}
	}

	// Our batch loses its precondition but the request is still satisfied.
	if err := svc.Set(ctx, Like, "t1", "u1", true); err != nil {
		t.Fatalf("racing like: %v", err)
	}
	if got := counter(t, mem, "tweets/t1", "likesCount"); got != 1 {
		t.Fatalf("likesCount = %d after duplicate race, want 1", got)
	}
}

func TestSetSurfacesBackendWriteFailure(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	seedTweet(t, st, "t1", "author")

	boom := errors.New("backend unavailable")
	st.FailNextApply(boom)
	if err := svc.Set(ctx, Like, "t1", "u1", true); !errors.Is(err, boom) {
		t.Fatalf("expected the backend failure to surface, got %v", err)
	}

	// The failed batch must leave nothing behind.
	if got := counter(t, st, "tweets/t1", "likesCount"); got != 0 {
		t.Fatalf("likesCount = %d after failed apply, want 0", got)
	}
	if exists(t, st, "tweets/t1/likes/u1") || exists(t, st, "users/u1/likes/t1") {
		t.Fatal("edges written despite failed apply")
	}

	// The failure is one-shot; a retry commits normally.
	if err := svc.Set(ctx, Like, "t1", "u1", true); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := counter(t, st, "tweets/t1", "likesCount"); got != 1 {
		t.Fatalf("likesCount = %d after retry, want 1", got)
	}
}

func TestFollowRoundTrip(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "alice")
	seedUser(t, st, "bob")

	if err := svc.Set(ctx, Follow, "bob", "alice", true); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if got := counter(t, st, "users/bob", "followersCount"); got != 1 {
		t.Fatalf("bob followersCount = %d, want 1", got)
	}
	if got := counter(t, st, "users/alice", "followingCount"); got != 1 {
		t.Fatalf("alice followingCount = %d, want 1", got)
	}
	if !exists(t, st, "users/bob/followers/alice") || !exists(t, st, "users/alice/following/bob") {
		t.Fatal("follow edges missing")
	}

	if err := svc.Set(ctx, Follow, "bob", "alice", false); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	if got := counter(t, st, "users/bob", "followersCount"); got != 0 {
		t.Fatalf("bob followersCount = %d after unfollow, want 0", got)
	}
	if got := counter(t, st, "users/alice", "followingCount"); got != 0 {
		t.Fatalf("alice followingCount = %d after unfollow, want 0", got)
	}
	if exists(t, st, "users/bob/followers/alice") || exists(t, st, "users/alice/following/bob") {
		t.Fatal("residual follow edges after unfollow")
	}
}

func TestSelfFollowRejected(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "alice")
	if err := svc.Set(context.Background(), Follow, "alice", "alice", true); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("expected ErrSelfFollow, got %v", err)
	}
}

func TestEngageMissingTarget(t *testing.T) {
	svc, st := newTestService(t)
	seedUser(t, st, "u1")
	if err := svc.Set(context.Background(), Like, "ghost", "u1", true); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}

func TestDisengageSurvivesDeletedTarget(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	seedTweet(t, st, "t1", "author")

	if err := svc.Set(ctx, Like, "t1", "u1", true); err != nil {
		t.Fatalf("like: %v", err)
	}
	// The tweet vanishes while the like edge survives.
	if err := st.Apply(ctx, store.NewBatch().Delete("tweets/t1")); err != nil {
		t.Fatalf("deleting tweet: %v", err)
	}

	if err := svc.Set(ctx, Like, "t1", "u1", false); err != nil {
		t.Fatalf("unlike after target deleted: %v", err)
	}
	if exists(t, st, "tweets/t1/likes/u1") || exists(t, st, "users/u1/likes/t1") {
		t.Fatal("edges must be removed even when the target is gone")
	}
}

func TestListActorsAndEngagements(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "u1")
	seedUser(t, st, "u2")
	seedTweet(t, st, "t1", "author")
	seedTweet(t, st, "t2", "author")

	for _, actor := range []string{"u1", "u2"} {
		if err := svc.Set(ctx, Like, "t1", actor, true); err != nil {
			t.Fatalf("like by %s: %v", actor, err)
		}
	}
	if err := svc.Set(ctx, Like, "t2", "u1", true); err != nil {
		t.Fatalf("like t2: %v", err)
	}

	actors, err := svc.ListActors(ctx, Like, "t1")
	if err != nil {
		t.Fatalf("ListActors: %v", err)
	}
	if len(actors) != 2 {
		t.Fatalf("ListActors returned %d edges, want 2", len(actors))
	}

	mine, err := svc.ListEngagements(ctx, Like, "u1")
	if err != nil {
		t.Fatalf("ListEngagements: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListEngagements returned %d edges, want 2", len(mine))
	}
}
