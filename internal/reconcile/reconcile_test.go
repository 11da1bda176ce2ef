package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

func newTestService(t *testing.T, st *store.MemStore) *Service {
	t.Helper()
	// No audit DB; a high page rate keeps the limiter out of the way.
	return NewService(st, nil, 2, 1000, zerolog.Nop())
}

func seedLikes(t *testing.T, st *store.MemStore, tweetID string, actors ...string) {
	t.Helper()
	batch := store.NewBatch()
	for _, a := range actors {
		batch.Set(store.SubDoc(store.Tweets, tweetID, store.SubLikes, a), map[string]any{
			"actorId":   a,
			"tweetId":   tweetID,
			"engagedAt": time.Now(),
		})
	}
	if err := st.Apply(context.Background(), batch); err != nil {
		t.Fatalf("seeding likes: %v", err)
	}
}

func fullTweetDoc(likes int64) map[string]any {
	return map[string]any{
		"authorId":       "author",
		"text":           "hello",
		"likesCount":     likes,
		"retweetsCount":  int64(0),
		"bookmarksCount": int64(0),
		"repliesCount":   int64(0),
		"quotesCount":    int64(0),
	}
}

func TestBackfillFillsOnlyMissingFields(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st)
	ctx := context.Background()

	// Legacy doc: likesCount absent, repliesCount present but wrong.
	legacy := fullTweetDoc(0)
	delete(legacy, "likesCount")
	legacy["repliesCount"] = int64(5)
	batch := store.NewBatch().
		Set("tweets/t1", legacy).
		Set("tweets/t2", fullTweetDoc(0))
	if err := st.Apply(ctx, batch); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	seedLikes(t, st, "t1", "u1", "u2")

	rep, err := svc.Backfill(ctx, TweetEntities)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if rep.Processed != 2 || rep.Updated != 1 || rep.Skipped != 1 || rep.Failed != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	doc, err := st.Get(ctx, "tweets/t1")
	if err != nil {
		t.Fatalf("reading t1: %v", err)
	}
	if got := doc.Data["likesCount"].(int64); got != 2 {
		t.Fatalf("likesCount backfilled to %d, want 2", got)
	}
	// Present-but-wrong counters belong to Verify, not Backfill.
	if got := doc.Data["repliesCount"].(int64); got != 5 {
		t.Fatalf("repliesCount = %d, backfill must not touch present fields", got)
	}
}

func TestBackfillIsIdempotent(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st)
	ctx := context.Background()

	legacy := fullTweetDoc(0)
	delete(legacy, "likesCount")
	delete(legacy, "retweetsCount")
	if err := st.Apply(ctx, store.NewBatch().Set("tweets/t1", legacy)); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	seedLikes(t, st, "t1", "u1")

	first, err := svc.Backfill(ctx, TweetEntities)
	if err != nil {
		t.Fatalf("first backfill: %v", err)
	}
	if first.Updated != 1 {
		t.Fatalf("first run Updated = %d, want 1", first.Updated)
	}

	second, err := svc.Backfill(ctx, TweetEntities)
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if second.Updated != 0 || second.Skipped != second.Processed {
		t.Fatalf("second run must repair nothing: %+v", second)
	}
}

func TestBackfillWalksCursorPages(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st) // page size 2
	ctx := context.Background()

	batch := store.NewBatch()
	for i := 0; i < 7; i++ {
		doc := fullTweetDoc(0)
		delete(doc, "quotesCount")
		batch.Set(fmt.Sprintf("tweets/t%02d", i), doc)
	}
	if err := st.Apply(ctx, batch); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	rep, err := svc.Backfill(ctx, TweetEntities)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if rep.Processed != 7 || rep.Updated != 7 {
		t.Fatalf("unexpected report across pages: %+v", rep)
	}
}

func TestBackfillUserCounters(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st)
	ctx := context.Background()

	batch := store.NewBatch().
		Set("users/alice", map[string]any{"handle": "alice"}).
		Set("users/alice/followers/bob", map[string]any{"followedBy": "bob", "followedAt": time.Now()}).
		Set("users/alice/followers/carol", map[string]any{"followedBy": "carol", "followedAt": time.Now()}).
		Set("users/alice/following/bob", map[string]any{"followedBy": "alice", "followedAt": time.Now()})
	if err := st.Apply(ctx, batch); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	if _, err := svc.Backfill(ctx, UserEntities); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	doc, err := st.Get(ctx, "users/alice")
	if err != nil {
		t.Fatalf("reading alice: %v", err)
	}
	if got := doc.Data["followersCount"].(int64); got != 2 {
		t.Fatalf("followersCount = %d, want 2", got)
	}
	if got := doc.Data["followingCount"].(int64); got != 1 {
		t.Fatalf("followingCount = %d, want 1", got)
	}
}

func TestVerifyFlagsDriftWithoutMutating(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st)
	ctx := context.Background()

	if err := st.Apply(ctx, store.NewBatch().Set("tweets/t1", fullTweetDoc(5))); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	seedLikes(t, st, "t1", "u1")

	rep, err := svc.Verify(ctx, TweetEntities)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Checked != 1 || len(rep.Mismatches) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	m := rep.Mismatches[0]
	if m.Path != "tweets/t1" || m.Field != "likesCount" || m.Stored != 5 || m.Actual != 1 {
		t.Fatalf("unexpected mismatch: %+v", m)
	}

	// Verify is strictly read-only.
	doc, err := st.Get(ctx, "tweets/t1")
	if err != nil {
		t.Fatalf("reading t1: %v", err)
	}
	if got := doc.Data["likesCount"].(int64); got != 5 {
		t.Fatalf("verify mutated likesCount to %d", got)
	}
}

func TestVerifyIgnoresAbsentFields(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st)
	ctx := context.Background()

	doc := fullTweetDoc(0)
	delete(doc, "likesCount")
	if err := st.Apply(ctx, store.NewBatch().Set("tweets/t1", doc)); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	seedLikes(t, st, "t1", "u1")

	rep, err := svc.Verify(ctx, TweetEntities)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	// Absent fields are Backfill's job; Verify only audits present values.
	if len(rep.Mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %+v", rep.Mismatches)
	}
}

func TestUnknownEntityKind(t *testing.T) {
	st := store.NewMemStore()
	svc := newTestService(t, st)
	if _, err := svc.Backfill(context.Background(), EntityKind("boards")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := svc.Verify(context.Background(), EntityKind("boards")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
