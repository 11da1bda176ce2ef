package store

import (
	"context"
	"errors"
	"testing"
)

func TestBatchAtomicityOnPrecondition(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Apply(ctx, NewBatch().Set("tweets/t1", map[string]any{"likesCount": int64(0)})); err != nil {
		t.Fatalf("seeding tweet: %v", err)
	}

	batch := NewBatch().
		ExpectAbsent("tweets/t1/likes/u1").
		Set("tweets/t1/likes/u1", map[string]any{"actorId": "u1"}).
		Increment("tweets/t1", "likesCount", 1)
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("first engage batch: %v", err)
	}

	// Same batch again: the edge now exists, so nothing may apply.
	again := NewBatch().
		ExpectAbsent("tweets/t1/likes/u1").
		Set("tweets/t1/likes/u1", map[string]any{"actorId": "u1"}).
		Increment("tweets/t1", "likesCount", 1)
	if err := s.Apply(ctx, again); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}

	doc, err := s.Get(ctx, "tweets/t1")
	if err != nil {
		t.Fatalf("reading tweet: %v", err)
	}
	if got := doc.Data["likesCount"].(int64); got != 1 {
		t.Fatalf("likesCount double-applied: got %d, want 1", got)
	}
}

func TestExpectExistsBlocksMissingDoc(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	batch := NewBatch().
		ExpectExists("tweets/gone/likes/u1").
		Delete("tweets/gone/likes/u1")
	if err := s.Apply(ctx, batch); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}
}

func TestIncrementOnMissingDocIsSkipped(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	batch := NewBatch().
		Set("tweets/t1", map[string]any{"text": "hi"}).
		Increment("tweets/deleted", "repliesCount", -1)
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("batch with increment on missing doc: %v", err)
	}
	if _, err := s.Get(ctx, "tweets/deleted"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("increment must not create documents: %v", err)
	}
	if _, err := s.Get(ctx, "tweets/t1"); err != nil {
		t.Fatalf("rest of batch must still apply: %v", err)
	}
}

func TestListReturnsOnlyDirectChildren(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	batch := NewBatch().
		Set("tweets/t1", map[string]any{"text": "root"}).
		Set("tweets/t1/likes/u1", map[string]any{"actorId": "u1"}).
		Set("tweets/t1/likes/u2", map[string]any{"actorId": "u2"}).
		Set("tweets/t1/retweets/u3", map[string]any{"actorId": "u3"})
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	likes, err := s.List(ctx, "tweets/t1/likes")
	if err != nil {
		t.Fatalf("listing likes: %v", err)
	}
	if len(likes) != 2 {
		t.Fatalf("expected 2 likes, got %d", len(likes))
	}
	if likes[0].ID != "u1" || likes[1].ID != "u2" {
		t.Fatalf("expected sorted ids u1,u2, got %s,%s", likes[0].ID, likes[1].ID)
	}

	top, err := s.List(ctx, "tweets")
	if err != nil {
		t.Fatalf("listing tweets: %v", err)
	}
	if len(top) != 1 || top[0].ID != "t1" {
		t.Fatalf("top-level list must not include subcollection docs: %+v", top)
	}
}

func TestListPageCursor(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	batch := NewBatch()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		batch.Set(DocPath("users", id), map[string]any{"handle": id})
	}
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	page1, err := s.ListPage(ctx, "users", "", 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != "a" || page1[1].ID != "b" {
		t.Fatalf("unexpected page 1: %+v", page1)
	}

	page2, err := s.ListPage(ctx, "users", page1[len(page1)-1].ID, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 || page2[0].ID != "c" {
		t.Fatalf("unexpected page 2: %+v", page2)
	}

	page3, err := s.ListPage(ctx, "users", page2[len(page2)-1].ID, 2)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || page3[0].ID != "e" {
		t.Fatalf("unexpected page 3: %+v", page3)
	}
}

func TestFindByIDsHonorsChunkCap(t *testing.T) {
	s := NewMemStore().WithChunkSize(3)
	ctx := context.Background()

	if _, err := s.FindByIDs(ctx, "users", []string{"a", "b", "c", "d"}); !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("expected ErrChunkTooLarge, got %v", err)
	}

	if err := s.Apply(ctx, NewBatch().Set("users/a", map[string]any{"handle": "a"})); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	docs, err := s.FindByIDs(ctx, "users", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a" {
		t.Fatalf("missing ids must be absent, not errors: %+v", docs)
	}
}

func TestSubscribeDocumentAndCollection(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	var docEvents []Event
	cancelDoc, err := s.Subscribe(ctx, "tweets/t1", func(ev Event) { docEvents = append(docEvents, ev) })
	if err != nil {
		t.Fatalf("doc subscribe: %v", err)
	}
	defer cancelDoc()

	var collEvents []Event
	cancelColl, err := s.Subscribe(ctx, "tweets/t1/likes", func(ev Event) { collEvents = append(collEvents, ev) })
	if err != nil {
		t.Fatalf("collection subscribe: %v", err)
	}
	defer cancelColl()

	batch := NewBatch().
		Set("tweets/t1", map[string]any{"likesCount": int64(0)}).
		Set("tweets/t1/likes/u1", map[string]any{"actorId": "u1"}).
		Increment("tweets/t1", "likesCount", 1)
	if err := s.Apply(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if len(docEvents) != 2 {
		t.Fatalf("expected 2 doc events (set + increment), got %d", len(docEvents))
	}
	if docEvents[0].Type != EventAdded || docEvents[1].Type != EventModified {
		t.Fatalf("unexpected doc event types: %v, %v", docEvents[0].Type, docEvents[1].Type)
	}
	if len(collEvents) != 1 || collEvents[0].Doc.ID != "u1" {
		t.Fatalf("unexpected collection events: %+v", collEvents)
	}

	cancelColl()
	if err := s.Apply(ctx, NewBatch().Delete("tweets/t1/likes/u1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(collEvents) != 1 {
		t.Fatal("cancelled subscription must not receive events")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type edge struct {
		ActorID string `bson:"actorId"`
	}
	data, err := Encode(edge{ActorID: "u9"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, ok := data["_id"]; ok {
		t.Fatal("encode must strip _id")
	}
	var out edge
	if err := (Doc{ID: "x", Path: "tweets/t/likes/x", Data: data}).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ActorID != "u9" {
		t.Fatalf("round trip lost actorId: %+v", out)
	}
}
