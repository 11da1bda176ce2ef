package tweets

import (
	"context"
	"testing"

	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

func TestResolveParentNone(t *testing.T) {
	svc, _ := newTestService(t)
	state, err := svc.ResolveParent(context.Background(), &models.Tweet{ID: "t1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if state.Kind != ParentNone {
		t.Fatalf("kind = %v, want none", state.Kind)
	}
}

func TestResolveParentPresent(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "alice")

	parent, err := svc.Create(ctx, "alice", models.CreateTweetRequest{Text: "parent"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	reply, err := svc.Create(ctx, "bob", models.CreateTweetRequest{Text: "reply", ParentTweetID: parent.ID})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}

	state, err := svc.ResolveParent(ctx, reply)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if state.Kind != ParentPresent {
		t.Fatalf("kind = %v, want present", state.Kind)
	}
	if state.Parent == nil || state.Parent.ID != parent.ID {
		t.Fatalf("unexpected parent: %+v", state.Parent)
	}
	if state.Author == nil || state.Author.Handle != "alice" {
		t.Fatalf("unexpected parent author: %+v", state.Author)
	}
}

func TestResolveParentAfterParentDeleted(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, "alice", models.CreateTweetRequest{Text: "parent"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	reply, err := svc.Create(ctx, "bob", models.CreateTweetRequest{Text: "reply", ParentTweetID: parent.ID})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}
	if err := svc.Delete(ctx, parent.ID, "alice"); err != nil {
		t.Fatalf("delete parent: %v", err)
	}

	// The reply itself stays readable; only its parent renders unavailable.
	got, err := svc.Get(ctx, reply.ID)
	if err != nil {
		t.Fatalf("reply must survive parent deletion: %v", err)
	}
	state, err := svc.ResolveParent(ctx, got)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if state.Kind != ParentDeleted {
		t.Fatalf("kind = %v, want deleted", state.Kind)
	}
	if state.Parent != nil || state.Author != nil {
		t.Fatal("deleted parent state must not carry parent data")
	}
}

func TestResolveParentWhoseAuthorIsGone(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, "vanished", models.CreateTweetRequest{Text: "parent"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	reply, err := svc.Create(ctx, "bob", models.CreateTweetRequest{Text: "reply", ParentTweetID: parent.ID})
	if err != nil {
		t.Fatalf("create reply: %v", err)
	}

	// The parent tweet exists but its author's account does not.
	if _, getErr := st.Get(ctx, store.DocPath(store.Users, "vanished")); getErr == nil {
		t.Fatal("test setup: author account should not exist")
	}
	state, err := svc.ResolveParent(ctx, reply)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if state.Kind != ParentDeleted {
		t.Fatalf("kind = %v, want deleted when the author is gone", state.Kind)
	}
}
