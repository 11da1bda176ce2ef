package tweets

import (
	"context"
	"errors"

	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

// ParentKind tags the three possible outcomes of resolving a tweet's
// parent reference.
type ParentKind int

const (
	// ParentNone: the tweet is neither a reply nor a quote.
	ParentNone ParentKind = iota
	// ParentDeleted: the parent tweet (or its author) no longer exists.
	// Render the stable "unavailable" placeholder, never an error.
	ParentDeleted
	// ParentPresent: parent and author both resolved.
	ParentPresent
)

func (k ParentKind) String() string {
	switch k {
	case ParentNone:
		return "none"
	case ParentDeleted:
		return "deleted"
	case ParentPresent:
		return "present"
	}
	return "unknown"
}

// ParentState is the tagged result of ResolveParent. Parent and Author are
// set only when Kind is ParentPresent.
type ParentState struct {
	Kind   ParentKind
	Parent *models.Tweet
	Author *models.User
}

// ResolveParent resolves a tweet's parent reference fresh for every render
// path. A missing parent or a missing parent author yields ParentDeleted;
// only store failures propagate as errors.
func (s *Service) ResolveParent(ctx context.Context, t *models.Tweet) (ParentState, error) {
	if t.ParentTweetID == "" {
		return ParentState{Kind: ParentNone}, nil
	}

	parent, err := s.Get(ctx, t.ParentTweetID)
	if errors.Is(err, store.ErrNotFound) {
		return ParentState{Kind: ParentDeleted}, nil
	}
	if err != nil {
		return ParentState{}, err
	}

	authorDoc, err := s.store.Get(ctx, store.DocPath(store.Users, parent.AuthorID))
	if errors.Is(err, store.ErrNotFound) {
		return ParentState{Kind: ParentDeleted}, nil
	}
	if err != nil {
		return ParentState{}, err
	}
	var author models.User
	if err := authorDoc.Decode(&author); err != nil {
		return ParentState{}, err
	}

	return ParentState{Kind: ParentPresent, Parent: parent, Author: &author}, nil
}
