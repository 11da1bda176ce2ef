// Package tweets maintains tweet content, parent/child references and the
// edit history, tolerating concurrent deletion of any referenced document.
package tweets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/socialgraph"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

var (
	// ErrNotAuthor is returned when someone other than the author tries to
	// edit or delete a tweet.
	ErrNotAuthor = errors.New("tweets: only the author may do that")

	// ErrRepliesRestricted is returned when the parent's reply policy does
	// not admit the actor.
	ErrRepliesRestricted = errors.New("tweets: replies to this tweet are restricted")

	// ErrQuotesDisabled is returned when quoting a tweet whose author
	// disabled quotes.
	ErrQuotesDisabled = errors.New("tweets: this tweet cannot be quoted")
)

type Service struct {
	store store.Store
	graph *socialgraph.Service
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

func NewService(st store.Store, graph *socialgraph.Service, logger zerolog.Logger) *Service {
	return &Service{
		store: st,
		graph: graph,
		log:   logger,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create writes a new tweet. A reply or quote also writes the mirrored
// entry in the parent's replies/quotes subcollection plus the parent's
// counter, in the same batch, but only when the parent still exists at
// create time. A parent that vanished concurrently downgrades the write to
// a plain tweet: the mirror and counter are skipped, never fatal.
func (s *Service) Create(ctx context.Context, authorID string, req models.CreateTweetRequest) (*models.Tweet, error) {
	t := &models.Tweet{
		ID:               s.newID(),
		AuthorID:         authorID,
		Text:             req.Text,
		Images:           req.Images,
		ParentTweetID:    req.ParentTweetID,
		IsQuoteTweet:     req.IsQuoteTweet,
		Timestamp:        s.now(),
		AllowQuotes:      req.AllowQuotes == nil || *req.AllowQuotes,
		AllowRepliesFrom: req.AllowRepliesFrom,
		HideReplies:      req.HideReplies,
	}
	if len(t.AllowRepliesFrom) == 0 {
		t.AllowRepliesFrom = []string{models.RepliesEverybody}
	}

	var parent *models.Tweet
	if t.ParentTweetID != "" {
		p, err := s.Get(ctx, t.ParentTweetID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		parent = p
	}
	if parent != nil {
		if t.IsQuoteTweet && !parent.AllowQuotes {
			return nil, ErrQuotesDisabled
		}
		if !t.IsQuoteTweet {
			ok, err := s.mayReply(ctx, parent, authorID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrRepliesRestricted
			}
		}
	}

	doc, err := store.Encode(t)
	if err != nil {
		return nil, err
	}
	batch := store.NewBatch().Set(store.DocPath(store.Tweets, t.ID), doc)
	if parent != nil {
		sub, counter := store.SubReplies, "repliesCount"
		if t.IsQuoteTweet {
			sub, counter = store.SubQuotes, "quotesCount"
		}
		edge, err := store.Encode(models.ReplyEdge{TweetID: t.ID, AuthorID: authorID, CreatedAt: t.Timestamp})
		if err != nil {
			return nil, err
		}
		// The parent read above is not a guarantee; the precondition keeps
		// the mirror and counter from landing under a parent deleted since.
		batch.ExpectExists(store.DocPath(store.Tweets, parent.ID))
		batch.Set(store.SubDoc(store.Tweets, parent.ID, sub, t.ID), edge)
		batch.Increment(store.DocPath(store.Tweets, parent.ID), counter, 1)
	}

	if err := s.store.Apply(ctx, batch); err != nil {
		if parent != nil && errors.Is(err, store.ErrPreconditionFailed) {
			// Parent vanished between the read and the commit; retry as a
			// plain tweet without the attachment.
			plain := store.NewBatch().Set(store.DocPath(store.Tweets, t.ID), doc)
			if err := s.store.Apply(ctx, plain); err != nil {
				return nil, fmt.Errorf("tweets: creating tweet: %w", err)
			}
			return t, nil
		}
		return nil, fmt.Errorf("tweets: creating tweet: %w", err)
	}
	return t, nil
}

func (s *Service) mayReply(ctx context.Context, parent *models.Tweet, actorID string) (bool, error) {
	if actorID == parent.AuthorID {
		return true, nil
	}
	for _, policy := range parent.AllowRepliesFrom {
		switch policy {
		case models.RepliesEverybody:
			return true, nil
		case models.RepliesNobody:
			continue
		case models.RepliesFollowing:
			// The parent's author follows the actor.
			ok, err := s.graph.IsFollowing(ctx, parent.AuthorID, actorID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		case models.RepliesFollowers:
			// The actor follows the parent's author.
			ok, err := s.graph.IsFollowing(ctx, actorID, parent.AuthorID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Tweet, error) {
	doc, err := s.store.Get(ctx, store.DocPath(store.Tweets, id))
	if err != nil {
		return nil, err
	}
	var t models.Tweet
	if err := doc.Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Edit overwrites the live content after appending the pre-edit snapshot
// to the append-only version history.
func (s *Service) Edit(ctx context.Context, id, actorID string, req models.EditTweetRequest) (*models.Tweet, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.AuthorID != actorID {
		return nil, ErrNotAuthor
	}

	snapshot := models.TweetVersion{Text: t.Text, Images: t.Images, EditedAt: s.now()}
	t.VersionHistory = append(t.VersionHistory, snapshot)
	t.Text = req.Text
	t.Images = req.Images

	doc, err := store.Encode(t)
	if err != nil {
		return nil, err
	}
	batch := store.NewBatch().
		ExpectExists(store.DocPath(store.Tweets, id)).
		Set(store.DocPath(store.Tweets, id), doc)
	if err := s.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("tweets: editing tweet %s: %w", id, err)
	}
	return t, nil
}

// History returns the version history newest-first.
func (s *Service) History(ctx context.Context, id string) ([]models.TweetVersion, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]models.TweetVersion, len(t.VersionHistory))
	for i, v := range t.VersionHistory {
		out[len(out)-1-i] = v
	}
	return out, nil
}

// Delete removes the tweet; for a reply or quote it also removes the
// mirrored subcollection entry under the parent and decrements the
// parent's counter, unless the parent itself is already gone, in which
// case both are silently skipped.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.AuthorID != actorID {
		return ErrNotAuthor
	}

	batch := store.NewBatch().Delete(store.DocPath(store.Tweets, id))
	if t.ParentTweetID != "" {
		sub, counter := store.SubReplies, "repliesCount"
		if t.IsQuoteTweet {
			sub, counter = store.SubQuotes, "quotesCount"
		}
		_, err := s.store.Get(ctx, store.DocPath(store.Tweets, t.ParentTweetID))
		switch {
		case err == nil:
			batch.Delete(store.SubDoc(store.Tweets, t.ParentTweetID, sub, id))
			batch.Increment(store.DocPath(store.Tweets, t.ParentTweetID), counter, -1)
		case errors.Is(err, store.ErrNotFound):
			// Parent deleted concurrently; nothing to unlink.
		default:
			return err
		}
	}

	if err := s.store.Apply(ctx, batch); err != nil {
		return fmt.Errorf("tweets: deleting tweet %s: %w", id, err)
	}
	return nil
}

// ListReplies returns the mirrored reply entries under a parent tweet.
func (s *Service) ListReplies(ctx context.Context, parentID string) ([]models.ReplyEdge, error) {
	docs, err := s.store.List(ctx, store.SubCollection(store.Tweets, parentID, store.SubReplies))
	if err != nil {
		return nil, err
	}
	out := make([]models.ReplyEdge, 0, len(docs))
	for _, d := range docs {
		var e models.ReplyEdge
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
