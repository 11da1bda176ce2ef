// Package engagement implements the counter maintenance protocol: the
// paired relationship-document plus aggregate-counter write pattern shared
// by likes, retweets, bookmarks and follows.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/metrics"
	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

var (
	// ErrTargetNotFound is returned when engaging a target that does not
	// exist (or no longer exists).
	ErrTargetNotFound = errors.New("engagement: target not found")

	// ErrSelfFollow is returned when a user tries to follow themselves.
	ErrSelfFollow = errors.New("engagement: cannot follow yourself")
)

// Service applies engagement state changes atomically.
type Service struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(st store.Store, logger zerolog.Logger) *Service {
	return &Service{store: st, log: logger, now: time.Now}
}

// Set moves the (kind, target, actor) relationship to desired. A no-op
// when the desired state already holds. The edge under the target, its
// mirror under the actor and the counter delta commit in one batch guarded
// by an existence precondition on the target-side edge, so a rapid double
// toggle cannot double-apply the counter: the losing batch fails its
// precondition and is dropped as already satisfied.
func (s *Service) Set(ctx context.Context, kind Kind, targetID, actorID string, desired bool) error {
	if targetID == "" || actorID == "" {
		return fmt.Errorf("engagement: target and actor ids are required")
	}
	if kind == Follow && targetID == actorID {
		return ErrSelfFollow
	}

	edgePath := kind.edgePath(targetID, actorID)
	current, err := s.exists(ctx, edgePath)
	if err != nil {
		return err
	}
	if current == desired {
		return nil
	}

	targetExists, err := s.exists(ctx, kind.targetPath(targetID))
	if err != nil {
		return err
	}
	if desired && !targetExists {
		return ErrTargetNotFound
	}

	batch := store.NewBatch()
	if desired {
		s.buildEngage(batch, kind, targetID, actorID)
	} else {
		// The target may have been deleted concurrently; its counter
		// decrement is skipped, the edges are still removed.
		s.buildDisengage(batch, kind, targetID, actorID, targetExists)
	}

	if err := s.store.Apply(ctx, batch); err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			// Lost a race against an identical toggle; the desired state
			// already holds, so the request is satisfied.
			metrics.EngagementConflicts.WithLabelValues(kind.String()).Inc()
			s.log.Debug().
				Str("kind", kind.String()).
				Str("target", targetID).
				Str("actor", actorID).
				Msg("engagement toggle dropped, state already applied")
			return nil
		}
		return fmt.Errorf("engagement: applying %s batch: %w", kind, err)
	}

	direction := "disengage"
	if desired {
		direction = "engage"
	}
	metrics.EngagementToggles.WithLabelValues(kind.String(), direction).Inc()
	return nil
}

func (s *Service) buildEngage(b *store.Batch, kind Kind, targetID, actorID string) {
	edge, mirror := s.edgeDocs(kind, targetID, actorID)
	b.ExpectAbsent(kind.edgePath(targetID, actorID))
	b.ExpectExists(kind.targetPath(targetID))
	b.Set(kind.edgePath(targetID, actorID), edge)
	b.Set(kind.mirrorPath(targetID, actorID), mirror)
	b.Increment(kind.targetPath(targetID), kindSpecs[kind].counterField, 1)
	if kind == Follow {
		b.Increment(store.DocPath(store.Users, actorID), "followingCount", 1)
	}
}

func (s *Service) buildDisengage(b *store.Batch, kind Kind, targetID, actorID string, targetExists bool) {
	b.ExpectExists(kind.edgePath(targetID, actorID))
	b.Delete(kind.edgePath(targetID, actorID))
	b.Delete(kind.mirrorPath(targetID, actorID))
	if targetExists {
		b.Increment(kind.targetPath(targetID), kindSpecs[kind].counterField, -1)
	}
	if kind == Follow {
		b.Increment(store.DocPath(store.Users, actorID), "followingCount", -1)
	}
}

func (s *Service) edgeDocs(kind Kind, targetID, actorID string) (map[string]any, map[string]any) {
	now := s.now()
	if kind == Follow {
		doc, _ := store.Encode(models.FollowEdge{FollowedBy: actorID, FollowedAt: now})
		mirror, _ := store.Encode(models.FollowEdge{FollowedBy: actorID, FollowedAt: now})
		return doc, mirror
	}
	edge := models.EngagementEdge{ActorID: actorID, TweetID: targetID, EngagedAt: now}
	doc, _ := store.Encode(edge)
	mirror, _ := store.Encode(edge)
	return doc, mirror
}

// State reports whether the (kind, target, actor) relationship currently
// holds.
func (s *Service) State(ctx context.Context, kind Kind, targetID, actorID string) (bool, error) {
	return s.exists(ctx, kind.edgePath(targetID, actorID))
}

// ListActors returns the relationship edges under a target: who engages
// with it.
func (s *Service) ListActors(ctx context.Context, kind Kind, targetID string) ([]models.EngagementEdge, error) {
	sp := kindSpecs[kind]
	docs, err := s.store.List(ctx, store.SubCollection(sp.targetCollection, targetID, sp.edgeSub))
	if err != nil {
		return nil, err
	}
	return decodeEdges(docs)
}

// ListEngagements returns the mirrored edges under an actor: what the
// actor engages with.
func (s *Service) ListEngagements(ctx context.Context, kind Kind, actorID string) ([]models.EngagementEdge, error) {
	sp := kindSpecs[kind]
	docs, err := s.store.List(ctx, store.SubCollection(store.Users, actorID, sp.mirrorSub))
	if err != nil {
		return nil, err
	}
	return decodeEdges(docs)
}

func decodeEdges(docs []store.Doc) ([]models.EngagementEdge, error) {
	out := make([]models.EngagementEdge, 0, len(docs))
	for _, d := range docs {
		var e models.EngagementEdge
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Service) exists(ctx context.Context, path string) (bool, error) {
	_, err := s.store.Get(ctx, path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}
