// Package socialgraph derives follow relationships and batch-resolves
// document ids into hydrated records.
package socialgraph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/curlos/twitter-2.0-sub000/internal/metrics"
	"github.com/curlos/twitter-2.0-sub000/internal/models"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

// Edge is one side of a follow relationship as seen from a subcollection
// read: the other user's id (the document key) plus the edge timestamp.
type Edge struct {
	UserID     string    `json:"userId"`
	FollowedAt time.Time `json:"followedAt"`
}

// ChunkError reports one failed membership-query chunk during hydration.
// Other chunks' results are still used; the affected ids are simply absent
// from the hydrated map.
type ChunkError struct {
	Offset int
	IDs    []string
	Err    error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("socialgraph: hydration chunk at offset %d (%d ids): %v", e.Offset, len(e.IDs), e.Err)
}

func (e ChunkError) Unwrap() error { return e.Err }

type Service struct {
	store store.Store
	log   zerolog.Logger
}

func NewService(st store.Store, logger zerolog.Logger) *Service {
	return &Service{store: st, log: logger}
}

// IsFollowing reports whether follower follows target: a single document
// existence check on the target's followers subcollection.
func (s *Service) IsFollowing(ctx context.Context, followerID, targetID string) (bool, error) {
	_, err := s.store.Get(ctx, store.SubDoc(store.Users, targetID, store.SubFollowers, followerID))
	if err == nil {
		return true, nil
	}
	if err == store.ErrNotFound {
		return false, nil
	}
	return false, err
}

// ListFollowers returns the users following userID.
func (s *Service) ListFollowers(ctx context.Context, userID string) ([]Edge, error) {
	return s.listEdges(ctx, store.SubCollection(store.Users, userID, store.SubFollowers))
}

// ListFollowing returns the users userID follows.
func (s *Service) ListFollowing(ctx context.Context, userID string) ([]Edge, error) {
	return s.listEdges(ctx, store.SubCollection(store.Users, userID, store.SubFollowing))
}

func (s *Service) listEdges(ctx context.Context, path string) ([]Edge, error) {
	docs, err := s.store.List(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]Edge, 0, len(docs))
	for _, d := range docs {
		var fe models.FollowEdge
		if err := d.Decode(&fe); err != nil {
			return nil, err
		}
		out = append(out, Edge{UserID: d.ID, FollowedAt: fe.FollowedAt})
	}
	return out, nil
}

// FollowerIDs returns the ids of users following userID.
func (s *Service) FollowerIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := s.ListFollowers(ctx, userID)
	if err != nil {
		return nil, err
	}
	return edgeIDs(edges), nil
}

// FollowingIDs returns the ids of users userID follows.
func (s *Service) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := s.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	return edgeIDs(edges), nil
}

// HydrateUsers resolves user ids into records. The input is chunked to the
// store's membership-query cap; a failed chunk is reported without
// discarding the other chunks, so callers must tolerate a sparse map.
func (s *Service) HydrateUsers(ctx context.Context, ids []string) (map[string]models.User, []ChunkError) {
	out := make(map[string]models.User, len(ids))
	errs := s.hydrate(ctx, store.Users, ids, func(d store.Doc) error {
		var u models.User
		if err := d.Decode(&u); err != nil {
			return err
		}
		out[d.ID] = u
		return nil
	})
	return out, errs
}

// HydrateTweets resolves tweet ids into records with the same chunking and
// partial-failure behavior as HydrateUsers.
func (s *Service) HydrateTweets(ctx context.Context, ids []string) (map[string]models.Tweet, []ChunkError) {
	out := make(map[string]models.Tweet, len(ids))
	errs := s.hydrate(ctx, store.Tweets, ids, func(d store.Doc) error {
		var t models.Tweet
		if err := d.Decode(&t); err != nil {
			return err
		}
		out[d.ID] = t
		return nil
	})
	return out, errs
}

func (s *Service) hydrate(ctx context.Context, collection string, ids []string, collect func(store.Doc) error) []ChunkError {
	var errs []ChunkError
	ids = dedupe(ids)
	size := s.store.ChunkSize()
	for offset := 0; offset < len(ids); offset += size {
		end := offset + size
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[offset:end]
		docs, err := s.store.FindByIDs(ctx, collection, chunk)
		if err != nil {
			metrics.HydrationChunkFailures.Inc()
			s.log.Warn().Err(err).Str("collection", collection).Int("offset", offset).Msg("hydration chunk failed")
			errs = append(errs, ChunkError{Offset: offset, IDs: chunk, Err: err})
			continue
		}
		for _, d := range docs {
			if err := collect(d); err != nil {
				errs = append(errs, ChunkError{Offset: offset, IDs: []string{d.ID}, Err: err})
			}
		}
	}
	return errs
}

// SharedFollowers computes the "Followed by X, Y and N others" set: users
// the viewer follows who also follow the profile owner, excluding the
// owner. Bounded by both set sizes; callers refresh it on their own
// schedule rather than subscribing.
func (s *Service) SharedFollowers(ctx context.Context, viewerID, ownerID string) ([]models.User, error) {
	viewerFollowing, err := s.FollowingIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	ownerFollowers, err := s.FollowerIDs(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	followsOwner := make(map[string]bool, len(ownerFollowers))
	for _, id := range ownerFollowers {
		followsOwner[id] = true
	}
	var shared []string
	for _, id := range viewerFollowing {
		if id != ownerID && followsOwner[id] {
			shared = append(shared, id)
		}
	}

	hydrated, chunkErrs := s.HydrateUsers(ctx, shared)
	for _, ce := range chunkErrs {
		s.log.Warn().Err(ce.Err).Msg("shared followers hydration chunk failed")
	}

	out := make([]models.User, 0, len(hydrated))
	for _, u := range hydrated {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out, nil
}

func edgeIDs(edges []Edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.UserID)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
