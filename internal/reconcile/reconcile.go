// Package reconcile repairs and audits drift between stored aggregate
// counters and the relationship subcollections that are their ground
// truth.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/curlos/twitter-2.0-sub000/internal/metrics"
	"github.com/curlos/twitter-2.0-sub000/internal/store"
)

// EntityKind selects which collection a job walks.
type EntityKind string

const (
	TweetEntities EntityKind = "tweets"
	UserEntities  EntityKind = "users"
)

// counterSources maps each derived counter field to the subcollection
// whose cardinality is its ground truth.
var counterSources = map[EntityKind]map[string]string{
	TweetEntities: {
		"likesCount":     store.SubLikes,
		"retweetsCount":  store.SubRetweets,
		"bookmarksCount": store.SubBookmarks,
		"repliesCount":   store.SubReplies,
		"quotesCount":    store.SubQuotes,
	},
	UserEntities: {
		"followersCount": store.SubFollowers,
		"followingCount": store.SubFollowing,
	},
}

// Report tallies one backfill run. Processed can exceed Updated+Skipped
// when per-entity failures occur.
type Report struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Mismatch is one counter field whose stored value disagrees with the
// recomputed cardinality.
type Mismatch struct {
	Path   string `json:"path"`
	Field  string `json:"field"`
	Stored int64  `json:"stored"`
	Actual int64  `json:"actual"`
}

// VerifyReport is the read-only audit result.
type VerifyReport struct {
	Checked    int        `json:"checked"`
	Failed     int        `json:"failed"`
	Mismatches []Mismatch `json:"mismatches"`
}

type Service struct {
	store    store.Store
	db       *gorm.DB
	limiter  *rate.Limiter
	pageSize int
	log      zerolog.Logger
}

// NewService builds a reconciliation service. db may be nil, which
// disables job-run auditing. pagesPerSec throttles page turns to stay
// inside the store's rate limits.
func NewService(st store.Store, db *gorm.DB, pageSize int, pagesPerSec float64, logger zerolog.Logger) *Service {
	if pageSize <= 0 {
		pageSize = 50
	}
	if pagesPerSec <= 0 {
		pagesPerSec = 2
	}
	return &Service{
		store:    st,
		db:       db,
		limiter:  rate.NewLimiter(rate.Limit(pagesPerSec), 1),
		pageSize: pageSize,
		log:      logger,
	}
}

// Backfill walks every entity of the given kind in cursor pages and fills
// counter fields that are absent with the true cardinality of the backing
// subcollection. Fields that are present, right or wrong, are left
// alone; Verify reports those. Idempotent: a second run updates nothing
// because repaired fields are no longer missing.
func (s *Service) Backfill(ctx context.Context, kind EntityKind) (Report, error) {
	sources, ok := counterSources[kind]
	if !ok {
		return Report{}, fmt.Errorf("reconcile: unknown entity kind %q", kind)
	}

	run := s.beginRun("backfill:" + string(kind))
	var rep Report
	cursor := ""
	for {
		docs, err := s.store.ListPage(ctx, string(kind), cursor, s.pageSize)
		if err != nil {
			s.finishRun(run, rep, 0, err)
			return rep, fmt.Errorf("reconcile: listing %s page after %q: %w", kind, cursor, err)
		}
		if len(docs) == 0 {
			break
		}

		batch := store.NewBatch()
		pageUpdated := 0
		for _, doc := range docs {
			rep.Processed++
			fields, err := s.missingCounters(ctx, string(kind), doc, sources)
			if err != nil {
				rep.Failed++
				s.log.Warn().Err(err).Str("path", doc.Path).Msg("backfill entity failed")
				continue
			}
			if len(fields) == 0 {
				rep.Skipped++
				continue
			}
			batch.Update(doc.Path, fields)
			pageUpdated++
		}

		if batch.Len() > 0 {
			if err := s.store.Apply(ctx, batch); err != nil {
				rep.Failed += pageUpdated
				s.log.Error().Err(err).Str("kind", string(kind)).Msg("backfill page batch failed")
			} else {
				rep.Updated += pageUpdated
				metrics.ReconcileUpdates.WithLabelValues(string(kind)).Add(float64(pageUpdated))
			}
		}

		cursor = docs[len(docs)-1].ID
		if len(docs) < s.pageSize {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			s.finishRun(run, rep, 0, err)
			return rep, err
		}
	}

	s.finishRun(run, rep, 0, nil)
	s.log.Info().
		Str("kind", string(kind)).
		Int("processed", rep.Processed).
		Int("updated", rep.Updated).
		Int("skipped", rep.Skipped).
		Int("failed", rep.Failed).
		Msg("backfill finished")
	return rep, nil
}

// missingCounters recomputes cardinalities for counter fields absent from
// the document. Returns an empty map when the entity needs no repair.
func (s *Service) missingCounters(ctx context.Context, collection string, doc store.Doc, sources map[string]string) (map[string]any, error) {
	fields := make(map[string]any)
	for field, sub := range sources {
		if _, present := doc.Data[field]; present {
			continue
		}
		children, err := s.store.List(ctx, store.SubCollection(collection, doc.ID, sub))
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", sub, err)
		}
		fields[field] = int64(len(children))
	}
	return fields, nil
}

// Verify recomputes every counter of every entity and reports fields that
// are present and numerically wrong. Strictly read-only.
func (s *Service) Verify(ctx context.Context, kind EntityKind) (VerifyReport, error) {
	sources, ok := counterSources[kind]
	if !ok {
		return VerifyReport{}, fmt.Errorf("reconcile: unknown entity kind %q", kind)
	}

	run := s.beginRun("verify:" + string(kind))
	var rep VerifyReport
	cursor := ""
	for {
		docs, err := s.store.ListPage(ctx, string(kind), cursor, s.pageSize)
		if err != nil {
			s.finishRun(run, Report{}, len(rep.Mismatches), err)
			return rep, fmt.Errorf("reconcile: listing %s page after %q: %w", kind, cursor, err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			rep.Checked++
			for field, sub := range sources {
				stored, present := doc.Data[field]
				if !present {
					continue
				}
				children, err := s.store.List(ctx, store.SubCollection(string(kind), doc.ID, sub))
				if err != nil {
					rep.Failed++
					s.log.Warn().Err(err).Str("path", doc.Path).Str("field", field).Msg("verify recount failed")
					continue
				}
				actual := int64(len(children))
				if asInt64(stored) != actual {
					rep.Mismatches = append(rep.Mismatches, Mismatch{
						Path:   doc.Path,
						Field:  field,
						Stored: asInt64(stored),
						Actual: actual,
					})
				}
			}
		}

		cursor = docs[len(docs)-1].ID
		if len(docs) < s.pageSize {
			break
		}
		if err := s.limiter.Wait(ctx); err != nil {
			s.finishRun(run, Report{}, len(rep.Mismatches), err)
			return rep, err
		}
	}

	s.finishRun(run, Report{Processed: rep.Checked, Failed: rep.Failed}, len(rep.Mismatches), nil)
	return rep, nil
}

func asInt64(v any) int64 {
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
