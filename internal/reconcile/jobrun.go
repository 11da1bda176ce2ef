package reconcile

import (
	"time"

	"gorm.io/gorm"
)

// JobRun is the relational audit record written for every reconciliation
// run, one row per invocation.
type JobRun struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Job        string    `json:"job" gorm:"index"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Processed  int       `json:"processed"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Mismatches int       `json:"mismatches"`
	Error      string    `json:"error,omitempty"`
}

// Migrate creates the job-run table. Call once at startup when auditing is
// enabled.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(&JobRun{})
}

func (s *Service) beginRun(job string) *JobRun {
	return &JobRun{Job: job, StartedAt: time.Now()}
}

func (s *Service) finishRun(run *JobRun, rep Report, mismatches int, runErr error) {
	run.FinishedAt = time.Now()
	run.Processed = rep.Processed
	run.Updated = rep.Updated
	run.Skipped = rep.Skipped
	run.Failed = rep.Failed
	run.Mismatches = mismatches
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if s.db == nil {
		return
	}
	if err := s.db.Create(run).Error; err != nil {
		s.log.Error().Err(err).Str("job", run.Job).Msg("failed to record job run")
	}
}

// RecentRuns returns the latest audit rows, newest first.
func (s *Service) RecentRuns(limit int) ([]JobRun, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var runs []JobRun
	err := s.db.Order("started_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}
