// Package review implements stage 11: the human gate. It reduces the
// stage 6-8 diagnostics to a coarse quality badge and executes reviewer
// decisions against the run record. Publishing and re-running are injected
// so the review surface stays independent of pipeline wiring.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptsupport/internal/core"
	"promptsupport/internal/logger"
)

// Badge is the coarse quality signal shown to reviewers.
type Badge string

const (
	BadgeExcellent Badge = "excellent"
	BadgeGood      Badge = "good"
	BadgeWarning   Badge = "warning"
)

// ScoreBadge reduces a metrics bundle to a badge with fixed thresholds.
func ScoreBadge(m core.MetricsBundle) Badge {
	v := m.Validation
	if !v.Passed {
		return BadgeWarning
	}
	clean := len(m.QA.Duplicates) == 0 && len(m.QA.InvalidLinks) == 0 && len(m.QA.DuplicateFAQs) == 0
	if v.FidelityScore >= 0.95 && clean && m.Adjustment.ReadabilityScore >= 0.8 {
		return BadgeExcellent
	}
	return BadgeGood
}

// Store is the persistence the reviewer needs.
type Store interface {
	GetRun(runID string) (*core.RunRecord, error)
	UpdateRun(run *core.RunRecord) error
}

// Publisher publishes an approved run.
type Publisher interface {
	PublishRun(runID string) error
}

// Rerunner re-executes stages for a run, appending a new artifact
// revision. An empty stage list means every stage.
type Rerunner interface {
	Rerun(ctx context.Context, runID string, stages []string) error
}

// Service executes reviewer decisions.
type Service struct {
	store     Store
	publisher Publisher
	rerunner  Rerunner
}

func NewService(store Store, publisher Publisher, rerunner Rerunner) *Service {
	return &Service{store: store, publisher: publisher, rerunner: rerunner}
}

var ErrAlreadyPublished = errors.New("run already published")

// Approve marks the run approved and publishes it. A publish refusal
// leaves the run approved but unpublished, with the refusal returned.
func (s *Service) Approve(runID string) error {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	if run.ReviewStatus == core.ReviewPublished {
		return ErrAlreadyPublished
	}

	run.ReviewStatus = core.ReviewApproved
	run.RejectReason = ""
	run.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRun(run); err != nil {
		return err
	}

	if err := s.publisher.PublishRun(runID); err != nil {
		return fmt.Errorf("approved but not published: %w", err)
	}

	run.ReviewStatus = core.ReviewPublished
	run.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRun(run); err != nil {
		return err
	}
	logger.Info("run approved and published", "run_id", runID)
	return nil
}

// Reject records the reviewer's reason and blocks publishing.
func (s *Service) Reject(runID, reason string) error {
	if reason == "" {
		return errors.New("a rejection needs a reason")
	}
	run, err := s.store.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	if run.ReviewStatus == core.ReviewPublished {
		return ErrAlreadyPublished
	}

	run.ReviewStatus = core.ReviewRejected
	run.RejectReason = reason
	run.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateRun(run); err != nil {
		return err
	}
	logger.Info("run rejected", "run_id", runID, "reason", reason)
	return nil
}

// Rerun re-executes the named stages (all of them when the list is
// empty), appending artifacts under the next revision. The review gate
// resets to pending.
func (s *Service) Rerun(ctx context.Context, runID string, stages []string) error {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	if run.ReviewStatus == core.ReviewPublished {
		return ErrAlreadyPublished
	}

	if err := s.rerunner.Rerun(ctx, runID, stages); err != nil {
		return err
	}

	run, err = s.store.GetRun(runID)
	if err != nil {
		return err
	}
	run.ReviewStatus = core.ReviewPending
	run.UpdatedAt = time.Now().UTC()
	return s.store.UpdateRun(run)
}
