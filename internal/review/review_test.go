package review

import (
	"context"
	"errors"
	"testing"

	"promptsupport/internal/core"
)

type memStore struct {
	runs map[string]*core.RunRecord
}

func (m *memStore) GetRun(runID string) (*core.RunRecord, error) {
	if r, ok := m.runs[runID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) UpdateRun(run *core.RunRecord) error {
	cp := *run
	m.runs[run.RunID] = &cp
	return nil
}

type fakePublisher struct {
	err    error
	called int
}

func (f *fakePublisher) PublishRun(string) error {
	f.called++
	return f.err
}

type fakeRerunner struct {
	err    error
	called int
	stages []string
}

func (f *fakeRerunner) Rerun(_ context.Context, _ string, stages []string) error {
	f.called++
	f.stages = stages
	return f.err
}

func pendingRun() *memStore {
	return &memStore{runs: map[string]*core.RunRecord{
		"run-1": {RunID: "run-1", Status: core.RunPassed, ReviewStatus: core.ReviewPending},
	}}
}

func TestScoreBadge(t *testing.T) {
	excellent := core.MetricsBundle{
		Validation: core.ValidationResult{Passed: true, FidelityScore: 0.97},
		Adjustment: core.AdjustmentResult{ReadabilityScore: 0.9},
	}
	if got := ScoreBadge(excellent); got != BadgeExcellent {
		t.Errorf("badge = %s, want excellent", got)
	}

	good := excellent
	good.QA.Duplicates = []core.DuplicateContent{{ArticleA: "a-01", ArticleB: "a-02"}}
	if got := ScoreBadge(good); got != BadgeGood {
		t.Errorf("badge = %s, want good", got)
	}

	warning := core.MetricsBundle{Validation: core.ValidationResult{Passed: false}}
	if got := ScoreBadge(warning); got != BadgeWarning {
		t.Errorf("badge = %s, want warning", got)
	}
}

func TestApprovePublishes(t *testing.T) {
	store := pendingRun()
	pub := &fakePublisher{}
	svc := NewService(store, pub, &fakeRerunner{})

	if err := svc.Approve("run-1"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if pub.called != 1 {
		t.Errorf("publisher called %d times", pub.called)
	}
	if got := store.runs["run-1"].ReviewStatus; got != core.ReviewPublished {
		t.Errorf("review status = %s", got)
	}
}

func TestApproveSurfacesPublishRefusal(t *testing.T) {
	store := pendingRun()
	pub := &fakePublisher{err: errors.New("coverage below 100%")}
	svc := NewService(store, pub, &fakeRerunner{})

	err := svc.Approve("run-1")
	if err == nil {
		t.Fatal("expected refusal to surface")
	}
	if got := store.runs["run-1"].ReviewStatus; got != core.ReviewApproved {
		t.Errorf("review status = %s, want approved-but-unpublished", got)
	}
}

func TestRejectNeedsReason(t *testing.T) {
	svc := NewService(pendingRun(), &fakePublisher{}, &fakeRerunner{})
	if err := svc.Reject("run-1", ""); err == nil {
		t.Fatal("empty reason accepted")
	}
}

func TestRejectRecordsReason(t *testing.T) {
	store := pendingRun()
	svc := NewService(store, &fakePublisher{}, &fakeRerunner{})
	if err := svc.Reject("run-1", "tone is off"); err != nil {
		t.Fatal(err)
	}
	run := store.runs["run-1"]
	if run.ReviewStatus != core.ReviewRejected || run.RejectReason != "tone is off" {
		t.Errorf("run = %+v", run)
	}
}

func TestRerunResetsGate(t *testing.T) {
	store := pendingRun()
	store.runs["run-1"].ReviewStatus = core.ReviewRejected
	rr := &fakeRerunner{}
	svc := NewService(store, &fakePublisher{}, rr)

	if err := svc.Rerun(context.Background(), "run-1", nil); err != nil {
		t.Fatal(err)
	}
	if rr.called != 1 {
		t.Errorf("rerunner called %d times", rr.called)
	}
	if got := store.runs["run-1"].ReviewStatus; got != core.ReviewPending {
		t.Errorf("review status = %s, want pending", got)
	}
}

func TestRerunForwardsStages(t *testing.T) {
	store := pendingRun()
	rr := &fakeRerunner{}
	svc := NewService(store, &fakePublisher{}, rr)

	if err := svc.Rerun(context.Background(), "run-1", []string{"qa", "adjust"}); err != nil {
		t.Fatal(err)
	}
	if len(rr.stages) != 2 || rr.stages[0] != "qa" || rr.stages[1] != "adjust" {
		t.Errorf("stages = %v, want [qa adjust]", rr.stages)
	}
}

func TestDecisionsRefuseAfterPublish(t *testing.T) {
	store := pendingRun()
	store.runs["run-1"].ReviewStatus = core.ReviewPublished
	svc := NewService(store, &fakePublisher{}, &fakeRerunner{})

	if err := svc.Reject("run-1", "late"); !errors.Is(err, ErrAlreadyPublished) {
		t.Errorf("reject after publish: %v", err)
	}
	if err := svc.Rerun(context.Background(), "run-1", nil); !errors.Is(err, ErrAlreadyPublished) {
		t.Errorf("rerun after publish: %v", err)
	}
}
