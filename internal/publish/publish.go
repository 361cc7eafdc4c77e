// Package publish implements stage 9. Publishing is refusal-first: the
// gate re-checks its preconditions itself rather than trusting callers,
// because a published set is the system of record and cannot be partially
// correct.
package publish

import (
	"errors"
	"fmt"
	"time"

	"promptsupport/internal/core"
	"promptsupport/internal/logger"
)

// ErrPreconditions is wrapped by every refusal.
var ErrPreconditions = errors.New("publish preconditions not met")

// Store is the persistence the publisher needs.
type Store interface {
	PutPublished(rec *core.PublishedArticle) error
}

// Publisher writes approved article sets to the published collection.
type Publisher struct {
	store Store
}

func New(store Store) *Publisher {
	return &Publisher{store: store}
}

// Input is the full state the gate inspects.
type Input struct {
	Run        *core.RunRecord
	Articles   []*core.Article
	Validation *core.ValidationResult
	QA         *core.QAResult
	Adjustment *core.AdjustmentResult
}

// Publish verifies preconditions, denormalizes each article with its
// provenance and metrics, and writes the set. On success every article's
// status moves to published. Refusals report every violated condition.
func (p *Publisher) Publish(in Input) ([]*core.PublishedArticle, error) {
	if err := p.check(in); err != nil {
		logger.Warn("publish refused", "run_id", in.Run.RunID, "error", err.Error())
		return nil, err
	}

	metrics := core.MetricsBundle{Validation: *in.Validation}
	if in.QA != nil {
		metrics.QA = *in.QA
	}
	if in.Adjustment != nil {
		metrics.Adjustment = *in.Adjustment
	}

	now := time.Now().UTC()
	var published []*core.PublishedArticle
	for _, art := range in.Articles {
		rec := &core.PublishedArticle{
			ArticleID:    art.ID,
			RunID:        in.Run.RunID,
			DocID:        in.Run.DocID,
			Version:      in.Run.Version,
			Title:        art.Title,
			Markdown:     art.Markdown,
			HTML:         art.HTML,
			TOC:          art.TOC,
			FAQ:          art.FAQ,
			RelatedLinks: art.RelatedLinks,
			Provenance:   provenance(art),
			Metrics:      metrics,
			PublishedAt:  now,
		}
		if err := p.store.PutPublished(rec); err != nil {
			return nil, fmt.Errorf("write published article %s: %w", art.ID, err)
		}
		published = append(published, rec)
	}

	for _, art := range in.Articles {
		art.Status = core.StatusPublished
	}
	logger.Info("run published", "run_id", in.Run.RunID, "doc_id", in.Run.DocID, "articles", len(published))
	return published, nil
}

func (p *Publisher) check(in Input) error {
	var problems []string

	if in.Run == nil {
		return fmt.Errorf("%w: no run record", ErrPreconditions)
	}
	if in.Validation == nil {
		problems = append(problems, "no validation result")
	} else {
		if !in.Validation.Passed {
			problems = append(problems, "validation did not pass")
		}
		if in.Validation.CoveragePercent < 100 {
			problems = append(problems, fmt.Sprintf("coverage %.1f%% below 100%%", in.Validation.CoveragePercent))
		}
	}
	if len(in.Articles) == 0 {
		problems = append(problems, "no articles")
	}
	for _, art := range in.Articles {
		m := art.Metadata
		if m.RunID != in.Run.RunID {
			problems = append(problems, fmt.Sprintf("article %s belongs to run %s", art.ID, m.RunID))
		}
		if m.AnalysisID == "" || m.OutlineID == "" || m.PrewriteID == "" {
			problems = append(problems, fmt.Sprintf("article %s has an incomplete provenance chain", art.ID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrPreconditions, problems)
	}
	return nil
}

// provenance maps each section anchor to its source block IDs.
func provenance(art *core.Article) map[string][]string {
	out := map[string][]string{}
	for heading, blocks := range art.Metadata.SectionBlockIDs {
		out[core.Anchor(heading)] = append([]string(nil), blocks...)
	}
	return out
}
