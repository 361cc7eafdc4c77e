// Package pipeline orchestrates the end-to-end decomposition workflow:
// analysis, planning, prewrite, generation, validation, cross-article QA,
// adjustment and versioning. Publishing is deferred to reviewer approval.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"promptsupport/internal/adjust"
	"promptsupport/internal/core"
	"promptsupport/internal/generate"
	"promptsupport/internal/logger"
	"promptsupport/internal/publish"
	"promptsupport/internal/validate"
	"promptsupport/internal/version"
)

const defaultWorkers = 4

// Stage names accepted by Rerun. Draft covers the per-article fan-out:
// outline, prewrite and generation run as one unit per article.
const (
	StageAnalyze  = "analyze"
	StageOutline  = "outline"
	StageDraft    = "draft"
	StageValidate = "validate"
	StageQA       = "qa"
	StageAdjust   = "adjust"
)

var stageOrder = []string{StageAnalyze, StageOutline, StageDraft, StageValidate, StageQA, StageAdjust}

// ParseStages normalizes rerun stage names and rejects unknown ones. An
// empty list selects every stage.
func ParseStages(names []string) ([]string, error) {
	var out []string
	for _, n := range names {
		name := strings.ToLower(strings.TrimSpace(n))
		if name == "" {
			continue
		}
		known := false
		for _, k := range stageOrder {
			if k == name {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown stage %q (valid: %s)", n, strings.Join(stageOrder, ", "))
		}
		out = append(out, name)
	}
	return out, nil
}

// stageSet selects which stages a revision re-executes. nil selects all.
type stageSet map[string]bool

func newStageSet(names []string) (stageSet, error) {
	parsed, err := ParseStages(names)
	if err != nil || len(parsed) == 0 {
		return nil, err
	}
	set := stageSet{}
	for _, name := range parsed {
		set[name] = true
	}
	return set, nil
}

func (s stageSet) runs(name string) bool { return s == nil || s[name] }

// Pipeline coordinates the stage components.
type Pipeline struct {
	store     Store
	analyzer  DocumentAnalyzer
	global    GlobalPlanner
	articles  ArticlePlanner
	extractor FactExtractor
	generator ArticleGenerator
	validator Validator
	qa        QAAnalyzer
	adjuster  Adjuster
	versioner *version.Versioner
	publisher *publish.Publisher

	workers int
}

// NewPipeline wires the stage components together. workers bounds the
// per-article fan-out in the planning, prewrite and generation stages.
func NewPipeline(
	store Store,
	analyzer DocumentAnalyzer,
	global GlobalPlanner,
	articles ArticlePlanner,
	extractor FactExtractor,
	generator ArticleGenerator,
	validator Validator,
	qa QAAnalyzer,
	adjuster Adjuster,
	versioner *version.Versioner,
	publisher *publish.Publisher,
	workers int,
) *Pipeline {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Pipeline{
		store:     store,
		analyzer:  analyzer,
		global:    global,
		articles:  articles,
		extractor: extractor,
		generator: generator,
		validator: validator,
		qa:        qa,
		adjuster:  adjuster,
		versioner: versioner,
		publisher: publisher,
		workers:   workers,
	}
}

// ProcessOptions configures a single document run.
type ProcessOptions struct {
	// Media assets already stored for this document; passed to every
	// article by reference.
	Media []core.MediaRef
}

// Result is the outcome of processing one document.
type Result struct {
	Run        *core.RunRecord
	Articles   []*core.Article
	Validation *core.ValidationResult
	QA         *core.QAResult
	Adjustment *core.AdjustmentResult
	Version    *core.VersionRecord

	// Reused reports that identical content had already been processed
	// and the prior run's artifacts were returned unchanged.
	Reused bool
}

// Process runs the full stage sequence for a document. Reprocessing
// byte-identical content returns the existing run without invoking any
// stage.
func (p *Pipeline) Process(ctx context.Context, doc *core.NormalizedDocument, opts ProcessOptions) (*Result, error) {
	if doc == nil || len(doc.Blocks) == 0 {
		return nil, fmt.Errorf("document %q has no content blocks", docID(doc))
	}

	sourceHash := version.Hash(doc)
	if existing, err := p.versioner.Lookup(doc.DocID, sourceHash); err != nil {
		return nil, fmt.Errorf("version lookup: %w", err)
	} else if existing != nil {
		logger.Info("content unchanged, reusing run", "doc_id", doc.DocID, "run_id", existing.RunID, "version", existing.Version)
		return p.loadResult(existing.RunID, true)
	}

	now := time.Now().UTC()
	run := &core.RunRecord{
		RunID:        uuid.NewString(),
		DocID:        doc.DocID,
		SourceHash:   sourceHash,
		Revision:     1,
		Status:       core.RunRunning,
		ReviewStatus: core.ReviewPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.CreateRun(run); err != nil {
		return nil, err
	}
	if err := p.store.PutDocument(run.RunID, run.Revision, doc); err != nil {
		return nil, err
	}
	logger.Info("run started", "run_id", run.RunID, "doc_id", doc.DocID, "blocks", len(doc.Blocks))

	res, err := p.execute(ctx, run, doc, opts.Media, nil)
	if err != nil {
		return nil, err
	}

	prior, err := p.priorPublished(doc.DocID)
	if err != nil {
		return nil, err
	}
	rec, err := p.versioner.Record(doc.DocID, sourceHash, run.RunID, res.Articles, prior)
	if err != nil {
		return nil, fmt.Errorf("record version: %w", err)
	}
	res.Version = rec
	run.Version = rec.Version
	run.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateRun(run); err != nil {
		return nil, err
	}

	logger.Info("run complete", "run_id", run.RunID, "status", run.Status,
		"articles", len(res.Articles), "version", rec.Version)
	return res, nil
}

// Rerun re-executes stages for an existing run, appending a new artifact
// revision. An empty stage list reruns everything; a named subset reruns
// only those stages and carries the prior revision's artifacts forward for
// the rest. The reviewer gate resets to pending separately.
func (p *Pipeline) Rerun(ctx context.Context, runID string, stages []string) error {
	set, err := newStageSet(stages)
	if err != nil {
		return err
	}
	run, err := p.store.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	doc, err := p.store.GetDocument(runID, 1)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("run %s has no stored document", runID)
	}

	run.Revision++
	run.Status = core.RunRunning
	if err := p.store.PutDocument(runID, run.Revision, doc); err != nil {
		return err
	}
	logger.Info("rerun started", "run_id", runID, "revision", run.Revision, "stages", strings.Join(stages, ","))

	if _, err := p.execute(ctx, run, doc, nil, set); err != nil {
		return err
	}
	run.UpdatedAt = time.Now().UTC()
	return p.store.UpdateRun(run)
}

// PublishRun publishes an approved run's latest article revision.
func (p *Pipeline) PublishRun(runID string) error {
	run, err := p.store.GetRun(runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	articles, err := p.store.GetArticles(runID, run.Revision)
	if err != nil {
		return err
	}
	validation, err := p.store.GetValidation(runID, run.Revision)
	if err != nil {
		return err
	}
	qaRes, err := p.store.GetQAResult(runID, run.Revision)
	if err != nil {
		return err
	}
	adjustment, err := p.store.GetAdjustment(runID, run.Revision)
	if err != nil {
		return err
	}

	published, err := p.publisher.Publish(publish.Input{
		Run:        run,
		Articles:   articles,
		Validation: validation,
		QA:         qaRes,
		Adjustment: adjustment,
	})
	if err != nil {
		return err
	}

	// Persist the status flip to published.
	for _, a := range articles {
		if err := p.store.PutArticle(run.Revision, a); err != nil {
			return err
		}
	}
	logger.Info("run published", "run_id", runID, "articles", len(published), "version", run.Version)
	return nil
}

type articleDraft struct {
	outline  *core.ArticleOutline
	prewrite *core.PrewriteData
	article  *core.Article
}

// execute runs stages 1 through 8 for one revision and persists each
// artifact as it is produced. Stages outside the set reuse the previous
// revision's artifacts, re-stored under the current revision so every
// revision is self-contained.
func (p *Pipeline) execute(ctx context.Context, run *core.RunRecord, doc *core.NormalizedDocument, media []core.MediaRef, stages stageSet) (*Result, error) {
	rev := run.Revision
	prev := rev - 1

	var analysis *core.AnalysisResult
	if stages.runs(StageAnalyze) {
		var err error
		analysis, err = p.analyzer.Analyze(ctx, run.RunID, doc)
		if err != nil {
			return nil, fmt.Errorf("analysis: %w", err)
		}
		logger.Info("analysis complete", "run_id", run.RunID,
			"content_type", analysis.ContentType, "granularity", analysis.Granularity, "source", analysis.Source)
	} else {
		var err error
		analysis, err = p.store.GetAnalysis(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		if analysis == nil {
			return nil, fmt.Errorf("stage %s skipped but revision %d has no analysis", StageAnalyze, prev)
		}
	}
	if err := p.store.PutAnalysis(rev, analysis); err != nil {
		return nil, err
	}

	var global *core.GlobalOutline
	if stages.runs(StageOutline) {
		var err error
		global, err = p.global.PlanGlobal(ctx, run.RunID, doc, analysis)
		if err != nil {
			return nil, fmt.Errorf("global outline: %w", err)
		}
		logger.Info("global outline complete", "run_id", run.RunID,
			"articles", len(global.Articles), "discarded", len(global.Discarded), "source", global.Source)
	} else {
		var err error
		global, err = p.store.GetGlobalOutline(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		if global == nil {
			return nil, fmt.Errorf("stage %s skipped but revision %d has no global outline", StageOutline, prev)
		}
	}
	if err := p.store.PutGlobalOutline(rev, global); err != nil {
		return nil, err
	}

	var articles []*core.Article
	prewrites := map[string]*core.PrewriteData{}
	if stages.runs(StageDraft) {
		drafts, err := p.draftArticles(ctx, run.RunID, doc, analysis, global, media)
		if err != nil {
			return nil, err
		}
		for _, d := range drafts {
			if err := p.store.PutArticleOutline(rev, d.outline); err != nil {
				return nil, err
			}
			if err := p.store.PutPrewrite(rev, d.prewrite); err != nil {
				return nil, err
			}
			articles = append(articles, d.article)
			prewrites[d.prewrite.ArticleID] = d.prewrite
		}
	} else {
		outlines, err := p.store.GetArticleOutlines(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		prewrites, err = p.store.GetPrewrites(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		articles, err = p.store.GetArticles(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		if len(articles) == 0 {
			return nil, fmt.Errorf("stage %s skipped but revision %d has no articles", StageDraft, prev)
		}
		for _, o := range outlines {
			if err := p.store.PutArticleOutline(rev, o); err != nil {
				return nil, err
			}
		}
		for _, pw := range prewrites {
			if err := p.store.PutPrewrite(rev, pw); err != nil {
				return nil, err
			}
		}
	}
	for _, a := range articles {
		if err := p.store.PutArticle(rev, a); err != nil {
			return nil, err
		}
	}
	draftIDs := make(map[string]bool, len(articles))
	for _, a := range articles {
		draftIDs[a.ID] = true
	}

	var validation *core.ValidationResult
	if stages.runs(StageValidate) {
		var err error
		validation, err = p.validator.Validate(ctx, validate.Input{
			RunID:     run.RunID,
			Doc:       doc,
			Outline:   global,
			Prewrites: prewrites,
			Articles:  articles,
		})
		if err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
		logger.Info("validation complete", "run_id", run.RunID, "passed", validation.Passed,
			"fidelity", validation.FidelityScore, "coverage", validation.CoveragePercent,
			"placeholders", len(validation.Placeholders), "style", validation.StyleCompliancePercent)
	} else {
		var err error
		validation, err = p.store.GetValidation(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		if validation == nil {
			return nil, fmt.Errorf("stage %s skipped but revision %d has no validation", StageValidate, prev)
		}
	}
	if err := p.store.PutValidation(rev, validation); err != nil {
		return nil, err
	}

	var qaRes *core.QAResult
	if stages.runs(StageQA) {
		var err error
		qaRes, err = p.qa.Analyze(run.RunID, articles)
		if err != nil {
			return nil, fmt.Errorf("cross-article qa: %w", err)
		}
	} else {
		var err error
		qaRes, err = p.store.GetQAResult(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		if qaRes == nil {
			return nil, fmt.Errorf("stage %s skipped but revision %d has no qa result", StageQA, prev)
		}
	}
	if err := p.store.PutQAResult(rev, qaRes); err != nil {
		return nil, err
	}

	var adjustment *core.AdjustmentResult
	if stages.runs(StageAdjust) {
		var err error
		adjustment, err = p.adjuster.Adjust(run.RunID, &articles, analysis.Granularity)
		if err != nil {
			return nil, fmt.Errorf("adjustment: %w", err)
		}
	} else {
		var err error
		adjustment, err = p.store.GetAdjustment(run.RunID, prev)
		if err != nil {
			return nil, err
		}
		if adjustment == nil {
			return nil, fmt.Errorf("stage %s skipped but revision %d has no adjustment", StageAdjust, prev)
		}
	}
	if err := p.store.PutAdjustment(rev, adjustment); err != nil {
		return nil, err
	}

	// QA and adjustment rewrite markdown and reshape the set: re-render
	// HTML so both bodies agree, re-store the survivors (within a
	// revision the latest row wins), and tombstone merged-away articles
	// so the stored set matches the adjusted set.
	adjust.SortByID(articles)
	for _, a := range articles {
		html, err := generate.RenderHTML(a.Markdown)
		if err != nil {
			return nil, fmt.Errorf("render article %s: %w", a.ID, err)
		}
		a.HTML = html
		if err := p.store.PutArticle(rev, a); err != nil {
			return nil, err
		}
		delete(draftIDs, a.ID)
	}
	for id := range draftIDs {
		if err := p.store.DeleteArticle(run.RunID, rev, id); err != nil {
			return nil, err
		}
	}

	if validation.Passed {
		run.Status = core.RunPassed
	} else {
		run.Status = core.RunPartial
	}

	return &Result{
		Run:        run,
		Articles:   articles,
		Validation: validation,
		QA:         qaRes,
		Adjustment: adjustment,
	}, nil
}

// draftArticles fans stages 3-5 out across a bounded worker pool, one task
// per planned article. Results keep plan order.
func (p *Pipeline) draftArticles(ctx context.Context, runID string, doc *core.NormalizedDocument, analysis *core.AnalysisResult, global *core.GlobalOutline, media []core.MediaRef) ([]articleDraft, error) {
	index := make(map[string]string, len(global.Articles))
	for _, plan := range global.Articles {
		index[plan.ArticleID] = plan.ProposedTitle
	}

	drafts := make([]articleDraft, len(global.Articles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range global.Articles {
		i := i
		plan := global.Articles[i]
		g.Go(func() error {
			outline, err := p.articles.PlanArticle(gctx, runID, doc, &plan)
			if err != nil {
				return fmt.Errorf("article outline %s: %w", plan.ArticleID, err)
			}
			pw, err := p.extractor.Extract(gctx, runID, doc, outline)
			if err != nil {
				return fmt.Errorf("prewrite %s: %w", plan.ArticleID, err)
			}
			article, err := p.generator.Generate(gctx, generate.Input{
				RunID:        runID,
				AnalysisID:   analysis.ID,
				OutlineID:    outline.ID,
				PrewriteID:   pw.ID,
				Outline:      outline,
				Prewrite:     pw,
				ArticleIndex: index,
				Media:        media,
			})
			if err != nil {
				return fmt.Errorf("generate %s: %w", plan.ArticleID, err)
			}
			drafts[i] = articleDraft{outline: outline, prewrite: pw, article: article}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return drafts, nil
}

// loadResult reconstructs a Result from stored artifacts.
func (p *Pipeline) loadResult(runID string, reused bool) (*Result, error) {
	run, err := p.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	articles, err := p.store.GetArticles(runID, run.Revision)
	if err != nil {
		return nil, err
	}
	validation, err := p.store.GetValidation(runID, run.Revision)
	if err != nil {
		return nil, err
	}
	qaRes, err := p.store.GetQAResult(runID, run.Revision)
	if err != nil {
		return nil, err
	}
	adjustment, err := p.store.GetAdjustment(runID, run.Revision)
	if err != nil {
		return nil, err
	}
	rec, err := p.versioner.Lookup(run.DocID, run.SourceHash)
	if err != nil {
		return nil, err
	}
	return &Result{
		Run:        run,
		Articles:   articles,
		Validation: validation,
		QA:         qaRes,
		Adjustment: adjustment,
		Version:    rec,
		Reused:     reused,
	}, nil
}

// priorPublished returns the published set of the latest version, if any.
func (p *Pipeline) priorPublished(dID string) ([]*core.PublishedArticle, error) {
	latest, err := p.versioner.Latest(dID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return p.store.GetPublished(dID, latest.Version)
}

func docID(doc *core.NormalizedDocument) string {
	if doc == nil {
		return ""
	}
	return doc.DocID
}
