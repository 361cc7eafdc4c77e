package pipeline

import (
	"context"

	"promptsupport/internal/core"
	"promptsupport/internal/generate"
	"promptsupport/internal/validate"
)

// DocumentAnalyzer classifies a normalized document and picks the
// decomposition granularity.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, runID string, doc *core.NormalizedDocument) (*core.AnalysisResult, error)
}

// GlobalPlanner partitions the document's blocks into article plans.
type GlobalPlanner interface {
	PlanGlobal(ctx context.Context, runID string, doc *core.NormalizedDocument, analysis *core.AnalysisResult) (*core.GlobalOutline, error)
}

// ArticlePlanner turns one article plan into a sectioned outline.
type ArticlePlanner interface {
	PlanArticle(ctx context.Context, runID string, doc *core.NormalizedDocument, plan *core.ArticlePlan) (*core.ArticleOutline, error)
}

// FactExtractor collects grounded facts for each outline section.
type FactExtractor interface {
	Extract(ctx context.Context, runID string, doc *core.NormalizedDocument, outline *core.ArticleOutline) (*core.PrewriteData, error)
}

// ArticleGenerator drafts an article from its outline and prewrite data.
type ArticleGenerator interface {
	Generate(ctx context.Context, in generate.Input) (*core.Article, error)
}

// Validator scores the drafted article set against the quality gates.
type Validator interface {
	Validate(ctx context.Context, in validate.Input) (*core.ValidationResult, error)
}

// QAAnalyzer runs cross-article consistency checks.
type QAAnalyzer interface {
	Analyze(runID string, articles []*core.Article) (*core.QAResult, error)
}

// Adjuster reconciles article lengths against the granularity band.
type Adjuster interface {
	Adjust(runID string, articles *[]*core.Article, granularity core.Granularity) (*core.AdjustmentResult, error)
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateRun(run *core.RunRecord) error
	UpdateRun(run *core.RunRecord) error
	GetRun(runID string) (*core.RunRecord, error)

	PutDocument(runID string, revision int, doc *core.NormalizedDocument) error
	GetDocument(runID string, revision int) (*core.NormalizedDocument, error)
	PutAnalysis(revision int, a *core.AnalysisResult) error
	GetAnalysis(runID string, revision int) (*core.AnalysisResult, error)
	PutGlobalOutline(revision int, o *core.GlobalOutline) error
	GetGlobalOutline(runID string, revision int) (*core.GlobalOutline, error)
	PutArticleOutline(revision int, o *core.ArticleOutline) error
	GetArticleOutlines(runID string, revision int) (map[string]*core.ArticleOutline, error)
	PutPrewrite(revision int, p *core.PrewriteData) error
	GetPrewrites(runID string, revision int) (map[string]*core.PrewriteData, error)
	PutArticle(revision int, a *core.Article) error
	GetArticles(runID string, revision int) ([]*core.Article, error)
	DeleteArticle(runID string, revision int, articleID string) error
	PutValidation(revision int, v *core.ValidationResult) error
	GetValidation(runID string, revision int) (*core.ValidationResult, error)
	PutQAResult(revision int, q *core.QAResult) error
	GetQAResult(runID string, revision int) (*core.QAResult, error)
	PutAdjustment(revision int, a *core.AdjustmentResult) error
	GetAdjustment(runID string, revision int) (*core.AdjustmentResult, error)

	GetPublished(docID string, version int) ([]*core.PublishedArticle, error)
}
