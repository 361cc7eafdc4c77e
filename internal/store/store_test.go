package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptsupport/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(runID string) *core.RunRecord {
	now := time.Now().UTC()
	return &core.RunRecord{
		RunID:        runID,
		DocID:        "doc-1",
		Version:      1,
		SourceHash:   "abc123",
		Revision:     1,
		Status:       core.RunRunning,
		ReviewStatus: core.ReviewPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateRun(sampleRun("run-1")))

	got, err := s.GetRun("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "doc-1", got.DocID)
	assert.Equal(t, core.RunRunning, got.Status)
	assert.Equal(t, core.ReviewPending, got.ReviewStatus)

	got.Status = core.RunPassed
	got.ReviewStatus = core.ReviewApproved
	got.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateRun(got))

	got, err = s.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, core.RunPassed, got.Status)
	assert.Equal(t, core.ReviewApproved, got.ReviewStatus)

	missing, err := s.GetRun("run-none")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateRunMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateRun(sampleRun("run-ghost"))
	assert.Error(t, err)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	first := sampleRun("run-1")
	first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := sampleRun("run-2")
	second.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateRun(first))
	require.NoError(t, s.CreateRun(second))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)
}

func TestArtifactsAreAppendOnly(t *testing.T) {
	s := newTestStore(t)

	a1 := &core.AnalysisResult{RunID: "run-1", ContentType: "guide", Granularity: core.GranularityShallow}
	a2 := &core.AnalysisResult{RunID: "run-1", ContentType: "tutorial", Granularity: core.GranularityModerate}
	require.NoError(t, s.PutAnalysis(1, a1))
	require.NoError(t, s.PutAnalysis(1, a2))

	got, err := s.GetAnalysis("run-1", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tutorial", got.ContentType)

	n, err := s.ArtifactCount("analyses", "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "earlier revisions must remain on disk")
}

func TestArtifactsScopedByRevision(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutAnalysis(1, &core.AnalysisResult{RunID: "run-1", ContentType: "guide"}))
	require.NoError(t, s.PutAnalysis(2, &core.AnalysisResult{RunID: "run-1", ContentType: "reference"}))

	rev1, err := s.GetAnalysis("run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "guide", rev1.ContentType)

	rev2, err := s.GetAnalysis("run-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "reference", rev2.ContentType)

	none, err := s.GetAnalysis("run-1", 3)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestPerArticleArtifacts(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutArticle(1, &core.Article{ID: "a-02", RunID: "run-1", Title: "Second"}))
	require.NoError(t, s.PutArticle(1, &core.Article{ID: "a-01", RunID: "run-1", Title: "First"}))
	// A rewrite of a-01 within the same revision supersedes the earlier row.
	require.NoError(t, s.PutArticle(1, &core.Article{ID: "a-01", RunID: "run-1", Title: "First, revised"}))

	articles, err := s.GetArticles("run-1", 1)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "a-01", articles[0].ID)
	assert.Equal(t, "First, revised", articles[0].Title)
	assert.Equal(t, "a-02", articles[1].ID)
}

func TestDeleteArticleTombstones(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutArticle(1, &core.Article{ID: "a-01", RunID: "run-1", Title: "First"}))
	require.NoError(t, s.PutArticle(1, &core.Article{ID: "a-02", RunID: "run-1", Title: "Second"}))
	require.NoError(t, s.DeleteArticle("run-1", 1, "a-01"))

	articles, err := s.GetArticles("run-1", 1)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "a-02", articles[0].ID)

	// The tombstone is an appended row; earlier rows stay for audit.
	count, err := s.ArtifactCount("articles", "run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Tombstones are scoped to their revision.
	require.NoError(t, s.PutArticle(2, &core.Article{ID: "a-01", RunID: "run-1", Title: "First again"}))
	articles, err = s.GetArticles("run-1", 2)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "a-01", articles[0].ID)
}

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)

	doc := &core.NormalizedDocument{
		DocID: "doc-1",
		Title: "Guide",
		Blocks: []core.ContentBlock{
			{ID: "b-0001", Type: core.BlockHeading, Level: 1, Content: "Guide"},
			{ID: "b-0002", Type: core.BlockParagraph, Content: "Welcome."},
		},
	}
	require.NoError(t, s.PutDocument("run-1", 1, doc))

	got, err := s.GetDocument("run-1", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "b-0002", got.Blocks[1].ID)
}

func TestPrewriteAndOutlinePerArticle(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutArticleOutline(1, &core.ArticleOutline{RunID: "run-1", ArticleID: "a-01", Title: "First"}))
	require.NoError(t, s.PutArticleOutline(1, &core.ArticleOutline{RunID: "run-1", ArticleID: "a-02", Title: "Second"}))
	require.NoError(t, s.PutPrewrite(1, &core.PrewriteData{RunID: "run-1", ArticleID: "a-01"}))

	outlines, err := s.GetArticleOutlines("run-1", 1)
	require.NoError(t, err)
	require.Len(t, outlines, 2)
	assert.Equal(t, "Second", outlines["a-02"].Title)

	prewrites, err := s.GetPrewrites("run-1", 1)
	require.NoError(t, err)
	require.Len(t, prewrites, 1)
	assert.Equal(t, "a-01", prewrites["a-01"].ArticleID)
}

func TestVersionsByHashAndLatest(t *testing.T) {
	s := newTestStore(t)

	v1 := &core.VersionRecord{DocID: "doc-1", Version: 1, SourceHash: "h1", RunID: "run-1", CreatedAt: time.Now().UTC()}
	v2 := &core.VersionRecord{
		DocID: "doc-1", Version: 2, SourceHash: "h2", RunID: "run-2",
		Supersedes: "run-1",
		Diff:       &core.VersionDiff{PriorVersion: 1, Added: []string{"a-03"}},
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.PutVersion(v1))
	require.NoError(t, s.PutVersion(v2))

	byHash, err := s.GetVersionByHash("doc-1", "h1")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, 1, byHash.Version)

	latest, err := s.GetLatestVersion("doc-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Version)
	require.NotNil(t, latest.Diff)
	assert.Equal(t, []string{"a-03"}, latest.Diff.Added)
	assert.Equal(t, "run-1", latest.Supersedes)

	none, err := s.GetVersionByHash("doc-1", "h-unknown")
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := s.ListVersions("doc-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Version)
}

func TestPublishedRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rec := &core.PublishedArticle{
		ArticleID: "a-01",
		RunID:     "run-1",
		DocID:     "doc-1",
		Version:   1,
		Title:     "First",
		Markdown:  "# First",
		Provenance: map[string][]string{
			"install-steps": {"b-0001", "b-0002"},
		},
		PublishedAt: time.Now().UTC(),
	}
	require.NoError(t, s.PutPublished(rec))

	got, err := s.GetPublished("doc-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "First", got[0].Title)
	assert.Equal(t, []string{"b-0001", "b-0002"}, got[0].Provenance["install-steps"])

	// Republishing the same article replaces, not duplicates.
	rec.Title = "First, corrected"
	require.NoError(t, s.PutPublished(rec))
	got, err = s.GetPublished("doc-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "First, corrected", got[0].Title)
}
