package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptsupport/internal/config"
	"promptsupport/internal/core"
	"promptsupport/internal/extract"
	"promptsupport/internal/oracle"
	"promptsupport/internal/pipeline"
	"promptsupport/internal/review"
	"promptsupport/internal/store"
)

type testEnv struct {
	server *Server
	store  *store.Store
	runID  string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	p, err := pipeline.Build(st, oracle.NewChain(time.Second), &config.Config{})
	require.NoError(t, err)

	doc, err := extract.FromText("setup-guide", guideFixture())
	require.NoError(t, err)
	res, err := p.Process(context.Background(), doc, pipeline.ProcessOptions{})
	require.NoError(t, err)

	reviews := review.NewService(st, p, p)
	return &testEnv{
		server: New(st, reviews, config.Server{Port: 0}),
		store:  st,
		runID:  res.Run.RunID,
	}
}

func guideFixture() []byte {
	var b strings.Builder
	b.WriteString("# Setup Guide\n\n")
	for _, heading := range []string{"Installation", "Configuration", "Troubleshooting"} {
		b.WriteString("## " + heading + "\n\n")
		for i := 0; i < 6; i++ {
			b.WriteString("The " + strings.ToLower(heading) + " step covers another part of the product setup work. ")
		}
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := setupEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndGetRuns(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Runs []RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, env.runID, list.Runs[0].RunID)
	assert.Equal(t, core.RunPassed, list.Runs[0].Status)
	assert.NotEqual(t, review.BadgeWarning, list.Runs[0].Badge)

	rec = env.do(t, http.MethodGet, "/api/runs/"+env.runID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiagnostics(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodGet, "/api/runs/"+env.runID+"/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var diag Diagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	require.NotNil(t, diag.Run)
	assert.NotNil(t, diag.Analysis)
	assert.NotNil(t, diag.Outline)
	assert.NotEmpty(t, diag.Articles)
	assert.NotNil(t, diag.Validation)
}

func TestStageDiagnostics(t *testing.T) {
	env := setupEnv(t)

	for _, stage := range []string{"analysis", "global_outline", "article_outlines", "prewrites", "articles", "validation", "qa", "adjustment"} {
		rec := env.do(t, http.MethodGet, "/api/runs/"+env.runID+"/diagnostics/"+stage, "")
		assert.Equal(t, http.StatusOK, rec.Code, "stage %s", stage)
	}

	rec := env.do(t, http.MethodGet, "/api/runs/"+env.runID+"/diagnostics/bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewApprovePublishes(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/review", `{"decision":"approve"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, core.ReviewPublished, summary.ReviewStatus)

	rec = env.do(t, http.MethodGet, "/api/docs/setup-guide/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var versions struct {
		Versions []core.VersionRecord `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	require.Len(t, versions.Versions, 1)
	assert.Equal(t, env.runID, versions.Versions[0].RunID)

	// Decisions on a published run are refused.
	rec = env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/review", `{"decision":"reject","reason":"late"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReviewRejectNeedsReason(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/review", `{"decision":"reject"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/review", `{"decision":"reject","reason":"tone is off"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, core.ReviewRejected, summary.ReviewStatus)
}

func TestReviewBadDecision(t *testing.T) {
	env := setupEnv(t)
	rec := env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/review", `{"decision":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRerunBumpsRevision(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/rerun", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Revision)
	assert.Equal(t, core.ReviewPending, summary.ReviewStatus)
}

func TestRerunStageSubsetKeepsUpstream(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/rerun", `{"stages":["qa","adjust"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Revision)

	// Upstream artifacts were carried forward, not regenerated.
	a1, err := env.store.GetAnalysis(env.runID, 1)
	require.NoError(t, err)
	a2, err := env.store.GetAnalysis(env.runID, 2)
	require.NoError(t, err)
	assert.Equal(t, a1.ID, a2.ID)

	q1, err := env.store.GetQAResult(env.runID, 1)
	require.NoError(t, err)
	q2, err := env.store.GetQAResult(env.runID, 2)
	require.NoError(t, err)
	assert.NotEqual(t, q1.ID, q2.ID)
}

func TestRerunRejectsUnknownStage(t *testing.T) {
	env := setupEnv(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+env.runID+"/rerun", `{"stages":["publish"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	run, err := env.store.GetRun(env.runID)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Revision)
}

func TestDocVersionsNotFound(t *testing.T) {
	env := setupEnv(t)
	rec := env.do(t, http.MethodGet, "/api/docs/unknown-doc/versions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
