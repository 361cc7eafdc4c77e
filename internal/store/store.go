// Package store is the SQLite persistence layer. Pipeline artifacts are
// written as whole JSON documents, append-only, keyed by run, revision and
// (where applicable) article; only the run record itself is mutable. One
// table per artifact type keeps the append-only audit trivial to reason
// about.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"promptsupport/internal/core"
)

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the database under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "promptsupport.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

// artifactTables all share the same shape: append-only JSON payloads keyed
// by run, revision and optional article.
var artifactTables = []string{
	"documents",
	"analyses",
	"global_outlines",
	"article_outlines",
	"prewrites",
	"articles",
	"validations",
	"qa_results",
	"adjustments",
}

func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		source_hash TEXT NOT NULL,
		revision INTEGER NOT NULL,
		status TEXT NOT NULL,
		review_status TEXT NOT NULL,
		reject_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	versionsTable := `
	CREATE TABLE IF NOT EXISTS versions (
		doc_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		source_hash TEXT NOT NULL,
		run_id TEXT NOT NULL,
		supersedes TEXT,
		diff TEXT,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (doc_id, version)
	);`

	publishedTable := `
	CREATE TABLE IF NOT EXISTS published (
		doc_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		article_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		published_at DATETIME NOT NULL,
		PRIMARY KEY (doc_id, version, article_id)
	);`

	tables := []string{runsTable, versionsTable, publishedTable}
	for _, name := range artifactTables {
		tables = append(tables, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			revision INTEGER NOT NULL,
			article_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`, name))
	}

	for _, stmt := range tables {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ---- runs ----

// CreateRun inserts a new run record.
func (s *Store) CreateRun(run *core.RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, doc_id, version, source_hash, revision, status, review_status, reject_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.DocID, run.Version, run.SourceHash, run.Revision,
		string(run.Status), string(run.ReviewStatus), run.RejectReason,
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.RunID, err)
	}
	return nil
}

// UpdateRun rewrites the mutable fields of a run record.
func (s *Store) UpdateRun(run *core.RunRecord) error {
	res, err := s.db.Exec(`
		UPDATE runs SET version = ?, source_hash = ?, revision = ?, status = ?, review_status = ?, reject_reason = ?, updated_at = ?
		WHERE run_id = ?`,
		run.Version, run.SourceHash, run.Revision, string(run.Status),
		string(run.ReviewStatus), run.RejectReason, run.UpdatedAt, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.RunID)
	}
	return nil
}

// GetRun returns the run record, or nil if absent.
func (s *Store) GetRun(runID string) (*core.RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_id, doc_id, version, source_hash, revision, status, review_status, reject_reason, created_at, updated_at
		FROM runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(limit int) ([]*core.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, doc_id, version, source_hash, revision, status, review_status, reject_reason, created_at, updated_at
		FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*core.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*core.RunRecord, error) {
	var run core.RunRecord
	var status, review string
	var reject sql.NullString
	err := row.Scan(&run.RunID, &run.DocID, &run.Version, &run.SourceHash,
		&run.Revision, &status, &review, &reject, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Status = core.RunStatus(status)
	run.ReviewStatus = core.ReviewStatus(review)
	run.RejectReason = reject.String
	return &run, nil
}

// ---- artifacts ----

func (s *Store) putArtifact(table, runID string, revision int, articleID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", table, err)
	}
	_, err = s.db.Exec(fmt.Sprintf(`
		INSERT INTO %s (run_id, revision, article_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`, table),
		runID, revision, articleID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append %s artifact: %w", table, err)
	}
	return nil
}

// latestArtifact decodes the newest payload for (run, revision) into out.
// Returns false when no artifact exists.
func (s *Store) latestArtifact(table, runID string, revision int, out any) (bool, error) {
	var payload string
	err := s.db.QueryRow(fmt.Sprintf(`
		SELECT payload FROM %s WHERE run_id = ? AND revision = ?
		ORDER BY seq DESC LIMIT 1`, table), runID, revision).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s artifact: %w", table, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("failed to decode %s artifact: %w", table, err)
	}
	return true, nil
}

// perArticleArtifacts returns the newest payload per article for the given
// run and revision, in article order.
func (s *Store) perArticleArtifacts(table, runID string, revision int) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT article_id, payload FROM %s WHERE run_id = ? AND revision = ?
		ORDER BY seq ASC`, table), runID, revision)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s artifacts: %w", table, err)
	}
	defer rows.Close()

	out := map[string]json.RawMessage{}
	for rows.Next() {
		var articleID, payload string
		if err := rows.Scan(&articleID, &payload); err != nil {
			return nil, err
		}
		if payload == "" {
			// Tombstone: the article was removed later in this revision.
			delete(out, articleID)
			continue
		}
		out[articleID] = json.RawMessage(payload) // later rows win
	}
	return out, rows.Err()
}

func (s *Store) PutDocument(runID string, revision int, doc *core.NormalizedDocument) error {
	return s.putArtifact("documents", runID, revision, "", doc)
}

func (s *Store) GetDocument(runID string, revision int) (*core.NormalizedDocument, error) {
	var doc core.NormalizedDocument
	ok, err := s.latestArtifact("documents", runID, revision, &doc)
	if err != nil || !ok {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) PutAnalysis(revision int, a *core.AnalysisResult) error {
	return s.putArtifact("analyses", a.RunID, revision, "", a)
}

func (s *Store) GetAnalysis(runID string, revision int) (*core.AnalysisResult, error) {
	var a core.AnalysisResult
	ok, err := s.latestArtifact("analyses", runID, revision, &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

func (s *Store) PutGlobalOutline(revision int, o *core.GlobalOutline) error {
	return s.putArtifact("global_outlines", o.RunID, revision, "", o)
}

func (s *Store) GetGlobalOutline(runID string, revision int) (*core.GlobalOutline, error) {
	var o core.GlobalOutline
	ok, err := s.latestArtifact("global_outlines", runID, revision, &o)
	if err != nil || !ok {
		return nil, err
	}
	return &o, nil
}

func (s *Store) PutArticleOutline(revision int, o *core.ArticleOutline) error {
	return s.putArtifact("article_outlines", o.RunID, revision, o.ArticleID, o)
}

func (s *Store) GetArticleOutlines(runID string, revision int) (map[string]*core.ArticleOutline, error) {
	raw, err := s.perArticleArtifacts("article_outlines", runID, revision)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*core.ArticleOutline, len(raw))
	for id, payload := range raw {
		var o core.ArticleOutline
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("failed to decode article outline %s: %w", id, err)
		}
		out[id] = &o
	}
	return out, nil
}

func (s *Store) PutPrewrite(revision int, p *core.PrewriteData) error {
	return s.putArtifact("prewrites", p.RunID, revision, p.ArticleID, p)
}

func (s *Store) GetPrewrites(runID string, revision int) (map[string]*core.PrewriteData, error) {
	raw, err := s.perArticleArtifacts("prewrites", runID, revision)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*core.PrewriteData, len(raw))
	for id, payload := range raw {
		var p core.PrewriteData
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode prewrite %s: %w", id, err)
		}
		out[id] = &p
	}
	return out, nil
}

func (s *Store) PutArticle(revision int, a *core.Article) error {
	return s.putArtifact("articles", a.RunID, revision, a.ID, a)
}

// DeleteArticle appends an empty-payload tombstone so the article no
// longer appears in the revision's set. Earlier rows stay for audit.
func (s *Store) DeleteArticle(runID string, revision int, articleID string) error {
	_, err := s.db.Exec(`
		INSERT INTO articles (run_id, revision, article_id, payload, created_at)
		VALUES (?, ?, ?, '', ?)`,
		runID, revision, articleID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to tombstone article %s: %w", articleID, err)
	}
	return nil
}

func (s *Store) GetArticles(runID string, revision int) ([]*core.Article, error) {
	raw, err := s.perArticleArtifacts("articles", runID, revision)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Article, 0, len(raw))
	for id, payload := range raw {
		var a core.Article
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to decode article %s: %w", id, err)
		}
		out = append(out, &a)
	}
	sortArticles(out)
	return out, nil
}

func (s *Store) PutValidation(revision int, v *core.ValidationResult) error {
	return s.putArtifact("validations", v.RunID, revision, "", v)
}

func (s *Store) GetValidation(runID string, revision int) (*core.ValidationResult, error) {
	var v core.ValidationResult
	ok, err := s.latestArtifact("validations", runID, revision, &v)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

func (s *Store) PutQAResult(revision int, q *core.QAResult) error {
	return s.putArtifact("qa_results", q.RunID, revision, "", q)
}

func (s *Store) GetQAResult(runID string, revision int) (*core.QAResult, error) {
	var q core.QAResult
	ok, err := s.latestArtifact("qa_results", runID, revision, &q)
	if err != nil || !ok {
		return nil, err
	}
	return &q, nil
}

func (s *Store) PutAdjustment(revision int, a *core.AdjustmentResult) error {
	return s.putArtifact("adjustments", a.RunID, revision, "", a)
}

func (s *Store) GetAdjustment(runID string, revision int) (*core.AdjustmentResult, error) {
	var a core.AdjustmentResult
	ok, err := s.latestArtifact("adjustments", runID, revision, &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// ArtifactCount reports how many rows a table holds for a run across all
// revisions. Used by tests and diagnostics to confirm append-only behavior.
func (s *Store) ArtifactCount(table, runID string) (int, error) {
	var n int
	err := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE run_id = ?`, table), runID).Scan(&n)
	return n, err
}

// ---- versions ----

func (s *Store) PutVersion(rec *core.VersionRecord) error {
	var diff []byte
	if rec.Diff != nil {
		var err error
		diff, err = json.Marshal(rec.Diff)
		if err != nil {
			return fmt.Errorf("failed to marshal version diff: %w", err)
		}
	}
	_, err := s.db.Exec(`
		INSERT INTO versions (doc_id, version, source_hash, run_id, supersedes, diff, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.DocID, rec.Version, rec.SourceHash, rec.RunID, rec.Supersedes, string(diff), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create version %s/%d: %w", rec.DocID, rec.Version, err)
	}
	return nil
}

func (s *Store) GetVersionByHash(docID, sourceHash string) (*core.VersionRecord, error) {
	row := s.db.QueryRow(`
		SELECT doc_id, version, source_hash, run_id, supersedes, diff, created_at
		FROM versions WHERE doc_id = ? AND source_hash = ?
		ORDER BY version DESC LIMIT 1`, docID, sourceHash)
	return scanVersion(row)
}

func (s *Store) GetLatestVersion(docID string) (*core.VersionRecord, error) {
	row := s.db.QueryRow(`
		SELECT doc_id, version, source_hash, run_id, supersedes, diff, created_at
		FROM versions WHERE doc_id = ? ORDER BY version DESC LIMIT 1`, docID)
	return scanVersion(row)
}

func (s *Store) ListVersions(docID string) ([]*core.VersionRecord, error) {
	rows, err := s.db.Query(`
		SELECT doc_id, version, source_hash, run_id, supersedes, diff, created_at
		FROM versions WHERE doc_id = ? ORDER BY version ASC`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []*core.VersionRecord
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanVersion(row scannable) (*core.VersionRecord, error) {
	var rec core.VersionRecord
	var supersedes, diff sql.NullString
	err := row.Scan(&rec.DocID, &rec.Version, &rec.SourceHash, &rec.RunID,
		&supersedes, &diff, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan version: %w", err)
	}
	rec.Supersedes = supersedes.String
	if diff.String != "" {
		var d core.VersionDiff
		if err := json.Unmarshal([]byte(diff.String), &d); err != nil {
			return nil, fmt.Errorf("failed to decode version diff: %w", err)
		}
		rec.Diff = &d
	}
	return &rec, nil
}

// ---- published ----

func (s *Store) PutPublished(rec *core.PublishedArticle) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal published article: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO published (doc_id, version, article_id, run_id, payload, published_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.DocID, rec.Version, rec.ArticleID, rec.RunID, string(payload), rec.PublishedAt)
	if err != nil {
		return fmt.Errorf("failed to write published article %s: %w", rec.ArticleID, err)
	}
	return nil
}

func (s *Store) GetPublished(docID string, version int) ([]*core.PublishedArticle, error) {
	rows, err := s.db.Query(`
		SELECT payload FROM published WHERE doc_id = ? AND version = ? ORDER BY article_id ASC`,
		docID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to read published articles: %w", err)
	}
	defer rows.Close()

	var out []*core.PublishedArticle
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec core.PublishedArticle
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode published article: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func sortArticles(articles []*core.Article) {
	sort.Slice(articles, func(i, j int) bool { return articles[i].ID < articles[j].ID })
}
