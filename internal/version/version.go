// Package version implements stage 10: source-hash versioning and change
// diffs. A document's version is keyed by the SHA-256 of its canonicalized
// block sequence; reprocessing unchanged bytes returns the existing version
// instead of creating a new run. An LRU fronts the store lookup.
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"promptsupport/internal/core"
	"promptsupport/internal/logger"
)

// Store is the persistence the versioner needs.
type Store interface {
	GetVersionByHash(docID, sourceHash string) (*core.VersionRecord, error)
	GetLatestVersion(docID string) (*core.VersionRecord, error)
	PutVersion(rec *core.VersionRecord) error
}

// Versioner tracks document versions. Safe for concurrent use to the
// extent the backing store is.
type Versioner struct {
	store Store
	cache *lru.Cache[string, *core.VersionRecord]
}

func New(store Store) (*Versioner, error) {
	cache, err := lru.New[string, *core.VersionRecord](256)
	if err != nil {
		return nil, err
	}
	return &Versioner{store: store, cache: cache}, nil
}

// Hash canonicalizes the block sequence and hashes it. Only content-bearing
// fields participate; provenance does not, so re-extracting the same
// content from a shuffled file layout still dedups.
func Hash(doc *core.NormalizedDocument) string {
	h := sha256.New()
	for _, b := range doc.Blocks {
		fmt.Fprintf(h, "%s\x1f%d\x1f%s\x1e", b.Type, b.Level, strings.TrimSpace(b.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the existing version record for this exact content, if
// one exists.
func (v *Versioner) Lookup(docID, sourceHash string) (*core.VersionRecord, error) {
	key := docID + ":" + sourceHash
	if rec, ok := v.cache.Get(key); ok {
		return rec, nil
	}
	rec, err := v.store.GetVersionByHash(docID, sourceHash)
	if err != nil || rec == nil {
		return nil, err
	}
	v.cache.Add(key, rec)
	return rec, nil
}

// Latest returns the newest version record for a document, or nil.
func (v *Versioner) Latest(docID string) (*core.VersionRecord, error) {
	return v.store.GetLatestVersion(docID)
}

// Record registers a completed run as the next version of its document,
// computing the diff against the prior version's articles.
func (v *Versioner) Record(docID, sourceHash, runID string, articles []*core.Article, prior []*core.PublishedArticle) (*core.VersionRecord, error) {
	latest, err := v.store.GetLatestVersion(docID)
	if err != nil {
		return nil, err
	}

	rec := &core.VersionRecord{
		DocID:      docID,
		Version:    1,
		SourceHash: sourceHash,
		RunID:      runID,
		CreatedAt:  time.Now().UTC(),
	}
	if latest != nil {
		rec.Version = latest.Version + 1
		rec.Supersedes = latest.RunID
		rec.Diff = Diff(latest.Version, prior, articles)
	}

	if err := v.store.PutVersion(rec); err != nil {
		return nil, err
	}
	v.cache.Add(docID+":"+sourceHash, rec)
	logger.Info("version recorded", "doc_id", docID, "version", rec.Version, "run_id", runID)
	return rec, nil
}

// Diff pairs current articles with prior-version articles by best title
// match and reports structural changes per pair.
func Diff(priorVersion int, prior []*core.PublishedArticle, current []*core.Article) *core.VersionDiff {
	d := &core.VersionDiff{PriorVersion: priorVersion}

	usedPrior := map[string]bool{}
	for _, art := range current {
		var best *core.PublishedArticle
		bestScore := 0.0
		for _, p := range prior {
			if usedPrior[p.ArticleID] {
				continue
			}
			score := titleSimilarity(art.Title, p.Title)
			if score > bestScore {
				best, bestScore = p, score
			}
		}
		if best == nil || bestScore < 0.3 {
			d.Added = append(d.Added, art.ID)
			continue
		}
		usedPrior[best.ArticleID] = true
		d.Pairs = append(d.Pairs, pairDiff(art, best))
	}
	for _, p := range prior {
		if !usedPrior[p.ArticleID] {
			d.Removed = append(d.Removed, p.ArticleID)
		}
	}
	return d
}

func pairDiff(cur *core.Article, prior *core.PublishedArticle) core.ArticleDiff {
	ad := core.ArticleDiff{
		ArticleID:    cur.ID,
		PairedWith:   prior.ArticleID,
		TitleChanged: cur.Title != prior.Title,
	}

	curTOC := map[string]bool{}
	for _, e := range cur.TOC {
		curTOC[e.Title] = true
	}
	priorTOC := map[string]bool{}
	for _, e := range prior.TOC {
		priorTOC[e.Title] = true
	}
	ad.TOCChanges = setChanges(priorTOC, curTOC)

	curFAQ := map[string]bool{}
	for _, f := range cur.FAQ {
		curFAQ[f.Question] = true
	}
	priorFAQ := map[string]bool{}
	for _, f := range prior.FAQ {
		priorFAQ[f.Question] = true
	}
	ad.FAQChanges = setChanges(priorFAQ, curFAQ)

	curLinks := map[string]bool{}
	for _, l := range cur.RelatedLinks {
		curLinks[l.Target] = true
	}
	priorLinks := map[string]bool{}
	for _, l := range prior.RelatedLinks {
		priorLinks[l.Target] = true
	}
	ad.LinkChanges = setChanges(priorLinks, curLinks)

	ad.Similarity = overlap3(priorTOC, curTOC, priorFAQ, curFAQ, priorLinks, curLinks)
	return ad
}

// setChanges lists "+added" and "-removed" elements between two sets,
// each group in lexical order so identical inputs diff identically.
func setChanges(before, after map[string]bool) []string {
	var added, removed []string
	for k := range after {
		if !before[k] {
			added = append(added, "+"+k)
		}
	}
	for k := range before {
		if !after[k] {
			removed = append(removed, "-"+k)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return append(added, removed...)
}

// overlap3 averages the Jaccard overlap of the three structural element
// sets. Empty-on-both-sides sets count as identical.
func overlap3(sets ...map[string]bool) float64 {
	total := 0.0
	pairs := 0
	for i := 0; i+1 < len(sets); i += 2 {
		total += jaccard(sets[i], sets[i+1])
		pairs++
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func titleSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	return jaccard(ta, tb)
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(s)) {
		out[strings.Trim(t, ".,:;!?\"'()")] = true
	}
	return out
}
