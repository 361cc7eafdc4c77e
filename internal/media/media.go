// Package media stores article assets. Articles reference assets by ID and
// URL; bytes never travel with the article payload.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"promptsupport/internal/core"
)

var ErrNotFound = errors.New("media: asset not found")

// Store holds asset bytes and hands back stable references. Put is
// content-addressed: storing the same bytes twice yields the same ref.
type Store interface {
	Put(ctx context.Context, docID, name string, contentType string, data []byte) (core.MediaRef, error)
	Get(ctx context.Context, docID, assetID string) ([]byte, error)
	List(ctx context.Context, docID string) ([]core.MediaRef, error)
}

// AssetID derives the content-addressed ID for a blob.
func AssetID(data []byte) string {
	sum := sha256.Sum256(data)
	return "m-" + hex.EncodeToString(sum[:8])
}

type memAsset struct {
	ref  core.MediaRef
	data []byte
}

// MemStore is an in-memory Store. Used when no object storage is
// configured, and by tests.
type MemStore struct {
	mu     sync.RWMutex
	assets map[string]map[string]memAsset // docID -> assetID
}

func NewMemStore() *MemStore {
	return &MemStore{assets: map[string]map[string]memAsset{}}
}

func (m *MemStore) Put(_ context.Context, docID, name, _ string, data []byte) (core.MediaRef, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return core.MediaRef{}, fmt.Errorf("doc_id is required")
	}
	id := AssetID(data)
	ref := core.MediaRef{
		ID:      id,
		URL:     fmt.Sprintf("mem://%s/%s", docID, id),
		AltText: name,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assets[docID] == nil {
		m.assets[docID] = map[string]memAsset{}
	}
	if existing, ok := m.assets[docID][id]; ok {
		return existing.ref, nil
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	m.assets[docID][id] = memAsset{ref: ref, data: stored}
	return ref, nil
}

func (m *MemStore) Get(_ context.Context, docID, assetID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[docID][assetID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(asset.data))
	copy(out, asset.data)
	return out, nil
}

func (m *MemStore) List(_ context.Context, docID string) ([]core.MediaRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := make([]core.MediaRef, 0, len(m.assets[docID]))
	for _, asset := range m.assets[docID] {
		refs = append(refs, asset.ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}
