package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/vecmath"
)

func init() {
	Register("memory", func(args interface{}, deps Deps) (Backend, error) {
		return NewMemoryBackend(), nil
	})
}

// MemoryBackend keeps records in process and scores by brute force.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]model.VectorRecord
	order   []string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: map[string]model.VectorRecord{}}
}

func (m *MemoryBackend) Upsert(ctx context.Context, records []model.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if _, ok := m.records[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		r.Values = append([]float32(nil), r.Values...)
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryBackend) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.VectorMatch, 0, len(m.order))
	for _, id := range m.order {
		r := m.records[id]
		out = append(out, model.VectorMatch{
			Score:    vecmath.Cosine(vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MemoryBackend) DeleteByTitle(ctx context.Context, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		if m.records[id].Metadata.Title == title {
			delete(m.records, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return nil
}

// Len is the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
