package repository

import (
	"context"
	"sync"

	"IPHForecast/internal/domain/models"
	domrepo "IPHForecast/internal/domain/repository"
)

// MemorySeriesStore is a non-persistent SeriesStore used by the CLI and tests.
type MemorySeriesStore struct {
	mu   sync.Mutex
	rows []models.Observation
}

func NewMemorySeriesStore(rows []models.Observation) *MemorySeriesStore {
	return &MemorySeriesStore{rows: append([]models.Observation(nil), rows...)}
}

var _ domrepo.SeriesStore = (*MemorySeriesStore)(nil)

func (m *MemorySeriesStore) Load(context.Context) ([]models.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Observation(nil), m.rows...), nil
}

func (m *MemorySeriesStore) Append(_ context.Context, obs models.Observation) error {
	m.mu.Lock()
	m.rows = append(m.rows, obs)
	m.mu.Unlock()
	return nil
}

func (m *MemorySeriesStore) Health(context.Context) error { return nil }
func (m *MemorySeriesStore) Close() error                 { return nil }
