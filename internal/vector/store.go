package vector

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// ServiceVector is the persisted embedding for one catalog service.
type ServiceVector struct {
	ServiceID string    `gorm:"primaryKey;size:26"`
	Embedding string    `gorm:"type:text;not null"` // JSON float array
	Dim       int       `gorm:"not null"`
	UpdatedAt time.Time
}

func (ServiceVector) TableName() string { return "service_vectors" }

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ReplaceAll rebuilds the vector table wholesale. The catalog lifecycle
// is replace-then-rebuild, never incremental, so stale rows from a
// previous ingest must not survive.
func (s *Store) ReplaceAll(ctx context.Context, ids []string, vecs [][]float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&ServiceVector{}).Error; err != nil {
			return err
		}
		for i, id := range ids {
			if i >= len(vecs) || len(vecs[i]) == 0 {
				continue
			}
			b, err := json.Marshal(vecs[i])
			if err != nil {
				return err
			}
			row := ServiceVector{ServiceID: id, Embedding: string(b), Dim: len(vecs[i])}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadIndex hydrates a fresh in-memory index from persisted vectors.
func (s *Store) LoadIndex(ctx context.Context) (*Index, error) {
	ix := NewIndex()
	if err := s.Refresh(ctx, ix); err != nil {
		return nil, err
	}
	return ix, nil
}

// Refresh swaps the contents of an existing index for the persisted
// vectors, so long-lived references stay valid across a rebuild.
func (s *Store) Refresh(ctx context.Context, ix *Index) error {
	var rows []ServiceVector
	if err := s.db.WithContext(ctx).Order("service_id ASC").Find(&rows).Error; err != nil {
		return err
	}
	ids := make([]string, 0, len(rows))
	vecs := make([][]float64, 0, len(rows))
	for _, r := range rows {
		var vec []float64
		if err := json.Unmarshal([]byte(r.Embedding), &vec); err != nil {
			continue
		}
		ids = append(ids, r.ServiceID)
		vecs = append(vecs, vec)
	}
	ix.Replace(ids, vecs)
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ServiceVector{}).Count(&n).Error
	return n, err
}
