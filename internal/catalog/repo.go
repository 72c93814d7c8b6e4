package catalog

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) ListAll(ctx context.Context) ([]Service, error) {
	var out []Service
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetByIDs hydrates the given ids, preserving the requested order.
// Ids with no matching row are skipped: the vector index may lag
// behind a catalog rebuild, and a dangling id is not an error.
func (r *Repo) GetByIDs(ctx context.Context, ids []string) ([]Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []Service
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]Service, len(rows))
	for _, s := range rows {
		byID[s.ID] = s
	}
	out := make([]Service, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
