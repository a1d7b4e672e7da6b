package rank

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Repository defines rank tier data access
type Repository interface {
	ListActive(ctx context.Context) ([]Tier, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates rank tier repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActive(ctx context.Context) ([]Tier, error) {
	query := `
		SELECT id, name, price, base_days, discord_role_id, is_active, created_at
		FROM rank_tiers
		WHERE is_active = true
		ORDER BY price ASC
	`
	var tiers []Tier
	err := r.db.SelectContext(ctx, &tiers, query)
	return tiers, err
}
