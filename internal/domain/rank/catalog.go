package rank

import (
	"context"
	"strings"
)

// Catalog serves tier lookups through a short-TTL cache. Catalog edits do
// not need to be instantly visible to in-flight reconciliation; a stale
// read within the TTL is acceptable.
type Catalog struct {
	repo  Repository
	cache Cache
}

// NewCatalog creates a rank catalog service
func NewCatalog(repo Repository, cache Cache) *Catalog {
	return &Catalog{repo: repo, cache: cache}
}

// List returns all active tiers, cheapest first.
func (c *Catalog) List(ctx context.Context) ([]Tier, error) {
	if tiers, ok := c.cache.Get(ctx); ok {
		return tiers, nil
	}

	tiers, err := c.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, tiers)
	return tiers, nil
}

// FindByID returns the tier with the given id, or nil when unknown.
func (c *Catalog) FindByID(ctx context.Context, id string) (*Tier, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, nil
	}

	tiers, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tiers {
		if tiers[i].ID == id {
			return &tiers[i], nil
		}
	}
	return nil, nil
}

// BestForAmount returns the highest-priced tier the amount qualifies for,
// or nil when no tier's minimum price is met. Pure given a fixed catalog:
// a larger amount never yields a cheaper tier.
func (c *Catalog) BestForAmount(ctx context.Context, amount float64) (*Tier, error) {
	tiers, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	var best *Tier
	for i := range tiers {
		if !tiers[i].QualifiesFor(amount) {
			continue
		}
		if best == nil || tiers[i].Price > best.Price {
			best = &tiers[i]
		}
	}
	return best, nil
}

// Invalidate drops the cached snapshot; the next lookup reloads.
func (c *Catalog) Invalidate(ctx context.Context) {
	c.cache.Invalidate(ctx)
}
