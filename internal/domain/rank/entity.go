package rank

import "time"

// Tier represents a purchasable rank tier (matches rank_tiers table).
// Tiers are owned by catalog administration; this service only reads them.
type Tier struct {
	ID            string    `db:"id" json:"id"` // stable, lowercase
	Name          string    `db:"name" json:"name"`
	Price         float64   `db:"price" json:"price"` // minimum qualifying price
	BaseDays      int       `db:"base_days" json:"base_days"`
	DiscordRoleID string    `db:"discord_role_id" json:"discord_role_id"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PricePerDay returns the tier's effective per-day price.
func (t *Tier) PricePerDay() float64 {
	if t.BaseDays <= 0 {
		return 0
	}
	return t.Price / float64(t.BaseDays)
}

// QualifiesFor reports whether an amount meets the tier's minimum price.
func (t *Tier) QualifiesFor(amount float64) bool {
	return amount >= t.Price
}
