package account

import (
	"database/sql"
	"time"
)

// Account represents a platform member (matches accounts table).
// This service reads accounts and mutates only the entitlement fields;
// registration, bans and profile edits live in the main platform.
type Account struct {
	ID              int64          `db:"id"`
	Email           sql.NullString `db:"email"`
	MinecraftHandle sql.NullString `db:"minecraft_handle"`
	DisplayName     sql.NullString `db:"display_name"`

	// Entitlement (mutated by the reconciliation core only)
	RankID          sql.NullString  `db:"rank_id"`
	RankExpiresAt   sql.NullTime    `db:"rank_expires_at"`
	LifetimeDonated float64         `db:"lifetime_donated"`

	// Discord binding for role sync
	DiscordUserID sql.NullString `db:"discord_user_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// HasActiveRank reports whether the account holds an unexpired rank.
func (a *Account) HasActiveRank(now time.Time) bool {
	return a.RankID.Valid && a.RankExpiresAt.Valid && a.RankExpiresAt.Time.After(now)
}

// ActiveRankID returns the current rank id, empty when absent or expired.
func (a *Account) ActiveRankID(now time.Time) string {
	if !a.HasActiveRank(now) {
		return ""
	}
	return a.RankID.String
}

// RankDaysRemaining returns whole days until rank expiry, rounded up.
// Zero when the rank is absent or already expired.
func (a *Account) RankDaysRemaining(now time.Time) int {
	if !a.HasActiveRank(now) {
		return 0
	}
	remaining := a.RankExpiresAt.Time.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}
