package donation

import (
	"math"
	"time"

	"github.com/craftvale/craftvale-api/internal/domain/account"
	"github.com/craftvale/craftvale-api/internal/domain/rank"
)

// Clamp bounds for amount-derived grant lengths, in days.
const (
	MinGrantDays = 7
	MaxGrantDays = 365
)

// GrantExpiry computes the new expiry for granting rankID to acc.
// A grant of the rank the account already actively holds extends the
// current expiry; anything else (different rank, expired rank, no
// rank) starts a fresh window from now.
func GrantExpiry(acc *account.Account, rankID string, days int, now time.Time) time.Time {
	if acc != nil && acc.ActiveRankID(now) == rankID {
		return acc.RankExpiresAt.Time.AddDate(0, 0, days)
	}
	return now.AddDate(0, 0, days)
}

// DaysForAmount derives a grant length from a paid amount against a
// tier's daily price, clamped to [MinGrantDays, MaxGrantDays]. The
// tier's base price buys its base days; paying more buys
// proportionally more.
func DaysForAmount(tier *rank.Tier, amount float64) int {
	perDay := tier.PricePerDay()
	if perDay <= 0 {
		return MinGrantDays
	}
	days := int(math.Floor(amount / perDay))
	if days < MinGrantDays {
		return MinGrantDays
	}
	if days > MaxGrantDays {
		return MaxGrantDays
	}
	return days
}

// ConvertDays computes how many days of the target tier the unspent
// value of the current entitlement buys. Remaining time is rounded up
// to whole days before valuation. Zero is a legal result: converting
// to a much more expensive tier can leave nothing.
func ConvertDays(from, to *rank.Tier, remainingDays int) int {
	if remainingDays <= 0 {
		return 0
	}
	toPerDay := to.PricePerDay()
	if toPerDay <= 0 {
		return 0
	}
	value := float64(remainingDays) * from.PricePerDay()
	return int(math.Floor(value / toPerDay))
}
