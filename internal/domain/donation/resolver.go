package donation

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/craftvale/craftvale-api/internal/domain/account"
)

// handlePattern matches a bare Minecraft handle. Anything outside this
// shape is never looked up, so free-text messages cannot trigger
// accidental matches.
var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Resolver maps a payment event to a platform account. Resolution is
// best effort: a nil result means the donation is recorded as a guest.
type Resolver struct {
	accounts account.Repository
}

// NewResolver creates identity resolver
func NewResolver(accounts account.Repository) *Resolver {
	return &Resolver{accounts: accounts}
}

// Resolve tries the event's identity hints in order of reliability:
// explicit account id, handle token in the message, handle token in
// the donor name, then email. The first hit wins. Lookup errors are logged and
// treated as a miss so a flaky read never rejects a payment.
func (r *Resolver) Resolve(ctx context.Context, event *PaymentEvent) *account.Account {
	if event.AccountID > 0 {
		acc, err := r.accounts.GetByID(ctx, event.AccountID)
		if err != nil {
			log.Warn().Err(err).Int64("account_id", event.AccountID).Msg("account lookup by id failed")
		} else if acc != nil {
			return acc
		}
	}

	if handle := extractHandle(event.Message); handle != "" {
		if acc := r.lookupHandle(ctx, handle); acc != nil {
			return acc
		}
	}

	if handle := extractHandle(event.Name); handle != "" {
		if acc := r.lookupHandle(ctx, handle); acc != nil {
			return acc
		}
	}

	if email := strings.TrimSpace(strings.ToLower(event.Email)); email != "" {
		acc, err := r.accounts.GetByEmail(ctx, email)
		if err != nil {
			log.Warn().Err(err).Msg("account lookup by email failed")
		} else if acc != nil {
			return acc
		}
	}

	return nil
}

func (r *Resolver) lookupHandle(ctx context.Context, handle string) *account.Account {
	acc, err := r.accounts.GetByHandle(ctx, handle)
	if err != nil {
		log.Warn().Err(err).Str("handle", handle).Msg("account lookup by handle failed")
		return nil
	}
	if acc != nil {
		return acc
	}
	acc, err = r.accounts.GetByDisplayName(ctx, handle)
	if err != nil {
		log.Warn().Err(err).Str("handle", handle).Msg("account lookup by display name failed")
		return nil
	}
	return acc
}

// extractHandle returns the first whitespace-separated field of the
// message when it looks like a handle, otherwise "".
func extractHandle(message string) string {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return ""
	}
	if handlePattern.MatchString(fields[0]) {
		return fields[0]
	}
	return ""
}
