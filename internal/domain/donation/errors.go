package donation

import "errors"

var (
	ErrInvalidEvent         = errors.New("invalid payment event")
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrDonationNotFound     = errors.New("donation not found")
	ErrUnknownRank          = errors.New("unknown rank tier")
	ErrNoCurrentRank        = errors.New("account has no current rank")
)
