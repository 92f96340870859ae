package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the external cash ledger (balance per account+currency).
// Calls are synchronous and fallible; AdjustBalance returns false when the
// delta would overdraw the account.
type Ledger interface {
	GetBalance(accountID, currency string) (decimal.Decimal, error)
	AdjustBalance(accountID, currency string, delta decimal.Decimal) (bool, error)
}

// DemandAccount is the optional interest-bearing demand account used as a
// fallback payment source. Deduction is FIFO across deposit buckets.
type DemandAccount interface {
	Total(accountID, currency string) (decimal.Decimal, error)
	DeductFIFO(accountID, currency string, amount decimal.Decimal) (bool, error)
}

// Clock abstracts wall time so the engine can run on a virtual clock in tests.
type Clock interface {
	Now() time.Time
}

// Rand is the single entry point for randomness (pattern selection, target
// draws, noise). Tests inject a seeded or stubbed source.
type Rand interface {
	// Float64 returns a uniform sample in [0,1).
	Float64() float64
	// Intn returns a uniform sample in [0,n).
	Intn(n int) int
}
