package accrual

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lorefall/lorefall-backend/internal/domain"
)

var minutesDivisor = decimal.NewFromInt(60)

// Accrue advances a domain's point balance to now: the elapsed time since the
// last accrual (never negative, so a clock step backwards accrues nothing)
// times the domain's productivity factor, rounded to 2 decimal places.
//
// Must be called synchronously immediately before the allocator reads the
// pool, so the distributed amount includes accrual up to the exact execution
// instant. Mutates the domain in memory only; persistence happens with the
// settlement.
func Accrue(d *domain.Domain, now time.Time) {
	elapsed := now.Sub(d.PointsLastAccruedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	// Whole seconds of precision is enough: balances are kept at 2 decimal
	// places anyway.
	minutes := decimal.NewFromInt(int64(elapsed / time.Second)).Div(minutesDivisor)
	earned := minutes.Mul(d.ProductivityFactor).Round(2)

	d.PointBalance = d.PointBalance.Add(earned).Round(2)
	d.PointsLastAccruedAt = now
}
