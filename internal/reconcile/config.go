package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config holds the tunable reconciliation policy
type Config struct {
	// DedupWindow is the number of boundary items compared between adjacent pages
	DedupWindow int
	// Tolerance is the per-item arithmetic slack (ε)
	Tolerance decimal.Decimal
	// TotalTolerancePct is the fraction of the stated total allowed as slack
	TotalTolerancePct decimal.Decimal
	// MinTotalTolerance is the floor for the total slack
	MinTotalTolerance decimal.Decimal
	// Workers bounds the number of pages validated concurrently
	Workers int
}

// DefaultConfig returns the default policy: K=3, ε=0.01, ε_total=max(0.01, 0.1%)
func DefaultConfig() Config {
	return Config{
		DedupWindow:       3,
		Tolerance:         decimal.NewFromFloat(0.01),
		TotalTolerancePct: decimal.NewFromFloat(0.001),
		MinTotalTolerance: decimal.NewFromFloat(0.01),
		Workers:           4,
	}
}

// Validate checks that the policy is usable
func (c Config) Validate() error {
	if c.DedupWindow < 0 {
		return fmt.Errorf("dedup window must not be negative, got %d", c.DedupWindow)
	}
	if !c.Tolerance.IsPositive() {
		return fmt.Errorf("tolerance must be positive, got %s", c.Tolerance)
	}
	if c.TotalTolerancePct.IsNegative() {
		return fmt.Errorf("total tolerance percentage must not be negative, got %s", c.TotalTolerancePct)
	}
	if c.MinTotalTolerance.IsNegative() {
		return fmt.Errorf("minimum total tolerance must not be negative, got %s", c.MinTotalTolerance)
	}
	return nil
}

// totalTolerance computes ε_total for a stated total
func (c Config) totalTolerance(stated decimal.Decimal) decimal.Decimal {
	return decimal.Max(c.MinTotalTolerance, stated.Abs().Mul(c.TotalTolerancePct))
}

func (c Config) within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(c.Tolerance)
}
