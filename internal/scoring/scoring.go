package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"memetic/internal/config"
	"memetic/internal/models"
)

// Input is everything a policy may look at to price an outcome.
type Input struct {
	Up             bool
	Outcome        string
	EntryMarketCap decimal.Decimal
	ExitMarketCap  decimal.Decimal
	DurationDays   uint32
}

// Policy turns a decided outcome into an MFS delta.
// INDETERMINATE outcomes always score zero.
type Policy interface {
	Name() string
	Delta(in Input) int64
}

// DecideOutcome applies the win rule: UP wins iff exit > entry, DOWN wins
// iff exit < entry, equality loses. A missing or zero entry cap, or missing
// exit data, is indeterminate.
func DecideOutcome(up bool, entry decimal.Decimal, exit *decimal.Decimal) string {
	if exit == nil || !entry.IsPositive() || !exit.IsPositive() {
		return models.OutcomeIndeterminate
	}
	if up && exit.GreaterThan(entry) {
		return models.OutcomeWon
	}
	if !up && exit.LessThan(entry) {
		return models.OutcomeWon
	}
	return models.OutcomeLost
}

type FixedPolicy struct {
	Win  int64
	Loss int64
}

func (FixedPolicy) Name() string { return "fixed" }

func (p FixedPolicy) Delta(in Input) int64 {
	switch in.Outcome {
	case models.OutcomeWon:
		return p.Win
	case models.OutcomeLost:
		return p.Loss
	default:
		return 0
	}
}

// MagnitudePolicy scales the reward with the size of the move:
// Base + PerPercent * |exit/entry - 1| * 100, capped at Cap. A loss costs
// LossFactor times what the same move would have earned.
type MagnitudePolicy struct {
	Base       int64
	PerPercent float64
	Cap        int64
	LossFactor float64
}

func (MagnitudePolicy) Name() string { return "magnitude" }

func (p MagnitudePolicy) Delta(in Input) int64 {
	if in.Outcome != models.OutcomeWon && in.Outcome != models.OutcomeLost {
		return 0
	}
	if !in.EntryMarketCap.IsPositive() {
		return 0
	}
	move := in.ExitMarketCap.Div(in.EntryMarketCap).Sub(decimal.NewFromInt(1)).Abs()
	pct, _ := move.Mul(decimal.NewFromInt(100)).Float64()
	raw := float64(p.Base) + p.PerPercent*pct
	if p.Cap > 0 && raw > float64(p.Cap) {
		raw = float64(p.Cap)
	}
	if in.Outcome == models.OutcomeLost {
		factor := p.LossFactor
		if factor <= 0 {
			factor = 0.5
		}
		return -int64(math.Round(raw * factor))
	}
	return int64(math.Round(raw))
}

// FromConfig builds the policy named by cfg.Policy.
func FromConfig(cfg config.ScoringConfig) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Policy)) {
	case "", "fixed":
		return FixedPolicy{Win: cfg.Win, Loss: cfg.Loss}, nil
	case "magnitude":
		return MagnitudePolicy{Base: cfg.Base, PerPercent: cfg.PerPercent, Cap: cfg.Cap, LossFactor: cfg.LossFactor}, nil
	default:
		return nil, fmt.Errorf("unknown scoring policy %q", cfg.Policy)
	}
}
