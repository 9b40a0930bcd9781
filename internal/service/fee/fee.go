// Package fee maps a gross deposit amount to platform fee and net amount.
//
// The fee is a percentage picked from a tier table. A tier applies to amounts strictly
// above its threshold; the tier with the highest threshold below the amount wins.
// Default table:
//
//	amount <= 1000  0%
//	amount >  1000  2%
//
// The table may be overridden with a YAML file:
//
//	tiers:
//	  - above: 0
//	    rate: 0
//	  - above: 1000
//	    rate: 0.02
package fee

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/lalita/wallet/internal/apperrors"
)

// Amounts are kept in the currency minor unit precision (kobo)
const minorUnitPlaces = 2

type Tier struct {
	Above decimal.Decimal
	Rate  decimal.Decimal
}

type Fees struct {
	PlatformFee decimal.Decimal
	NetAmount   decimal.Decimal
}

type Schedule struct {
	tiers []Tier
}

func DefaultTiers() []Tier {
	return []Tier{
		{Above: decimal.Zero, Rate: decimal.Zero},
		{Above: decimal.NewFromInt(1000), Rate: decimal.RequireFromString("0.02")},
	}
}

func DefaultSchedule() *Schedule {
	s, _ := NewSchedule(DefaultTiers())
	return s
}

// NewSchedule validates the table: thresholds start at zero and strictly ascend, rates are in [0, 1)
func NewSchedule(tiers []Tier) (*Schedule, error) {
	if len(tiers) == 0 {
		return nil, errors.New("fee schedule has no tiers")
	}
	if !tiers[0].Above.IsZero() {
		return nil, errors.New("first fee tier must start at zero")
	}

	one := decimal.NewFromInt(1)
	for i, t := range tiers {
		if t.Rate.IsNegative() || t.Rate.GreaterThanOrEqual(one) {
			return nil, fmt.Errorf("fee tier %d: rate %s is out of [0, 1)", i, t.Rate)
		}
		if i > 0 && !t.Above.GreaterThan(tiers[i-1].Above) {
			return nil, fmt.Errorf("fee tier %d: thresholds must ascend", i)
		}
	}

	return &Schedule{tiers: append([]Tier(nil), tiers...)}, nil
}

type fileSchedule struct {
	Tiers []struct {
		Above string `yaml:"above"`
		Rate  string `yaml:"rate"`
	} `yaml:"tiers"`
}

func ParseSchedule(data []byte) (*Schedule, error) {
	var f fileSchedule
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fee schedule is not valid yaml: %w", err)
	}

	tiers := make([]Tier, 0, len(f.Tiers))
	for i, t := range f.Tiers {
		above, err := decimal.NewFromString(t.Above)
		if err != nil {
			return nil, fmt.Errorf("fee tier %d: bad threshold %q: %w", i, t.Above, err)
		}
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil {
			return nil, fmt.Errorf("fee tier %d: bad rate %q: %w", i, t.Rate, err)
		}
		tiers = append(tiers, Tier{Above: above, Rate: rate})
	}

	return NewSchedule(tiers)
}

func LoadSchedule(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read fee schedule: %w", err)
	}

	return ParseSchedule(data)
}

// Compute returns fees for amount so that PlatformFee + NetAmount == amount exactly.
// Amount must be positive and have no more than two decimal places
func (s *Schedule) Compute(amount decimal.Decimal) (Fees, error) {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(minorUnitPlaces)) {
		return Fees{}, apperrors.ErrInvalidAmount
	}

	rate := s.rateFor(amount)

	// Round rounds half away from zero; amount is positive so it is half-up
	platformFee := amount.Mul(rate).Round(minorUnitPlaces)

	return Fees{
		PlatformFee: platformFee,
		NetAmount:   amount.Sub(platformFee),
	}, nil
}

func (s *Schedule) Tiers() []Tier {
	return append([]Tier(nil), s.tiers...)
}

func (s *Schedule) rateFor(amount decimal.Decimal) decimal.Decimal {
	rate := decimal.Zero
	for _, t := range s.tiers {
		if !amount.GreaterThan(t.Above) {
			break
		}
		rate = t.Rate
	}
	return rate
}
