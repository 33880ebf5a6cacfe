package currency

import (
	"context"
	"fmt"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// Converter resolves cross rates between currency codes via the shared
// base-rate table. It is a pure lookup/arithmetic component with no side
// effects.
type Converter struct {
	repo RepositoryPort
}

// NewConverter constructs a converter.
func NewConverter(repo RepositoryPort) *Converter {
	return &Converter{repo: repo}
}

// Rate returns the exchange rate from one currency to another using the
// cross-rate formula rate = toRate / fromRate, rounded to 6 decimal places.
func (c *Converter) Rate(ctx context.Context, from, to string) (float64, error) {
	if from == "" || to == "" {
		return 0, fmt.Errorf("%w: both currency codes are required", shared.ErrInvalid)
	}
	if from == to {
		return 1, nil
	}

	fromRate, err := c.lookup(ctx, from)
	if err != nil {
		return 0, err
	}
	toRate, err := c.lookup(ctx, to)
	if err != nil {
		return 0, err
	}
	if !fromRate.IsActive || !toRate.IsActive {
		return 0, fmt.Errorf("%w: one or both currencies are not active", shared.ErrInvalid)
	}

	return shared.Round6(toRate.RateToBase / fromRate.RateToBase), nil
}

// Convert converts an amount between currencies, rounded to display precision.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("%w: amount must be non-negative", shared.ErrInvalid)
	}
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return shared.Round2(amount * rate), nil
}

// RateToBase returns how an active currency relates to the base currency.
func (c *Converter) RateToBase(ctx context.Context, code string) (float64, error) {
	rate, err := c.lookup(ctx, code)
	if err != nil {
		return 0, err
	}
	if !rate.IsActive {
		return 0, fmt.Errorf("%w: currency %s is not active", shared.ErrInvalid, code)
	}
	return rate.RateToBase, nil
}

// RatesRelativeTo maps every active currency code to its rate against base.
func (c *Converter) RatesRelativeTo(ctx context.Context, base string) (map[string]float64, error) {
	rates, err := c.repo.ListRates(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rates))
	for _, r := range rates {
		if !r.IsActive {
			continue
		}
		if r.Code == base {
			out[r.Code] = 1
			continue
		}
		rate, err := c.Rate(ctx, base, r.Code)
		if err != nil {
			return nil, err
		}
		out[r.Code] = rate
	}
	return out, nil
}

// ActiveCurrencies lists the currencies sales may be recorded in.
func (c *Converter) ActiveCurrencies(ctx context.Context) ([]Rate, error) {
	rates, err := c.repo.ListRates(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]Rate, 0, len(rates))
	for _, r := range rates {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (c *Converter) lookup(ctx context.Context, code string) (*Rate, error) {
	rate, err := c.repo.GetRate(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("currency %s: %w", code, err)
	}
	return rate, nil
}
