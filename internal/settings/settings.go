// Package settings exposes the two pieces of stored configuration the sale
// ledger reads: the default sale currency and the USD/IQD exchange rates.
// Settings are persisted as untyped key/value rows; this package is the only
// place that parses them.
package settings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// Setting keys read by the ledger.
const (
	KeyDefaultCurrency = "currency.default"
	KeyUSDRate         = "currency.usd_rate"
	KeyIQDRate         = "currency.iqd_rate"
)

// Defaults applied when a key is missing or unparsable.
const (
	DefaultCurrency = "IQD"
	DefaultUSDRate  = 1500
	DefaultIQDRate  = 1
)

// Setting is one stored key/value row.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description *string   `json:"description,omitempty"`
	UpdatedBy   int64     `json:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CurrencySettings is the typed view consumed by the sale ledger.
type CurrencySettings struct {
	DefaultCurrency string
	USDRate         float64
	IQDRate         float64
}

// RepositoryPort abstracts settings storage.
type RepositoryPort interface {
	// GetSetting returns the row for a key, shared.ErrNotFound when absent.
	GetSetting(ctx context.Context, key string) (*Setting, error)
}

// Provider reads typed currency settings once per ledger operation.
type Provider struct {
	repo RepositoryPort
}

// NewProvider constructs a provider.
func NewProvider(repo RepositoryPort) *Provider {
	return &Provider{repo: repo}
}

// CurrencySettings resolves the stored currency configuration, falling back
// to defaults for missing or malformed values.
func (p *Provider) CurrencySettings(ctx context.Context) (CurrencySettings, error) {
	cs := CurrencySettings{
		DefaultCurrency: DefaultCurrency,
		USDRate:         DefaultUSDRate,
		IQDRate:         DefaultIQDRate,
	}

	value, err := p.value(ctx, KeyDefaultCurrency)
	if err != nil {
		return CurrencySettings{}, err
	}
	if value != "" {
		cs.DefaultCurrency = value
	}

	if rate, err := p.rate(ctx, KeyUSDRate); err != nil {
		return CurrencySettings{}, err
	} else if rate > 0 {
		cs.USDRate = rate
	}

	if rate, err := p.rate(ctx, KeyIQDRate); err != nil {
		return CurrencySettings{}, err
	} else if rate > 0 {
		cs.IQDRate = rate
	}

	return cs, nil
}

func (p *Provider) value(ctx context.Context, key string) (string, error) {
	setting, err := p.repo.GetSetting(ctx, key)
	if errors.Is(err, shared.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (p *Provider) rate(ctx context.Context, key string) (float64, error) {
	value, err := p.value(ctx, key)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	rate, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, nil
	}
	return rate, nil
}
