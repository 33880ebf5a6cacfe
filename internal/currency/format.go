package currency

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dijla-pos/dijla-pos/internal/shared"
)

// Formatter renders amounts with the currency's symbol and digit grouping,
// e.g. "$ 1,250.00" or "IQD 1,500,000.00".
type Formatter struct {
	repo    RepositoryPort
	printer *message.Printer
}

// NewFormatter constructs a formatter.
func NewFormatter(repo RepositoryPort) *Formatter {
	return &Formatter{repo: repo, printer: message.NewPrinter(language.English)}
}

// Format renders an amount. An unknown currency falls back to its code as the
// symbol so receipts never fail over display concerns.
func (f *Formatter) Format(ctx context.Context, amount float64, code string) (string, error) {
	symbol := code
	rate, err := f.repo.GetRate(ctx, code)
	switch {
	case err == nil:
		if rate.Symbol != "" {
			symbol = rate.Symbol
		}
	case errors.Is(err, shared.ErrNotFound):
	default:
		return "", err
	}
	return fmt.Sprintf("%s %s", symbol, f.printer.Sprintf("%.2f", amount)), nil
}
