package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/nastyazhadan/paper-exchange/internal/domain/models"
	serviceErrors "github.com/nastyazhadan/paper-exchange/shared/errors/service"
)

// Book is the in-memory copy of the account balances owned by the settlement actor.
// Every operation either applies fully or leaves the book untouched.
type Book struct {
	balances map[string]models.AssetBalance
	touched  map[string]struct{}
}

func NewBook(balances []models.AssetBalance) *Book {
	book := &Book{
		balances: make(map[string]models.AssetBalance, len(balances)),
		touched:  make(map[string]struct{}),
	}
	for _, balance := range balances {
		book.balances[balance.Asset] = balance
	}

	return book
}

func (b *Book) Get(asset string) models.AssetBalance {
	balance, ok := b.balances[asset]
	if !ok {
		return models.AssetBalance{Asset: asset, Free: decimal.Zero, Used: decimal.Zero}
	}
	return balance
}

// All returns balances sorted by asset.
func (b *Book) All() []models.AssetBalance {
	out := make([]models.AssetBalance, 0, len(b.balances))
	for _, balance := range b.balances {
		out = append(out, balance)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })

	return out
}

// Reserve moves amount from free to used.
func (b *Book) Reserve(asset string, amount decimal.Decimal) error {
	const op = "Book.Reserve"

	if !amount.IsPositive() {
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidAmount)
	}

	balance := b.Get(asset)
	if balance.Free.LessThan(amount) {
		return fmt.Errorf("%s: %s free %s < %s: %w",
			op, asset, balance.Free, amount, serviceErrors.ErrInsufficientFunds)
	}

	balance.Free = balance.Free.Sub(amount)
	balance.Used = balance.Used.Add(amount)
	b.set(balance)

	return nil
}

// Release moves amount from used back to free.
func (b *Book) Release(asset string, amount decimal.Decimal) error {
	const op = "Book.Release"

	if !amount.IsPositive() {
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidAmount)
	}

	balance := b.Get(asset)
	if balance.Used.LessThan(amount) {
		return fmt.Errorf("%s: %s used %s < %s: %w",
			op, asset, balance.Used, amount, serviceErrors.ErrInvariantViolation)
	}

	balance.Used = balance.Used.Sub(amount)
	balance.Free = balance.Free.Add(amount)
	b.set(balance)

	return nil
}

// Settle consumes debitAmount of reserved debitAsset and credits creditAmount of free creditAsset.
func (b *Book) Settle(debitAsset string, debitAmount decimal.Decimal, creditAsset string, creditAmount decimal.Decimal) error {
	const op = "Book.Settle"

	if !debitAmount.IsPositive() || !creditAmount.IsPositive() {
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidAmount)
	}

	debit := b.Get(debitAsset)
	if debit.Used.LessThan(debitAmount) {
		return fmt.Errorf("%s: %s used %s < %s: %w",
			op, debitAsset, debit.Used, debitAmount, serviceErrors.ErrInvariantViolation)
	}

	debit.Used = debit.Used.Sub(debitAmount)
	b.set(debit)

	credit := b.Get(creditAsset)
	credit.Free = credit.Free.Add(creditAmount)
	b.set(credit)

	return nil
}

func (b *Book) Deposit(asset string, amount decimal.Decimal) error {
	const op = "Book.Deposit"

	if asset == "" {
		return fmt.Errorf("%s: empty asset: %w", op, serviceErrors.ErrValidation)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidAmount)
	}

	balance := b.Get(asset)
	balance.Free = balance.Free.Add(amount)
	b.set(balance)

	return nil
}

// Clone is a deep copy; the touched set starts empty.
func (b *Book) Clone() *Book {
	clone := &Book{
		balances: make(map[string]models.AssetBalance, len(b.balances)),
		touched:  make(map[string]struct{}),
	}
	for asset, balance := range b.balances {
		clone.balances[asset] = balance
	}

	return clone
}

// Touched returns the balances changed since the book was created or cloned, sorted by asset.
func (b *Book) Touched() []models.AssetBalance {
	out := make([]models.AssetBalance, 0, len(b.touched))
	for asset := range b.touched {
		out = append(out, b.balances[asset])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })

	return out
}

func (b *Book) set(balance models.AssetBalance) {
	b.balances[balance.Asset] = balance
	b.touched[balance.Asset] = struct{}{}
}
