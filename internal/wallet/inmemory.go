package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryWallet is a thread-safe wallet for local runs and tests.
type InMemoryWallet struct {
	mu       sync.Mutex
	balances map[string]map[string]int64 // msisdn -> currency -> minor units
}

// NewInMemoryWallet returns an empty wallet.
func NewInMemoryWallet() *InMemoryWallet {
	return &InMemoryWallet{balances: map[string]map[string]int64{}}
}

// Seed sets a user's balance directly.
func (w *InMemoryWallet) Seed(msisdn, currency string, amountMinor int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances[msisdn] == nil {
		w.balances[msisdn] = map[string]int64{}
	}
	w.balances[msisdn][currency] = amountMinor
}

func (w *InMemoryWallet) Debit(ctx context.Context, msisdn, currency string, amountMinor int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.debitLocked(msisdn, currency, amountMinor)
}

func (w *InMemoryWallet) Credit(ctx context.Context, msisdn, currency string, amountMinor int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.creditLocked(msisdn, currency, amountMinor)
	return nil
}

// Transfer debits and credits under a single lock; both legs or neither.
func (w *InMemoryWallet) Transfer(ctx context.Context, from, to, currency string, amountMinor int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.debitLocked(from, currency, amountMinor); err != nil {
		return err
	}
	w.creditLocked(to, currency, amountMinor)
	return nil
}

func (w *InMemoryWallet) Balances(ctx context.Context, msisdn string) ([]Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	acct, ok := w.balances[msisdn]
	if !ok {
		return nil, ErrUnknownAccount
	}
	out := make([]Balance, 0, len(acct))
	for cur, amt := range acct {
		out = append(out, Balance{Currency: cur, AmountMinor: amt})
	}
	return out, nil
}

func (w *InMemoryWallet) debitLocked(msisdn, currency string, amountMinor int64) error {
	acct, ok := w.balances[msisdn]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, msisdn)
	}
	if acct[currency] < amountMinor {
		return ErrInsufficientFunds
	}
	acct[currency] -= amountMinor
	return nil
}

func (w *InMemoryWallet) creditLocked(msisdn, currency string, amountMinor int64) {
	if w.balances[msisdn] == nil {
		w.balances[msisdn] = map[string]int64{}
	}
	w.balances[msisdn][currency] += amountMinor
}

// StaticCompliance matches against a fixed denylist of identifiers.
type StaticCompliance struct {
	denied map[string]bool
}

// NewStaticCompliance builds a checker from a denylist.
func NewStaticCompliance(denied ...string) *StaticCompliance {
	m := make(map[string]bool, len(denied))
	for _, d := range denied {
		m[d] = true
	}
	return &StaticCompliance{denied: m}
}

func (c *StaticCompliance) CheckSanctions(ctx context.Context, phoneOrAccount string) (bool, error) {
	return c.denied[phoneOrAccount], nil
}

// LogNotifier writes notifications to the structured log instead of an SMS
// provider.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, msisdn, event string, payload map[string]string) {
	if n.Logger == nil {
		return
	}
	n.Logger.InfoContext(ctx, "notify",
		slog.String("event", event),
		slog.Any("payload", payload),
	)
}
