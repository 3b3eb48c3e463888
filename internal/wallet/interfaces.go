// Package wallet declares the external collaborator contracts the core
// invokes: money movement, compliance screening and user notification. The
// real implementations live outside this module; the in-memory versions here
// back local runs and tests.
package wallet

import (
	"context"
	"errors"
)

// Collaborator errors surfaced to the transaction lifecycle.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownAccount    = errors.New("unknown account")
)

// Balance is one currency position for a user.
type Balance struct {
	Currency    string `json:"currency"`
	AmountMinor int64  `json:"amount_minor"`
}

// Service moves money. Transfer must be atomic: both legs succeed or neither.
type Service interface {
	Debit(ctx context.Context, msisdn, currency string, amountMinor int64) error
	Credit(ctx context.Context, msisdn, currency string, amountMinor int64) error
	Transfer(ctx context.Context, from, to, currency string, amountMinor int64) error
	Balances(ctx context.Context, msisdn string) ([]Balance, error)
}

// ComplianceChecker screens a counterparty. A match is a hard rejection.
type ComplianceChecker interface {
	CheckSanctions(ctx context.Context, phoneOrAccount string) (bool, error)
}

// Notifier delivers user-facing events. Fire-and-forget: implementations must
// not block or fail the transaction outcome.
type Notifier interface {
	Notify(ctx context.Context, msisdn, event string, payload map[string]string)
}

var (
	_ Service           = (*InMemoryWallet)(nil)
	_ ComplianceChecker = (*StaticCompliance)(nil)
	_ Notifier          = (*LogNotifier)(nil)
)
