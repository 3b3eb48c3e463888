package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kbediako/sikaflow/internal/aws"
	"github.com/kbediako/sikaflow/internal/config"
	"github.com/kbediako/sikaflow/internal/session"
	"github.com/kbediako/sikaflow/internal/validate"
	"github.com/kbediako/sikaflow/internal/wallet"
)

// Limits holds the policy knobs evaluated before money moves.
type Limits struct {
	Currency           string
	MaxAmount          int64
	DailyCap           int64
	MonthlyCap         int64
	ApprovalThreshold  int64
	ComplianceFailOpen bool
}

// Manager owns the transaction lifecycle. It exclusively creates and mutates
// transaction status; sessions only ever reference transactions by id.
type Manager struct {
	store      *Store
	wallet     wallet.Service
	compliance wallet.ComplianceChecker
	notifier   wallet.Notifier
	publisher  *aws.Publisher // nil: approved transactions execute inline
	metrics    *Metrics
	limits     Limits
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// NewManager wires the lifecycle manager.
func NewManager(store *Store, w wallet.Service, c wallet.ComplianceChecker, n wallet.Notifier, pub *aws.Publisher, metrics *Metrics, limits Limits, logger *slog.Logger) *Manager {
	return &Manager{
		store:      store,
		wallet:     w,
		compliance: c,
		notifier:   n,
		publisher:  pub,
		metrics:    metrics,
		limits:     limits,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// SubmitRequest carries the fields a completed menu flow collected.
type SubmitRequest struct {
	Kind        Kind
	AmountMinor int64
	Recipient   string
	AccountRef  string
	MenuKey     string // terminal menu node; part of the duplicate-turn key
}

// Result is the outcome of a submission. Message is the user-displayable
// terminal text without the END prefix.
type Result struct {
	Transaction *Transaction
	Duplicate   bool
	Message     string
}

// Submit creates a transaction from a completed flow and drives it through
// limit and compliance gates to a terminal or pending-approval state. A
// replayed identical turn returns the stored outcome instead of creating a
// second transaction.
func (m *Manager) Submit(ctx context.Context, sess *session.Session, req SubmitRequest) (*Result, error) {
	now := m.nowFunc()
	t := &Transaction{
		TransactionID: NewTransactionID(req.Kind, sess.ID, now),
		SessionID:     sess.ID,
		MSISDN:        sess.MSISDN,
		Kind:          req.Kind,
		AmountMinor:   req.AmountMinor,
		Currency:      m.limits.Currency,
		Recipient:     req.Recipient,
		AccountRef:    req.AccountRef,
		Status:        StatusPending,
		CreatedAt:     now,
	}

	turnKey := TurnKey(sess.ID, req.MenuKey)
	if err := m.store.CreateWithTurnGuard(ctx, turnKey, t); err != nil {
		if errors.Is(err, ErrDuplicateTurn) {
			return m.replay(ctx, turnKey)
		}
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	m.logger.InfoContext(ctx, "transaction created",
		slog.String("transaction_id", t.TransactionID),
		slog.String("kind", string(t.Kind)),
		slog.String("msisdn", config.MaskMSISDN(t.MSISDN)),
		slog.Int64("amount_minor", t.AmountMinor),
	)

	if res, done := m.enforceLimits(ctx, turnKey, t); done {
		return res, nil
	}
	if res, done := m.enforceCompliance(ctx, turnKey, t); done {
		return res, nil
	}

	if t.Kind == KindTransfer && t.AmountMinor > m.limits.ApprovalThreshold {
		return m.escalate(ctx, turnKey, t)
	}

	if err := m.store.UpdateStatus(ctx, t.TransactionID, StatusPending, StatusProcessing, ""); err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			return m.replay(ctx, turnKey)
		}
		return m.fail(ctx, turnKey, t, StatusPending, ReasonWalletError,
			"Sorry, we could not complete your request. Please try again later.")
	}
	t.Status = StatusProcessing

	status, reason := m.execute(ctx, t)
	t.Status = status
	t.ErrorReason = reason

	event := "transaction_completed"
	if status != StatusCompleted {
		event = "transaction_failed"
	}
	m.notify(ctx, t, event)

	msg := m.outcomeMessage(t)
	m.finishTurn(ctx, turnKey, msg)
	return &Result{Transaction: t, Message: msg}, nil
}

// CheckBalance answers the balance branch and records a zero-amount
// balance_check transaction for audit.
func (m *Manager) CheckBalance(ctx context.Context, sess *session.Session, menuKey string) (*Result, error) {
	now := m.nowFunc()
	completedAt := now
	t := &Transaction{
		TransactionID: NewTransactionID(KindBalanceCheck, sess.ID, now),
		SessionID:     sess.ID,
		MSISDN:        sess.MSISDN,
		Kind:          KindBalanceCheck,
		Currency:      m.limits.Currency,
		Status:        StatusCompleted,
		CreatedAt:     now,
		CompletedAt:   &completedAt,
	}

	turnKey := TurnKey(sess.ID, menuKey)
	if err := m.store.CreateWithTurnGuard(ctx, turnKey, t); err != nil {
		if errors.Is(err, ErrDuplicateTurn) {
			return m.replay(ctx, turnKey)
		}
		return nil, fmt.Errorf("create balance check: %w", err)
	}

	balances, err := m.wallet.Balances(ctx, sess.MSISDN)
	if err != nil {
		msg := "Sorry, your balance is unavailable right now. Please try again later."
		m.finishTurn(ctx, turnKey, msg)
		return &Result{Transaction: t, Message: msg}, nil
	}

	msg := "Your balance:"
	for _, b := range balances {
		msg += fmt.Sprintf("\n%s %s", b.Currency, validate.FormatMinor(b.AmountMinor))
	}
	m.finishTurn(ctx, turnKey, msg)
	return &Result{Transaction: t, Message: msg}, nil
}

// Approve transitions pending_approval -> approved and hands the transaction
// to the execution path, via the approval queue when one is configured or
// inline otherwise. The originating session has usually ended by now.
func (m *Manager) Approve(ctx context.Context, transactionID string) (*Transaction, error) {
	if err := m.store.UpdateStatus(ctx, transactionID, StatusPendingApproval, StatusApproved, ""); err != nil {
		return nil, err
	}

	if m.publisher != nil {
		msg := ApprovalMessage{TransactionID: transactionID, Decision: "approved"}
		body, _ := json.Marshal(msg)
		err := m.publisher.SendApprovalMessage(ctx, string(body), map[string]string{
			"transaction_id": transactionID,
		})
		if err == nil {
			return m.store.Get(ctx, transactionID)
		}
		// An approved transaction may not sit in APPROVED forever; if the
		// queue is down, execute on this path instead.
		m.logger.WarnContext(ctx, "approval enqueue failed, executing inline",
			slog.String("transaction_id", transactionID), slog.String("error", err.Error()))
	}

	if err := m.ExecuteApproved(ctx, transactionID); err != nil {
		return nil, err
	}
	return m.store.Get(ctx, transactionID)
}

// Reject transitions pending_approval -> rejected. Terminal.
func (m *Manager) Reject(ctx context.Context, transactionID string) (*Transaction, error) {
	if err := m.store.UpdateStatus(ctx, transactionID, StatusPendingApproval, StatusRejected, ReasonRejectedByReviewer); err != nil {
		return nil, err
	}
	t, err := m.store.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t != nil {
		m.metrics.RecordOutcome(t.Kind, StatusRejected)
		m.notify(ctx, t, "transaction_rejected")
	}
	return t, nil
}

// ExecuteApproved drives an approved transaction to completed or failed.
// Safe under duplicate queue deliveries: the conditional transition collapses
// competing executors to one.
func (m *Manager) ExecuteApproved(ctx context.Context, transactionID string) error {
	t, err := m.store.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("transaction not found: %s", transactionID)
	}
	if t.Terminal() {
		return nil
	}

	if err := m.store.UpdateStatus(ctx, transactionID, StatusApproved, StatusProcessing, ""); err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			t2, gerr := m.store.Get(ctx, transactionID)
			if gerr != nil {
				return gerr
			}
			if t2 != nil && (t2.Terminal() || t2.Status == StatusProcessing) {
				// Another executor has it.
				return nil
			}
			return fmt.Errorf("transaction %s in unexpected status", transactionID)
		}
		return err
	}
	t.Status = StatusProcessing

	status, reason := m.execute(ctx, t)
	t.Status = status
	t.ErrorReason = reason

	event := "transaction_completed"
	if status != StatusCompleted {
		event = "transaction_failed"
	}
	m.notify(ctx, t, event)
	return nil
}

// Recent returns the caller's latest transactions for the status branch.
func (m *Manager) Recent(ctx context.Context, msisdn string, limit int32) ([]Transaction, error) {
	return m.store.RecentByCaller(ctx, msisdn, limit)
}

// Get returns one transaction by id.
func (m *Manager) Get(ctx context.Context, transactionID string) (*Transaction, error) {
	return m.store.Get(ctx, transactionID)
}

// execute moves money for a PROCESSING transaction and lands it on completed
// or failed. Returns the final status and error reason.
func (m *Manager) execute(ctx context.Context, t *Transaction) (Status, string) {
	var opErr error
	switch t.Kind {
	case KindTransfer:
		opErr = m.wallet.Transfer(ctx, t.MSISDN, t.Recipient, t.Currency, t.AmountMinor)
	case KindBillPayment, KindAirtime:
		opErr = m.wallet.Debit(ctx, t.MSISDN, t.Currency, t.AmountMinor)
	default:
		opErr = fmt.Errorf("kind %s does not move money", t.Kind)
	}

	if opErr != nil {
		reason := ReasonWalletError
		if errors.Is(opErr, wallet.ErrInsufficientFunds) {
			reason = ReasonInsufficientFunds
		}
		m.logger.WarnContext(ctx, "wallet operation failed",
			slog.String("transaction_id", t.TransactionID),
			slog.String("reason", reason),
			slog.String("error", opErr.Error()),
		)
		if err := m.store.UpdateStatus(ctx, t.TransactionID, StatusProcessing, StatusFailed, reason); err != nil {
			m.logger.ErrorContext(ctx, "failed to record transaction failure",
				slog.String("transaction_id", t.TransactionID), slog.String("error", err.Error()))
		}
		m.metrics.RecordOutcome(t.Kind, StatusFailed)
		return StatusFailed, reason
	}

	if err := m.store.UpdateStatus(ctx, t.TransactionID, StatusProcessing, StatusCompleted, ""); err != nil {
		m.logger.ErrorContext(ctx, "failed to record transaction completion",
			slog.String("transaction_id", t.TransactionID), slog.String("error", err.Error()))
		return StatusFailed, ReasonWalletError
	}
	m.metrics.RecordOutcome(t.Kind, StatusCompleted)
	return StatusCompleted, ""
}

// enforceLimits checks rolling daily and monthly aggregate spend. The
// rejection message reports the caller's remaining headroom.
func (m *Manager) enforceLimits(ctx context.Context, turnKey string, t *Transaction) (*Result, bool) {
	now := m.nowFunc().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	daySpent, err := m.store.SumCompletedSince(ctx, t.MSISDN, dayStart)
	if err != nil {
		res, _ := m.fail(ctx, turnKey, t, StatusPending, ReasonWalletError,
			"Sorry, we could not complete your request. Please try again later.")
		return res, true
	}
	if daySpent+t.AmountMinor > m.limits.DailyCap {
		headroom := m.limits.DailyCap - daySpent
		if headroom < 0 {
			headroom = 0
		}
		msg := fmt.Sprintf("Daily limit exceeded. You can still send up to %s %s today.",
			m.limits.Currency, validate.FormatMinor(headroom))
		res, _ := m.fail(ctx, turnKey, t, StatusPending, ReasonDailyLimit, msg)
		return res, true
	}

	monthSpent, err := m.store.SumCompletedSince(ctx, t.MSISDN, monthStart)
	if err != nil {
		res, _ := m.fail(ctx, turnKey, t, StatusPending, ReasonWalletError,
			"Sorry, we could not complete your request. Please try again later.")
		return res, true
	}
	if monthSpent+t.AmountMinor > m.limits.MonthlyCap {
		headroom := m.limits.MonthlyCap - monthSpent
		if headroom < 0 {
			headroom = 0
		}
		msg := fmt.Sprintf("Monthly limit exceeded. You can still send up to %s %s this month.",
			m.limits.Currency, validate.FormatMinor(headroom))
		res, _ := m.fail(ctx, turnKey, t, StatusPending, ReasonMonthlyLimit, msg)
		return res, true
	}
	return nil, false
}

// enforceCompliance runs the sanctions screen on the counterparty. A match is
// a hard, terminal rejection. When the check itself errors, the fail-open
// policy is an explicit configuration decision, not an implicit fallback.
func (m *Manager) enforceCompliance(ctx context.Context, turnKey string, t *Transaction) (*Result, bool) {
	counterparty := t.Recipient
	if counterparty == "" {
		counterparty = t.AccountRef
	}
	if counterparty == "" {
		return nil, false
	}

	matched, err := m.compliance.CheckSanctions(ctx, counterparty)
	if err != nil {
		if m.limits.ComplianceFailOpen {
			m.logger.WarnContext(ctx, "compliance check failed, continuing (fail-open)",
				slog.String("transaction_id", t.TransactionID), slog.String("error", err.Error()))
			return nil, false
		}
		res, _ := m.fail(ctx, turnKey, t, StatusPending, ReasonComplianceUnavailable,
			"Sorry, we could not complete your request. Please try again later.")
		return res, true
	}
	if matched {
		res, _ := m.fail(ctx, turnKey, t, StatusPending, ReasonSanctionsMatch,
			"This transaction cannot be completed.")
		return res, true
	}
	return nil, false
}

// escalate parks a transaction for human review.
func (m *Manager) escalate(ctx context.Context, turnKey string, t *Transaction) (*Result, error) {
	if err := m.store.UpdateStatus(ctx, t.TransactionID, StatusPending, StatusPendingApproval, ""); err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			return m.replay(ctx, turnKey)
		}
		return m.fail(ctx, turnKey, t, StatusPending, ReasonWalletError,
			"Sorry, we could not complete your request. Please try again later.")
	}
	t.Status = StatusPendingApproval

	msg := fmt.Sprintf("Your transfer of %s %s is pending approval. You will be notified. Transaction ID: %s",
		m.limits.Currency, validate.FormatMinor(t.AmountMinor), t.TransactionID)
	m.finishTurn(ctx, turnKey, msg)
	m.notify(ctx, t, "transaction_pending_approval")
	m.metrics.RecordOutcome(t.Kind, StatusPendingApproval)
	return &Result{Transaction: t, Message: msg}, nil
}

// fail lands a non-terminal transaction on failed with a structured reason.
// The record is never silently dropped.
func (m *Manager) fail(ctx context.Context, turnKey string, t *Transaction, from Status, reason, msg string) (*Result, error) {
	if err := m.store.UpdateStatus(ctx, t.TransactionID, from, StatusFailed, reason); err != nil {
		m.logger.ErrorContext(ctx, "failed to mark transaction failed",
			slog.String("transaction_id", t.TransactionID), slog.String("error", err.Error()))
	}
	t.Status = StatusFailed
	t.ErrorReason = reason
	m.metrics.RecordOutcome(t.Kind, StatusFailed)
	m.finishTurn(ctx, turnKey, msg)
	return &Result{Transaction: t, Message: msg}, nil
}

// replay answers a duplicate terminal turn with the originally stored
// outcome; no second transaction is created.
func (m *Manager) replay(ctx context.Context, turnKey string) (*Result, error) {
	rec, err := m.store.GetTurn(ctx, turnKey)
	if err != nil {
		return nil, fmt.Errorf("duplicate turn lookup: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("turn guard hit but record missing: %s", turnKey)
	}

	res := &Result{Duplicate: true, Message: rec.Response}
	if res.Message == "" {
		// First delivery is still mid-flight.
		res.Message = "Your request is being processed."
	}
	if rec.TransactionID != "" {
		if t, err := m.store.Get(ctx, rec.TransactionID); err == nil {
			res.Transaction = t
		}
	}
	return res, nil
}

func (m *Manager) finishTurn(ctx context.Context, turnKey, msg string) {
	if err := m.store.SaveTurnResponse(ctx, turnKey, msg); err != nil {
		m.logger.WarnContext(ctx, "failed to store turn response",
			slog.String("turn_key", turnKey), slog.String("error", err.Error()))
	}
}

// outcomeMessage renders the terminal user text for an executed transaction.
// Internal identifiers never leak; the transaction id is the user's receipt.
func (m *Manager) outcomeMessage(t *Transaction) string {
	amount := fmt.Sprintf("%s %s", t.Currency, validate.FormatMinor(t.AmountMinor))
	if t.Status == StatusCompleted {
		switch t.Kind {
		case KindTransfer:
			return fmt.Sprintf("You sent %s to %s. Transaction ID: %s", amount, t.Recipient, t.TransactionID)
		case KindBillPayment:
			return fmt.Sprintf("Bill payment of %s to %s completed. Transaction ID: %s", amount, t.AccountRef, t.TransactionID)
		case KindAirtime:
			return fmt.Sprintf("Airtime purchase of %s completed. Transaction ID: %s", amount, t.TransactionID)
		default:
			return fmt.Sprintf("Transaction completed. Transaction ID: %s", t.TransactionID)
		}
	}

	switch t.ErrorReason {
	case ReasonInsufficientFunds:
		return "You do not have enough funds for this transaction."
	default:
		return "Sorry, we could not complete your request. Please try again later."
	}
}

func (m *Manager) notify(ctx context.Context, t *Transaction, event string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, t.MSISDN, event, map[string]string{
		"transaction_id": t.TransactionID,
		"kind":           string(t.Kind),
		"amount":         validate.FormatMinor(t.AmountMinor),
		"currency":       t.Currency,
		"status":         string(t.Status),
	})
}
