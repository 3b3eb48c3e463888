package txn

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a transaction.
type Kind string

const (
	KindTransfer     Kind = "transfer"
	KindBillPayment  Kind = "bill_payment"
	KindAirtime      Kind = "airtime"
	KindBalanceCheck Kind = "balance_check"
)

// Status values for the transaction lifecycle. A transaction reaches
// completed or failed exactly once; pending_approval -> approved/rejected is
// the only transition taken by a human.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusProcessing      Status = "PROCESSING"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
)

// Error reasons recorded on failed transactions.
const (
	ReasonDailyLimit            = "daily_limit_exceeded"
	ReasonMonthlyLimit          = "monthly_limit_exceeded"
	ReasonSanctionsMatch        = "sanctions_match"
	ReasonComplianceUnavailable = "compliance_unavailable"
	ReasonInsufficientFunds     = "insufficient_funds"
	ReasonWalletError           = "wallet_error"
	ReasonRejectedByReviewer    = "rejected_by_reviewer"
)

// Transaction is the item stored in the transactions DynamoDB table.
type Transaction struct {
	TransactionID string     `dynamodbav:"transaction_id"` // PK
	SessionID     string     `dynamodbav:"session_id"`
	MSISDN        string     `dynamodbav:"msisdn"` // GSI PK (msisdn-created_at-index)
	Kind          Kind       `dynamodbav:"kind"`
	AmountMinor   int64      `dynamodbav:"amount_minor"`
	Currency      string     `dynamodbav:"currency"`
	Recipient     string     `dynamodbav:"recipient,omitempty"`   // transfers: counterparty MSISDN
	AccountRef    string     `dynamodbav:"account_ref,omitempty"` // bill payments: biller reference
	Status        Status     `dynamodbav:"status"`
	ErrorReason   string     `dynamodbav:"error_reason,omitempty"`
	CreatedAt     time.Time  `dynamodbav:"created_at"` // GSI SK, RFC3339 sorts lexicographically
	UpdatedAt     time.Time  `dynamodbav:"updated_at"`
	CompletedAt   *time.Time `dynamodbav:"completed_at,omitempty"`
}

// Terminal reports whether no further transitions are allowed.
func (t *Transaction) Terminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// TurnRecord guards one terminal menu turn against duplicate delivery. The
// key is sessionID#menuKey, so replaying the identical turn finds the record
// instead of creating a second transaction.
type TurnRecord struct {
	TurnKey       string    `dynamodbav:"turn_key"` // PK
	TransactionID string    `dynamodbav:"transaction_id,omitempty"`
	Response      string    `dynamodbav:"response,omitempty"` // terminal reply replayed to duplicates
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at"`
	ExpiresAt     int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// TurnKey derives the idempotency key for a terminal turn.
func TurnKey(sessionID, menuKey string) string {
	return sessionID + "#" + menuKey
}

var kindPrefix = map[Kind]string{
	KindTransfer:     "TXF",
	KindBillPayment:  "BIL",
	KindAirtime:      "AIR",
	KindBalanceCheck: "BAL",
}

// NewTransactionID builds a traceable id encoding kind, origin session and
// creation time, e.g. TXF-4F2A-1718000000000-9c1d2e3f.
func NewTransactionID(kind Kind, sessionID string, now time.Time) string {
	prefix, ok := kindPrefix[kind]
	if !ok {
		prefix = "TXN"
	}
	tail := sessionID
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	entropy := uuid.NewString()[:8]
	return fmt.Sprintf("%s-%s-%d-%s", prefix, tail, now.UnixMilli(), entropy)
}

// ApprovalMessage is the payload sent to the approver worker via SQS.
type ApprovalMessage struct {
	TransactionID string `json:"transaction_id"`
	Decision      string `json:"decision"` // "approved"
	CorrelationID string `json:"correlation_id,omitempty"`
}
