package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/kbediako/sikaflow/internal/txn"
)

// Processor consumes approval decisions and drives approved transactions to
// their terminal state. Approval happens long after the originating session
// has expired, so nothing here touches the session store.
type Processor struct {
	manager *txn.Manager
	logger  *slog.Logger
}

// NewProcessor returns a worker processor.
func NewProcessor(manager *txn.Manager, logger *slog.Logger) *Processor {
	return &Processor{manager: manager, logger: logger}
}

// Handle receives an SQS batch event and processes each message. Returning
// an error makes the runtime redeliver the batch; terminal transactions are
// skipped on redelivery, so duplicates are harmless.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.ErrorContext(ctx, "approver error", slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg txn.ApprovalMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.TransactionID == "" {
		return fmt.Errorf("message missing transaction_id: %s", rec.Body)
	}

	p.logger.InfoContext(ctx, "executing approved transaction",
		slog.String("transaction_id", msg.TransactionID))

	if err := p.manager.ExecuteApproved(ctx, msg.TransactionID); err != nil {
		return fmt.Errorf("execute %s: %w", msg.TransactionID, err)
	}
	return nil
}
