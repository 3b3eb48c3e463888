package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kbediako/sikaflow/internal/aws"
	"github.com/kbediako/sikaflow/internal/config"
	"github.com/kbediako/sikaflow/internal/txn"
	"github.com/kbediako/sikaflow/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.Logger.NewLogger()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	// The worker executes already-decided transactions; it needs the wallet
	// but never the approval queue, so no publisher is wired.
	w := wallet.NewInMemoryWallet()
	compliance := wallet.NewStaticCompliance()
	notifier := &wallet.LogNotifier{Logger: logger}

	store := txn.NewStore(clients.DynamoDB, cfg.Tables.Transactions, cfg.Tables.TurnIdempotency, cfg.Tables.TTLWindow)
	manager := txn.NewManager(store, w, compliance, notifier, nil, txn.NewMetrics(clients.CloudWatch), txn.Limits{
		Currency:           cfg.Limits.Currency,
		MaxAmount:          cfg.Limits.MaxAmount,
		DailyCap:           cfg.Limits.DailyCap,
		MonthlyCap:         cfg.Limits.MonthlyCap,
		ApprovalThreshold:  cfg.Approval.Threshold,
		ComplianceFailOpen: cfg.Limits.ComplianceFailOpen,
	}, logger)

	p := NewProcessor(manager, logger)

	// RUN_LOCAL processes one simulated SQS event for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"transaction_id":"TXF-0000-0-local","decision":"approved"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{Body: body}},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
