package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/kbediako/sikaflow/internal/aws"
	"github.com/kbediako/sikaflow/internal/config"
	"github.com/kbediako/sikaflow/internal/handlers"
	"github.com/kbediako/sikaflow/internal/menu"
	"github.com/kbediako/sikaflow/internal/session"
	"github.com/kbediako/sikaflow/internal/txn"
	"github.com/kbediako/sikaflow/internal/wallet"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

func newSessionStore(cfg *config.Config) (session.Store, error) {
	if os.Getenv("SESSION_STORE") == "memory" {
		return session.NewStore(session.StoreTypeMemory,
			session.WithSessionTTL(cfg.Session.Timeout),
			session.WithLockTTL(cfg.Session.TurnLockTTL),
		)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return session.NewStore(session.StoreTypeRedis,
		session.WithRedisClient(client),
		session.WithSessionTTL(cfg.Session.Timeout),
		session.WithLockTTL(cfg.Session.TurnLockTTL),
	)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	sessions, err := newSessionStore(cfg)
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	var publisher *aws.Publisher
	if cfg.Tables.ApprovalQueue != "" {
		publisher = aws.NewPublisher(clients.SQS, cfg.Tables.ApprovalQueue)
	}

	// Local collaborator implementations; deployments substitute the real
	// wallet and compliance clients here.
	w := wallet.NewInMemoryWallet()
	compliance := wallet.NewStaticCompliance()
	notifier := &wallet.LogNotifier{Logger: logger}

	store := txn.NewStore(clients.DynamoDB, cfg.Tables.Transactions, cfg.Tables.TurnIdempotency, cfg.Tables.TTLWindow)
	manager := txn.NewManager(store, w, compliance, notifier, publisher, txn.NewMetrics(clients.CloudWatch), txn.Limits{
		Currency:           cfg.Limits.Currency,
		MaxAmount:          cfg.Limits.MaxAmount,
		DailyCap:           cfg.Limits.DailyCap,
		MonthlyCap:         cfg.Limits.MonthlyCap,
		ApprovalThreshold:  cfg.Approval.Threshold,
		ComplianceFailOpen: cfg.Limits.ComplianceFailOpen,
	}, logger)

	registry, err := menu.NewRegistry(menu.DefaultTree())
	if err != nil {
		log.Fatalf("invalid menu tree: %v", err)
	}

	engine := menu.NewEngine(sessions, manager, registry, menu.Config{
		SessionTimeout: cfg.Session.Timeout,
		MaxFailedTries: cfg.Session.MaxFailedTries,
		MinAmount:      cfg.Limits.MinAmount,
		MaxAmount:      cfg.Limits.MaxAmount,
		Currency:       cfg.Limits.Currency,
	}, logger)

	r := setupRouter(handlers.HandlerConfig{
		Engine:   engine,
		Sessions: sessions,
		Manager:  manager,
		Gateway:  cfg.Gateway,
		Logger:   logger,
	})

	// RUN_LOCAL starts a plain HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":" + cfg.Server.Port
		logger.Info("running local server", slog.String("addr", addr))
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
