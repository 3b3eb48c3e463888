package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kbediako/sikaflow/internal/config"
	"github.com/kbediako/sikaflow/internal/menu"
	"github.com/kbediako/sikaflow/internal/session"
	"github.com/kbediako/sikaflow/internal/txn"
	"github.com/kbediako/sikaflow/internal/validate"
)

// Decider is the slice of the transaction lifecycle the admin routes use.
type Decider interface {
	Approve(ctx context.Context, transactionID string) (*txn.Transaction, error)
	Reject(ctx context.Context, transactionID string) (*txn.Transaction, error)
	Recent(ctx context.Context, msisdn string, limit int32) ([]txn.Transaction, error)
}

var _ Decider = (*txn.Manager)(nil)

// HandlerConfig groups dependencies for the USSD routes.
type HandlerConfig struct {
	Engine   *menu.Engine
	Sessions session.Store
	Manager  Decider
	Gateway  config.GatewayConfig
	Logger   *slog.Logger
}

// RegisterRoutes registers the gateway callback and the admin routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validate.New()

	r.POST("/ussd", gatewayAuth(cfg.Gateway), func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validate.GatewayRequest
		if err := validate.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400; transport errors never
			// reach the menu engine.
			return
		}

		sess, created, err := cfg.Sessions.GetOrCreate(ctx, req.SessionID, req.MSISDN, req.Network)
		if err != nil {
			cfg.Logger.ErrorContext(ctx, "session lookup failed",
				slog.String("session_id", req.SessionID), slog.String("error", err.Error()))
			respond(c, menu.End("Sorry, we could not complete your request. Please try again later."))
			return
		}

		input := lastSegment(req.Text)

		if created && input == "" {
			reply, _ := cfg.Engine.RenderCurrent(sess)
			respond(c, reply)
			return
		}

		// A session outside active state accepts no further input and its
		// conversation data stays untouched.
		if !sess.Active(time.Now()) {
			respond(c, menu.End("Your session has ended. Please dial again."))
			return
		}

		ok, err := cfg.Sessions.AcquireTurnLock(ctx, sess.ID)
		if err != nil {
			cfg.Logger.ErrorContext(ctx, "turn lock failed",
				slog.String("session_id", sess.ID), slog.String("error", err.Error()))
			respond(c, menu.End("Sorry, we could not complete your request. Please try again later."))
			return
		}
		if !ok {
			// A concurrent delivery of the same session is mid-turn.
			respond(c, menu.End("Your request is being processed. Please dial again."))
			return
		}
		defer func() {
			if err := cfg.Sessions.ReleaseTurnLock(ctx, sess.ID); err != nil {
				cfg.Logger.WarnContext(ctx, "turn lock release failed",
					slog.String("session_id", sess.ID), slog.String("error", err.Error()))
			}
		}()

		reply, _, err := cfg.Engine.HandleTurn(ctx, sess, input)
		if err != nil {
			cfg.Logger.ErrorContext(ctx, "turn failed",
				slog.String("session_id", sess.ID), slog.String("error", err.Error()))
			respond(c, menu.End("Sorry, we could not complete your request. Please try again later."))
			return
		}
		respond(c, reply)
	})

	admin := r.Group("/admin", adminAuth(cfg.Gateway.AdminToken))

	admin.POST("/transactions/:id/approve", func(c *gin.Context) {
		t, err := cfg.Manager.Approve(c.Request.Context(), c.Param("id"))
		writeDecision(c, t, err)
	})

	admin.POST("/transactions/:id/reject", func(c *gin.Context) {
		t, err := cfg.Manager.Reject(c.Request.Context(), c.Param("id"))
		writeDecision(c, t, err)
	})

	admin.GET("/transactions", func(c *gin.Context) {
		msisdn := c.Query("msisdn")
		if msisdn == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_msisdn"})
			return
		}
		items, err := cfg.Manager.Recent(c.Request.Context(), msisdn, 10)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query_failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": items})
	})
}

// respond writes the two-token plain-text reply. Handled outcomes are always
// HTTP 200; 4xx is reserved for transport and auth failures.
func respond(c *gin.Context, reply string) {
	c.String(http.StatusOK, reply)
}

func writeDecision(c *gin.Context, t *txn.Transaction, err error) {
	switch {
	case err == nil && t != nil:
		c.JSON(http.StatusOK, gin.H{
			"transaction_id": t.TransactionID,
			"status":         t.Status,
			"error_reason":   t.ErrorReason,
		})
	case err == txn.ErrStatusMismatch:
		c.JSON(http.StatusConflict, gin.H{"error": "not_pending_approval"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decision_failed"})
	}
}

// lastSegment extracts the final input from a cumulative dial string; the
// server-side menu state supplies the context for earlier segments.
func lastSegment(text string) string {
	if text == "" {
		return ""
	}
	parts := strings.Split(text, "*")
	return parts[len(parts)-1]
}
