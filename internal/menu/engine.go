package menu

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kbediako/sikaflow/internal/config"
	"github.com/kbediako/sikaflow/internal/session"
	"github.com/kbediako/sikaflow/internal/txn"
	"github.com/kbediako/sikaflow/internal/validate"
)

// Response prefixes mandated by the gateway protocol. CON keeps the session
// open for further input; END terminates it. Every reply carries one of the
// two, error replies included.
const (
	prefixContinue = "CON "
	prefixEnd      = "END "
)

// Con wraps a prompt that expects further input.
func Con(text string) string { return prefixContinue + text }

// End wraps a terminal message.
func End(text string) string { return prefixEnd + text }

const backInput = "0"

// Config holds the engine's policy knobs.
type Config struct {
	SessionTimeout time.Duration
	MaxFailedTries int
	MinAmount      int64 // minor units
	MaxAmount      int64
	Currency       string
	PINDenylist    []string
}

// TxnService is the slice of the transaction lifecycle the engine drives.
type TxnService interface {
	Submit(ctx context.Context, sess *session.Session, req txn.SubmitRequest) (*txn.Result, error)
	CheckBalance(ctx context.Context, sess *session.Session, menuKey string) (*txn.Result, error)
	Recent(ctx context.Context, msisdn string, limit int32) ([]txn.Transaction, error)
}

var _ TxnService = (*txn.Manager)(nil)

// Engine resolves one turn of a conversation against the menu tree.
type Engine struct {
	store    session.Store
	manager  TxnService
	registry *Registry
	cfg      Config
	logger   *slog.Logger
}

// NewEngine wires the navigation engine.
func NewEngine(store session.Store, manager TxnService, registry *Registry, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		manager:  manager,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// RenderCurrent renders the session's current node without consuming input.
// Used for the opening turn of a fresh session.
func (e *Engine) RenderCurrent(sess *session.Session) (string, bool) {
	node := e.registry.Get(sess.CurrentMenu)
	if node == nil {
		return End("Sorry, something went wrong. Please dial again."), true
	}
	return Con(node.RenderPrompt(sess)), false
}

// HandleTurn advances the session by one input and returns the wire reply.
// terminal reports that the session is over; after that the engine refuses
// further turns for the id even if the gateway resends one.
func (e *Engine) HandleTurn(ctx context.Context, sess *session.Session, rawInput string) (string, bool, error) {
	input := validate.Sanitize(rawInput)

	e.logger.DebugContext(ctx, "turn",
		slog.String("session_id", sess.ID),
		slog.String("msisdn", config.MaskMSISDN(sess.MSISDN)),
		slog.String("menu", sess.CurrentMenu),
		slog.String("input", input),
	)

	node := e.registry.Get(sess.CurrentMenu)
	if node == nil {
		// Corrupt state. Fail the session rather than guessing.
		return e.failSession(ctx, sess, "unknown menu node "+sess.CurrentMenu)
	}

	if input == backInput && node.ID != "main" {
		return e.goBack(ctx, sess, node)
	}

	if node.Selectable() {
		return e.handleSelection(ctx, sess, node, input)
	}
	return e.handleFreeInput(ctx, sess, node, input)
}

func (e *Engine) handleSelection(ctx context.Context, sess *session.Session, node *Node, input string) (string, bool, error) {
	var chosen *Option
	for i := range node.Options {
		if node.Options[i].Input == input {
			chosen = &node.Options[i]
			break
		}
	}
	if chosen == nil {
		return e.reprompt(ctx, sess, node, "Invalid choice.")
	}

	if chosen.Action != ActionNone {
		return e.runAction(ctx, sess, node, chosen)
	}

	return e.advance(ctx, sess, chosen.Next)
}

func (e *Engine) handleFreeInput(ctx context.Context, sess *session.Session, node *Node, input string) (string, bool, error) {
	normalized, ferr := e.validateField(node, sess, input)
	if ferr != nil {
		// Over the single-transaction cap is a business-rule rejection,
		// terminal for this conversation, not a retryable typo.
		if ferr.Reason == validate.ReasonAboveMaximum {
			return e.endSession(ctx, sess, ferr.Message)
		}
		return e.reprompt(ctx, sess, node, ferr.Message)
	}

	sess.Set(node.DataKey, normalized)
	if node.Field == FieldAmount {
		minor, _ := strconv.ParseInt(normalized, 10, 64)
		sess.Set(node.DataKey+"_display", validate.FormatMinor(minor))
	}

	return e.advance(ctx, sess, node.Next)
}

func (e *Engine) validateField(node *Node, sess *session.Session, input string) (string, *validate.FieldError) {
	switch node.Field {
	case FieldAmount:
		minor, ferr := validate.Amount(input, e.cfg.MinAmount, e.cfg.MaxAmount, e.cfg.Currency)
		if ferr != nil {
			return "", ferr
		}
		return strconv.FormatInt(minor, 10), nil
	case FieldPhone:
		return validate.Phone(input, sess.MSISDN)
	case FieldAccountRef:
		return validate.AccountRef(input)
	case FieldName:
		return validate.Name(input)
	case FieldPIN:
		return validate.PIN(input, e.cfg.PINDenylist)
	}
	return "", &validate.FieldError{Field: string(node.Field), Reason: validate.ReasonBadCharset,
		Message: "Invalid input."}
}

// advance moves the session to the target node and renders its prompt.
func (e *Engine) advance(ctx context.Context, sess *session.Session, target string) (string, bool, error) {
	next := e.registry.Get(target)
	if next == nil {
		return e.failSession(ctx, sess, "transition to unknown node "+target)
	}
	sess.CurrentMenu = target
	sess.FailedAttempts = 0
	if err := e.store.Extend(ctx, sess, e.cfg.SessionTimeout); err != nil {
		return e.systemError(ctx, sess, err)
	}
	return Con(next.RenderPrompt(sess)), false, nil
}

// goBack pops to the parent node. Only keys scoped to the abandoned flow are
// dropped, so values collected on sibling branches survive.
func (e *Engine) goBack(ctx context.Context, sess *session.Session, node *Node) (string, bool, error) {
	target := node.Parent
	if target == "" {
		target = "main"
	}
	parent := e.registry.Get(target)
	if parent == nil {
		return e.failSession(ctx, sess, "back to unknown node "+target)
	}
	if node.Flow != "" && parent.Flow != node.Flow {
		sess.ClearFlow(node.Flow)
	}
	sess.CurrentMenu = target
	sess.FailedAttempts = 0
	if err := e.store.Extend(ctx, sess, e.cfg.SessionTimeout); err != nil {
		return e.systemError(ctx, sess, err)
	}
	return Con(parent.RenderPrompt(sess)), false, nil
}

// reprompt counts a failed attempt and re-renders the node, terminating the
// session once the ceiling is reached.
func (e *Engine) reprompt(ctx context.Context, sess *session.Session, node *Node, reason string) (string, bool, error) {
	sess.FailedAttempts++
	if sess.FailedAttempts >= e.cfg.MaxFailedTries {
		sess.State = session.StateError
		if err := e.store.Save(ctx, sess); err != nil {
			return e.systemError(ctx, sess, err)
		}
		return End("Too many invalid attempts. Please dial again."), true, nil
	}
	if err := e.store.Save(ctx, sess); err != nil {
		return e.systemError(ctx, sess, err)
	}
	return Con(reason + "\n" + node.RenderPrompt(sess)), false, nil
}

func (e *Engine) runAction(ctx context.Context, sess *session.Session, node *Node, opt *Option) (string, bool, error) {
	switch opt.Action {
	case ActionEnd:
		return e.endSession(ctx, sess, "Thank you for using SikaFlow.")

	case ActionSetLanguage:
		sess.Language = opt.Value
		return e.advance(ctx, sess, "main")

	case ActionBalance:
		res, err := e.manager.CheckBalance(ctx, sess, node.ID)
		if err != nil {
			return e.systemError(ctx, sess, err)
		}
		return e.endSession(ctx, sess, res.Message)

	case ActionStatus:
		return e.statusBranch(ctx, sess)

	case ActionRegister:
		// Account provisioning is the wallet side's job; the conversation
		// only hands the validated details over.
		return e.endSession(ctx, sess,
			fmt.Sprintf("Welcome, %s. Your registration is being processed.", sess.Get("reg.name")))

	case ActionSubmitTransfer:
		return e.submit(ctx, sess, node, txn.SubmitRequest{
			Kind:      txn.KindTransfer,
			Recipient: sess.Get("transfer.recipient"),
		}, "transfer.amount")

	case ActionSubmitBill:
		return e.submit(ctx, sess, node, txn.SubmitRequest{
			Kind:       txn.KindBillPayment,
			AccountRef: sess.Get("bill.account"),
		}, "bill.amount")

	case ActionSubmitAirtime:
		return e.submit(ctx, sess, node, txn.SubmitRequest{
			Kind:      txn.KindAirtime,
			Recipient: sess.MSISDN,
		}, "airtime.amount")
	}

	return e.failSession(ctx, sess, "unknown action "+string(opt.Action))
}

// submit hands a completed flow to the transaction lifecycle manager and
// ends the session with its outcome.
func (e *Engine) submit(ctx context.Context, sess *session.Session, node *Node, req txn.SubmitRequest, amountKey string) (string, bool, error) {
	minor, err := strconv.ParseInt(sess.Get(amountKey), 10, 64)
	if err != nil {
		return e.failSession(ctx, sess, "missing collected amount for "+node.ID)
	}
	req.AmountMinor = minor
	req.MenuKey = node.ID

	res, err := e.manager.Submit(ctx, sess, req)
	if err != nil {
		return e.systemError(ctx, sess, err)
	}
	if res.Transaction != nil {
		sess.Set("last_transaction_id", res.Transaction.TransactionID)
	}
	return e.endSession(ctx, sess, res.Message)
}

func (e *Engine) statusBranch(ctx context.Context, sess *session.Session) (string, bool, error) {
	recent, err := e.manager.Recent(ctx, sess.MSISDN, 3)
	if err != nil {
		return e.systemError(ctx, sess, err)
	}
	if len(recent) == 0 {
		return e.endSession(ctx, sess, "You have no recent transactions.")
	}
	var b strings.Builder
	b.WriteString("Recent transactions:")
	for _, t := range recent {
		b.WriteString(fmt.Sprintf("\n%s %s %s", t.TransactionID, validate.FormatMinor(t.AmountMinor), t.Status))
	}
	return e.endSession(ctx, sess, b.String())
}

// endSession closes the conversation normally.
func (e *Engine) endSession(ctx context.Context, sess *session.Session, message string) (string, bool, error) {
	sess.State = session.StateCompleted
	if err := e.store.Save(ctx, sess); err != nil {
		e.logger.ErrorContext(ctx, "failed to save terminal session",
			slog.String("session_id", sess.ID), slog.String("error", err.Error()))
	}
	return End(message), true, nil
}

// failSession marks the session errored. Used for corrupt state, never for
// user mistakes.
func (e *Engine) failSession(ctx context.Context, sess *session.Session, detail string) (string, bool, error) {
	e.logger.WarnContext(ctx, "session failed",
		slog.String("session_id", sess.ID), slog.String("detail", detail))
	sess.State = session.StateError
	if err := e.store.Save(ctx, sess); err != nil {
		e.logger.ErrorContext(ctx, "failed to save errored session",
			slog.String("session_id", sess.ID), slog.String("error", err.Error()))
	}
	return End("Sorry, something went wrong. Please dial again."), true, nil
}

// systemError ends the session apologetically when a collaborator is down.
// The gateway cannot retry a crashed process into the same conversation, so
// every path must still resolve to CON or END.
func (e *Engine) systemError(ctx context.Context, sess *session.Session, err error) (string, bool, error) {
	e.logger.ErrorContext(ctx, "system error during turn",
		slog.String("session_id", sess.ID), slog.String("error", err.Error()))
	sess.State = session.StateError
	if saveErr := e.store.Save(ctx, sess); saveErr != nil {
		e.logger.ErrorContext(ctx, "failed to save errored session",
			slog.String("session_id", sess.ID), slog.String("error", saveErr.Error()))
	}
	return End("Sorry, we could not complete your request. Please try again later."), true, nil
}
