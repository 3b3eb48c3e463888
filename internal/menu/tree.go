// Package menu holds the USSD conversation tree and the engine that walks
// it. The tree is an explicit graph of typed nodes validated at startup, so
// an invalid transition is a construction error rather than a runtime
// surprise.
package menu

import (
	"fmt"

	"github.com/kbediako/sikaflow/internal/session"
)

// Field routes a free-input node to its validator.
type Field string

const (
	FieldNone       Field = ""
	FieldAmount     Field = "amount"
	FieldPhone      Field = "phone"
	FieldAccountRef Field = "account_ref"
	FieldName       Field = "name"
	FieldPIN        Field = "pin"
)

// Action is a terminal operation attached to a menu option.
type Action string

const (
	ActionNone           Action = ""
	ActionSubmitTransfer Action = "submit_transfer"
	ActionSubmitBill     Action = "submit_bill"
	ActionSubmitAirtime  Action = "submit_airtime"
	ActionBalance        Action = "balance"
	ActionStatus         Action = "status"
	ActionRegister       Action = "register"
	ActionSetLanguage    Action = "set_language"
	ActionEnd            Action = "end"
)

// Option is one selectable entry of a menu node. Exactly one of Next or
// Action is set.
type Option struct {
	Input  string
	Label  string
	Next   string
	Action Action
	Value  string // action argument, e.g. the language code
}

// Node is a single point in the conversation tree.
type Node struct {
	ID      string
	Flow    string // namespace for collected data keys; "" for shared nodes
	Prompt  string
	Dynamic func(s *session.Session) string // overrides Prompt when set
	Options []Option
	Field   Field  // free-input nodes only
	DataKey string // where the validated free input lands
	Next    string // free-input nodes: node after a valid input
	Parent  string // back-navigation target; "" means main
}

// Selectable reports whether the node has a finite option list.
func (n *Node) Selectable() bool { return len(n.Options) > 0 }

// RenderPrompt produces the node's prompt text for a session.
func (n *Node) RenderPrompt(s *session.Session) string {
	if n.Dynamic != nil {
		return n.Dynamic(s)
	}
	return n.Prompt
}

// Registry is the validated node graph.
type Registry struct {
	nodes map[string]*Node
}

// NewRegistry builds a registry and checks that every transition target
// exists and every free-input node declares its field and landing key.
func NewRegistry(nodes []*Node) (*Registry, error) {
	r := &Registry{nodes: make(map[string]*Node, len(nodes))}
	for _, n := range nodes {
		if _, dup := r.nodes[n.ID]; dup {
			return nil, fmt.Errorf("menu: duplicate node %q", n.ID)
		}
		r.nodes[n.ID] = n
	}
	for _, n := range nodes {
		for _, opt := range n.Options {
			if opt.Next == "" && opt.Action == ActionNone {
				return nil, fmt.Errorf("menu: node %q option %q has no target", n.ID, opt.Input)
			}
			if opt.Next != "" {
				if _, ok := r.nodes[opt.Next]; !ok {
					return nil, fmt.Errorf("menu: node %q option %q targets unknown node %q", n.ID, opt.Input, opt.Next)
				}
			}
		}
		if !n.Selectable() {
			if n.Field == FieldNone {
				return nil, fmt.Errorf("menu: free-input node %q has no field type", n.ID)
			}
			if n.DataKey == "" {
				return nil, fmt.Errorf("menu: free-input node %q has no data key", n.ID)
			}
			if _, ok := r.nodes[n.Next]; !ok {
				return nil, fmt.Errorf("menu: free-input node %q targets unknown node %q", n.ID, n.Next)
			}
		}
		if n.Parent != "" {
			if _, ok := r.nodes[n.Parent]; !ok {
				return nil, fmt.Errorf("menu: node %q has unknown parent %q", n.ID, n.Parent)
			}
		}
	}
	return r, nil
}

// Get resolves a node by id, or nil for unknown (corrupt session) state.
func (r *Registry) Get(id string) *Node {
	return r.nodes[id]
}

const mainPrompt = `Welcome to SikaFlow
1. Check Balance
2. Send Money
3. Pay Bill
4. Buy Airtime
5. Transaction Status
6. Language
7. Register
0. Exit`

// DefaultTree is the production menu.
func DefaultTree() []*Node {
	return []*Node{
		{
			ID:     "main",
			Prompt: mainPrompt,
			Options: []Option{
				{Input: "1", Label: "Check Balance", Action: ActionBalance},
				{Input: "2", Label: "Send Money", Next: "transfer_amount"},
				{Input: "3", Label: "Pay Bill", Next: "bill_account"},
				{Input: "4", Label: "Buy Airtime", Next: "airtime_amount"},
				{Input: "5", Label: "Transaction Status", Action: ActionStatus},
				{Input: "6", Label: "Language", Next: "language"},
				{Input: "7", Label: "Register", Next: "reg_name"},
				{Input: "0", Label: "Exit", Action: ActionEnd},
			},
		},

		// Send Money
		{
			ID:      "transfer_amount",
			Flow:    "transfer",
			Prompt:  "Enter amount to transfer (GHS):",
			Field:   FieldAmount,
			DataKey: "transfer.amount",
			Next:    "transfer_recipient",
			Parent:  "main",
		},
		{
			ID:      "transfer_recipient",
			Flow:    "transfer",
			Prompt:  "Enter recipient phone number:",
			Field:   FieldPhone,
			DataKey: "transfer.recipient",
			Next:    "transfer_confirm",
			Parent:  "transfer_amount",
		},
		{
			ID:   "transfer_confirm",
			Flow: "transfer",
			Dynamic: func(s *session.Session) string {
				return fmt.Sprintf("Send GHS %s to %s?\n1. Confirm\n2. Cancel",
					s.Get("transfer.amount_display"), s.Get("transfer.recipient"))
			},
			Options: []Option{
				{Input: "1", Label: "Confirm", Action: ActionSubmitTransfer},
				{Input: "2", Label: "Cancel", Action: ActionEnd},
			},
			Parent: "transfer_recipient",
		},

		// Pay Bill
		{
			ID:      "bill_account",
			Flow:    "bill",
			Prompt:  "Enter your bill account reference:",
			Field:   FieldAccountRef,
			DataKey: "bill.account",
			Next:    "bill_amount",
			Parent:  "main",
		},
		{
			ID:      "bill_amount",
			Flow:    "bill",
			Prompt:  "Enter bill amount (GHS):",
			Field:   FieldAmount,
			DataKey: "bill.amount",
			Next:    "bill_confirm",
			Parent:  "bill_account",
		},
		{
			ID:   "bill_confirm",
			Flow: "bill",
			Dynamic: func(s *session.Session) string {
				return fmt.Sprintf("Pay GHS %s to account %s?\n1. Confirm\n2. Cancel",
					s.Get("bill.amount_display"), s.Get("bill.account"))
			},
			Options: []Option{
				{Input: "1", Label: "Confirm", Action: ActionSubmitBill},
				{Input: "2", Label: "Cancel", Action: ActionEnd},
			},
			Parent: "bill_amount",
		},

		// Buy Airtime
		{
			ID:      "airtime_amount",
			Flow:    "airtime",
			Prompt:  "Enter airtime amount (GHS):",
			Field:   FieldAmount,
			DataKey: "airtime.amount",
			Next:    "airtime_confirm",
			Parent:  "main",
		},
		{
			ID:   "airtime_confirm",
			Flow: "airtime",
			Dynamic: func(s *session.Session) string {
				return fmt.Sprintf("Buy GHS %s airtime for %s?\n1. Confirm\n2. Cancel",
					s.Get("airtime.amount_display"), s.MSISDN)
			},
			Options: []Option{
				{Input: "1", Label: "Confirm", Action: ActionSubmitAirtime},
				{Input: "2", Label: "Cancel", Action: ActionEnd},
			},
			Parent: "airtime_amount",
		},

		// Language
		{
			ID:     "language",
			Prompt: "Choose language:\n1. English\n2. Twi",
			Options: []Option{
				{Input: "1", Label: "English", Action: ActionSetLanguage, Value: "en"},
				{Input: "2", Label: "Twi", Action: ActionSetLanguage, Value: "tw"},
			},
			Parent: "main",
		},

		// Registration
		{
			ID:      "reg_name",
			Flow:    "reg",
			Prompt:  "Enter your full name:",
			Field:   FieldName,
			DataKey: "reg.name",
			Next:    "reg_pin",
			Parent:  "main",
		},
		{
			ID:      "reg_pin",
			Flow:    "reg",
			Prompt:  "Choose a 4-digit PIN:",
			Field:   FieldPIN,
			DataKey: "reg.pin",
			Next:    "reg_confirm",
			Parent:  "reg_name",
		},
		{
			ID:   "reg_confirm",
			Flow: "reg",
			Dynamic: func(s *session.Session) string {
				return fmt.Sprintf("Register as %s?\n1. Confirm\n2. Cancel",
					s.Get("reg.name"))
			},
			Options: []Option{
				{Input: "1", Label: "Confirm", Action: ActionRegister},
				{Input: "2", Label: "Cancel", Action: ActionEnd},
			},
			Parent: "reg_pin",
		},
	}
}
