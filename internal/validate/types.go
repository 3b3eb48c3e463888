package validate

// Reason identifies why an input was rejected, independent of display copy.
type Reason string

const (
	ReasonNotANumber      Reason = "not_a_number"
	ReasonTooManyDecimals Reason = "too_many_decimals"
	ReasonBelowMinimum    Reason = "below_minimum"
	ReasonAboveMaximum    Reason = "above_maximum"
	ReasonBadPhone        Reason = "bad_phone"
	ReasonSelfTransfer    Reason = "self_transfer"
	ReasonBadLength       Reason = "bad_length"
	ReasonBadCharset      Reason = "bad_charset"
	ReasonWeakPIN         Reason = "weak_pin"
)

// FieldError is a structured validation failure. Message is safe to render
// directly in a USSD prompt.
type FieldError struct {
	Field   string
	Reason  Reason
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + string(e.Reason)
}

// GatewayRequest is the normalized payload the telco gateway posts on every
// turn. Text may carry the full cumulative dial string; the engine uses only
// the final segment.
type GatewayRequest struct {
	SessionID string `form:"sessionId" json:"sessionId" validate:"required,max=100"`
	MSISDN    string `form:"phoneNumber" json:"phoneNumber" validate:"required,min=7,max=16"`
	Text      string `form:"text" json:"text" validate:"max=500"`
	Network   string `form:"networkCode" json:"networkCode" validate:"max=20"`
}
