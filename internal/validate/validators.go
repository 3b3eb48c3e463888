package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	amountPattern     = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	accountRefPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	namePattern       = regexp.MustCompile(`^[A-Za-z '\-]+$`)
	pinPattern        = regexp.MustCompile(`^\d{4}$`)
)

// DefaultPINDenylist lists trivially guessable PINs rejected regardless of format.
var DefaultPINDenylist = []string{"0000", "1111", "2222", "3333", "4444", "5555", "6666", "7777", "8888", "9999", "1234", "4321"}

// Amount parses a user-entered decimal amount into minor units and checks it
// against the inclusive [min, max] range (also minor units). At most two
// fractional digits are accepted.
func Amount(raw string, min, max int64, currency string) (int64, *FieldError) {
	s := strings.TrimSpace(raw)
	if !amountPattern.MatchString(s) {
		if strings.Count(s, ".") == 1 {
			if frac := s[strings.Index(s, ".")+1:]; len(frac) > 2 && isDigits(frac) {
				return 0, &FieldError{Field: "amount", Reason: ReasonTooManyDecimals,
					Message: "Amount can have at most 2 decimal places."}
			}
		}
		return 0, &FieldError{Field: "amount", Reason: ReasonNotANumber,
			Message: "Enter a valid amount, e.g. 50 or 50.75."}
	}

	whole, frac := s, "0"
	if i := strings.Index(s, "."); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, &FieldError{Field: "amount", Reason: ReasonNotANumber,
			Message: "Enter a valid amount, e.g. 50 or 50.75."}
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	minor := w*100 + f

	if minor < min {
		return 0, &FieldError{Field: "amount", Reason: ReasonBelowMinimum,
			Message: fmt.Sprintf("Minimum amount is %s %s.", currency, FormatMinor(min))}
	}
	if minor > max {
		return 0, &FieldError{Field: "amount", Reason: ReasonAboveMaximum,
			Message: fmt.Sprintf("Maximum amount is %s %s.", currency, FormatMinor(max))}
	}
	return minor, nil
}

// Phone normalizes a Ghanaian phone number to canonical +233 form. Accepted
// inputs: 0XXXXXXXXX, 233XXXXXXXXX, +233XXXXXXXXX. Transfers to the sender's
// own number are rejected.
func Phone(raw, self string) (string, *FieldError) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")

	var national string
	switch {
	case strings.HasPrefix(s, "+233") && len(s) == 13 && isDigits(s[1:]):
		national = s[4:]
	case strings.HasPrefix(s, "233") && len(s) == 12 && isDigits(s):
		national = s[3:]
	case strings.HasPrefix(s, "0") && len(s) == 10 && isDigits(s):
		national = s[1:]
	default:
		return "", &FieldError{Field: "phone", Reason: ReasonBadPhone,
			Message: "Enter a valid phone number, e.g. 0244123456."}
	}

	normalized := "+233" + national
	selfNorm, ferr := normalizeSelf(self)
	if ferr == nil && normalized == selfNorm {
		return "", &FieldError{Field: "phone", Reason: ReasonSelfTransfer,
			Message: "You cannot send money to your own number."}
	}
	return normalized, nil
}

func normalizeSelf(self string) (string, *FieldError) {
	s := strings.TrimSpace(self)
	switch {
	case strings.HasPrefix(s, "+233"):
		return s, nil
	case strings.HasPrefix(s, "233"):
		return "+" + s, nil
	case strings.HasPrefix(s, "0") && len(s) == 10:
		return "+233" + s[1:], nil
	}
	return "", &FieldError{Field: "phone", Reason: ReasonBadPhone}
}

// AccountRef checks an account or bill reference: 6-20 characters,
// letters/digits/hyphen. Whether the account exists is the biller's problem.
func AccountRef(raw string) (string, *FieldError) {
	s := strings.TrimSpace(raw)
	if len(s) < 6 || len(s) > 20 {
		return "", &FieldError{Field: "account", Reason: ReasonBadLength,
			Message: "Account reference must be 6-20 characters."}
	}
	if !accountRefPattern.MatchString(s) {
		return "", &FieldError{Field: "account", Reason: ReasonBadCharset,
			Message: "Account reference may contain only letters, digits and hyphens."}
	}
	return strings.ToUpper(s), nil
}

// Name checks a recipient name (2-50 chars, letters/space/hyphen/apostrophe,
// at least one letter) and normalizes it to title case.
func Name(raw string) (string, *FieldError) {
	s := strings.Join(strings.Fields(strings.TrimSpace(raw)), " ")
	if len(s) < 2 || len(s) > 50 {
		return "", &FieldError{Field: "name", Reason: ReasonBadLength,
			Message: "Name must be 2-50 characters."}
	}
	if !namePattern.MatchString(s) {
		return "", &FieldError{Field: "name", Reason: ReasonBadCharset,
			Message: "Name may contain only letters, spaces, hyphens and apostrophes."}
	}
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return "", &FieldError{Field: "name", Reason: ReasonBadCharset,
			Message: "Name must contain at least one letter."}
	}
	return titleCase(s), nil
}

// PIN checks a 4-digit PIN against format and the denylist.
func PIN(raw string, denylist []string) (string, *FieldError) {
	s := strings.TrimSpace(raw)
	if !pinPattern.MatchString(s) {
		return "", &FieldError{Field: "pin", Reason: ReasonBadLength,
			Message: "PIN must be exactly 4 digits."}
	}
	if denylist == nil {
		denylist = DefaultPINDenylist
	}
	for _, bad := range denylist {
		if s == bad {
			return "", &FieldError{Field: "pin", Reason: ReasonWeakPIN,
				Message: "That PIN is too easy to guess. Choose another."}
		}
	}
	return s, nil
}

// Sanitize strips control characters from transport input and caps its length.
// Raw gateway text is never trusted in lookups or rendered output.
func Sanitize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		if b.Len() >= 160 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// FormatMinor renders minor units as a grouped decimal string, e.g.
// 500000 -> "5,000.00".
func FormatMinor(minor int64) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	whole := minor / 100
	frac := minor % 100

	digits := strconv.FormatInt(whole, 10)
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	out := strings.Join(groups, ",") + fmt.Sprintf(".%02d", frac)
	if neg {
		return "-" + out
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
