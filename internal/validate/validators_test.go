package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	minAmount = 100    // GHS 1.00
	maxAmount = 500000 // GHS 5,000.00
)

func TestAmount(t *testing.T) {
	cases := []struct {
		in     string
		want   int64
		reason Reason
	}{
		{"50", 5000, ""},
		{"50.75", 5075, ""},
		{"50.7", 5070, ""},
		{"1", 100, ""},
		{"5000", 500000, ""},
		{"5000.01", 0, ReasonAboveMaximum},
		{"10000000", 0, ReasonAboveMaximum},
		{"0.99", 0, ReasonBelowMinimum},
		{"0", 0, ReasonBelowMinimum},
		{"50.755", 0, ReasonTooManyDecimals},
		{"abc", 0, ReasonNotANumber},
		{"12a", 0, ReasonNotANumber},
		{"-5", 0, ReasonNotANumber},
		{"", 0, ReasonNotANumber},
		{"5.", 0, ReasonNotANumber},
	}

	for _, tc := range cases {
		got, ferr := Amount(tc.in, minAmount, maxAmount, "GHS")
		if tc.reason == "" {
			require.Nil(t, ferr, "input %q", tc.in)
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		} else {
			require.NotNil(t, ferr, "input %q", tc.in)
			assert.Equal(t, tc.reason, ferr.Reason, "input %q", tc.in)
			assert.NotEmpty(t, ferr.Message)
		}
	}
}

func TestAmountIsPure(t *testing.T) {
	// Repeated calls with the same input return the same normalized value.
	for i := 0; i < 3; i++ {
		got, ferr := Amount("123.45", minAmount, maxAmount, "GHS")
		require.Nil(t, ferr)
		assert.Equal(t, int64(12345), got)
	}
}

func TestPhone(t *testing.T) {
	self := "+233244000111"

	cases := []struct {
		in     string
		want   string
		reason Reason
	}{
		{"0244123456", "+233244123456", ""},
		{"233244123456", "+233244123456", ""},
		{"+233244123456", "+233244123456", ""},
		{"024 412 3456", "+233244123456", ""},
		{"0244-123-456", "+233244123456", ""},
		{"0244000111", "", ReasonSelfTransfer},
		{"+233244000111", "", ReasonSelfTransfer},
		{"12345", "", ReasonBadPhone},
		{"02441234567", "", ReasonBadPhone},
		{"abcdefghij", "", ReasonBadPhone},
		{"", "", ReasonBadPhone},
	}

	for _, tc := range cases {
		got, ferr := Phone(tc.in, self)
		if tc.reason == "" {
			require.Nil(t, ferr, "input %q", tc.in)
			assert.Equal(t, tc.want, got, "input %q", tc.in)
		} else {
			require.NotNil(t, ferr, "input %q", tc.in)
			assert.Equal(t, tc.reason, ferr.Reason, "input %q", tc.in)
		}
	}
}

func TestPhoneSelfInLocalForm(t *testing.T) {
	// Sender identity may arrive in local form from the gateway.
	_, ferr := Phone("+233244000111", "0244000111")
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonSelfTransfer, ferr.Reason)
}

func TestAccountRef(t *testing.T) {
	got, ferr := AccountRef("abc-123")
	require.Nil(t, ferr)
	assert.Equal(t, "ABC-123", got)

	_, ferr = AccountRef("ab1")
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadLength, ferr.Reason)

	_, ferr = AccountRef("abcdefghijklmnopqrstu")
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadLength, ferr.Reason)

	_, ferr = AccountRef("abc_12345")
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadCharset, ferr.Reason)
}

func TestName(t *testing.T) {
	got, ferr := Name("ama  owusu-ansah")
	require.Nil(t, ferr)
	assert.Equal(t, "Ama Owusu-ansah", got)

	got, ferr = Name("o'brien kofi")
	require.Nil(t, ferr)
	assert.Equal(t, "O'brien Kofi", got)

	_, ferr = Name("a")
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadLength, ferr.Reason)

	_, ferr = Name("kofi99")
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadCharset, ferr.Reason)

	_, ferr = Name("--")
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadCharset, ferr.Reason)
}

func TestPIN(t *testing.T) {
	got, ferr := PIN("4829", nil)
	require.Nil(t, ferr)
	assert.Equal(t, "4829", got)

	_, ferr = PIN("123", nil)
	require.NotNil(t, ferr)
	assert.Equal(t, ReasonBadLength, ferr.Reason)

	_, ferr = PIN("12345", nil)
	require.NotNil(t, ferr)

	_, ferr = PIN("12ab", nil)
	require.NotNil(t, ferr)

	for _, weak := range []string{"0000", "1234", "1111"} {
		_, ferr = PIN(weak, nil)
		require.NotNil(t, ferr, "pin %q", weak)
		assert.Equal(t, ReasonWeakPIN, ferr.Reason)
	}

	// Custom denylist replaces the default.
	_, ferr = PIN("1234", []string{"9876"})
	assert.Nil(t, ferr)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello", Sanitize("he\x00l\x1blo\n"))
	assert.Equal(t, "1", Sanitize("  1  "))

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	assert.LessOrEqual(t, len(Sanitize(string(long))), 160)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "5,000.00", FormatMinor(500000))
	assert.Equal(t, "0.05", FormatMinor(5))
	assert.Equal(t, "1.00", FormatMinor(100))
	assert.Equal(t, "1,234,567.89", FormatMinor(123456789))
	assert.Equal(t, "-12.50", FormatMinor(-1250))
}
