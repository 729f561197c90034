package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderNumberValue(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1", 1},
		{"42", 42},
		{"0007", 7},
		{"ORD-123", 123},      // legacy prefixed format
		{"WTR2024-88", 88},    // legacy prefixed format with year
		{"", 0},               // no digits: numbering restarts at 1
		{"draft", 0},          // no digits: numbering restarts at 1
		{"abc12def", 0},       // digits must be trailing
		{"9223372036854775807", 9223372036854775807},
	}

	for _, tc := range tests {
		assert.Equalf(t, tc.want, orderNumberValue(tc.in), "orderNumberValue(%q)", tc.in)
	}
}

func TestMaxOrderNumber(t *testing.T) {
	assert.Equal(t, int64(0), maxOrderNumber(nil))
	assert.Equal(t, int64(0), maxOrderNumber([]string{"draft", ""}))
	assert.Equal(t, int64(120), maxOrderNumber([]string{"3", "ORD-120", "45"}))
}

func TestFormatOrderNumber(t *testing.T) {
	assert.Equal(t, "1", formatOrderNumber(1))
	assert.Equal(t, "1000", formatOrderNumber(1000))
}
