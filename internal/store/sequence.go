package store

import (
	"regexp"
	"strconv"
)

// Order numbers are human-readable strings of a strictly increasing
// integer. The live counter is a locked singleton row; this file only
// deals with reading numbers back out of stored orders, including legacy
// prefixed formats such as "ORD-0042", when seeding that counter.

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// orderNumberValue extracts the numeric value of a stored order number by
// taking its trailing digit run. Values with no trailing digits count as
// zero, which restarts numbering at 1.
func orderNumberValue(orderNumber string) int64 {
	match := trailingDigits.FindString(orderNumber)
	if match == "" {
		return 0
	}
	n, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// maxOrderNumber returns the highest numeric value among the given stored
// order numbers.
func maxOrderNumber(orderNumbers []string) int64 {
	var max int64
	for _, number := range orderNumbers {
		if v := orderNumberValue(number); v > max {
			max = v
		}
	}
	return max
}

func formatOrderNumber(n int64) string {
	return strconv.FormatInt(n, 10)
}
