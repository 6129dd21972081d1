// Package extract pulls typed numeric results out of free-form subject
// output. openssl's table layouts drift between versions and builds, so
// matching is anchor-based: find a line by a stable marker, then collect
// the trailing tokens that parse as numbers instead of assuming fixed
// column offsets.
package extract

import (
	"fmt"
	"strconv"
	"strings"
)

type ErrorKind string

const (
	RowNotFound ErrorKind = "ROW_NOT_FOUND"
	NonNumeric  ErrorKind = "NON_NUMERIC"
)

// Error reports why no usable number could be produced. Extraction never
// substitutes a zero or placeholder for a missing value; a missing value
// is always one of these.
type Error struct {
	Kind   ErrorKind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// AnchorFunc decides whether a line is the one carrying the wanted values.
type AnchorFunc func(line string) bool

// IsNumber reports whether tok parses as a float. Scientific notation is
// accepted; openssl emits it for very fast primitives.
func IsNumber(tok string) bool {
	_, err := strconv.ParseFloat(tok, 64)
	return err == nil
}

// LastNumbers scans text line by line for the first line matching anchor,
// then walks that line's whitespace-split tokens from the end collecting
// the last k that parse as numbers. Scanning from the end tolerates extra
// or missing columns between the anchor and the values, and never mistakes
// a header label for a value.
func LastNumbers(text string, anchor AnchorFunc, k int) ([]float64, error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !anchor(line) {
			continue
		}
		nums := trailingNumbers(line, k)
		if len(nums) < k {
			return nil, &Error{
				Kind:   NonNumeric,
				Reason: fmt.Sprintf("matched line has %d numeric tokens, need %d: %q", len(nums), k, line),
			}
		}
		return nums, nil
	}
	return nil, &Error{Kind: RowNotFound, Reason: "no line matched anchor"}
}

// trailingNumbers returns up to k numeric tokens from the end of line,
// in their original left-to-right order.
func trailingNumbers(line string, k int) []float64 {
	toks := strings.Fields(line)
	var rev []float64
	for i := len(toks) - 1; i >= 0 && len(rev) < k; i-- {
		v, err := strconv.ParseFloat(toks[i], 64)
		if err != nil {
			continue
		}
		rev = append(rev, v)
	}
	nums := make([]float64, len(rev))
	for i, v := range rev {
		nums[len(rev)-1-i] = v
	}
	return nums
}
