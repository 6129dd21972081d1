package extract

import (
	"strings"
)

// SigSpeed holds the per-second rates from one row of `openssl speed`
// signature output. Keygen is undefined for curves where the subject
// prints no keygen column.
type SigSpeed struct {
	KeygensPerS float64
	SignPerS    float64
	VerifyPerS  float64
	KeygenKnown bool
}

// SigSpeedRow extracts the rates for a post-quantum signature algorithm
// from `openssl speed` output. The row is anchored on the line whose first
// token is the algorithm name; the last three numeric tokens are
// keygens/s, sign/s, verify/s.
func SigSpeedRow(text, alg string) (*SigSpeed, error) {
	nums, err := LastNumbers(text, func(line string) bool {
		toks := strings.Fields(line)
		return len(toks) > 0 && toks[0] == alg
	}, 3)
	if err != nil {
		return nil, err
	}
	return &SigSpeed{
		KeygensPerS: nums[0],
		SignPerS:    nums[1],
		VerifyPerS:  nums[2],
		KeygenKnown: true,
	}, nil
}

// ecdsaAnchors are tried in order. Newer subjects print a row starting
// "ecdsap256"; older builds label the curve nistp256, prime256v1 or
// secp256r1; the oldest recognizable form just mentions ecdsa and 256.
var ecdsaAnchors = []AnchorFunc{
	func(line string) bool {
		return strings.HasPrefix(line, "ecdsap256")
	},
	func(line string) bool {
		low := strings.ToLower(line)
		if !strings.Contains(low, "ecdsa") {
			return false
		}
		for _, curve := range []string{"nistp256", "prime256v1", "secp256r1"} {
			if strings.Contains(low, curve) {
				return true
			}
		}
		return false
	},
	func(line string) bool {
		low := strings.ToLower(line)
		return strings.Contains(low, "ecdsa") && (strings.Contains(low, "256") || strings.Contains(low, "p-256"))
	},
}

// ECDSAP256Row extracts the P-256 baseline row. ECDSA rows carry only
// sign/s and verify/s as their trailing numbers, so keygen is reported
// unknown. Anchors fall back from the modern row label to legacy curve
// names.
func ECDSAP256Row(text string) (*SigSpeed, error) {
	var lastErr error
	for _, anchor := range ecdsaAnchors {
		nums, err := LastNumbers(text, anchor, 2)
		if err != nil {
			lastErr = err
			continue
		}
		return &SigSpeed{SignPerS: nums[0], VerifyPerS: nums[1]}, nil
	}
	if lastErr == nil {
		lastErr = &Error{Kind: RowNotFound, Reason: "no ecdsa p-256 row found"}
	}
	return nil, lastErr
}

// ConnPerUserSec extracts the throughput figure from `openssl s_time`
// output. s_time prints a line like
//
//	855 connections in 30.02s; 285.62 connections/user sec, bytes read 0
//
// so the wanted number is the last numeric token BEFORE the
// "connections/user sec" label, not the last on the line.
func ConnPerUserSec(text string) (float64, error) {
	const label = "connections/user sec"
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, label)
		if idx < 0 {
			continue
		}
		nums, err := LastNumbers(line[:idx], func(string) bool { return true }, 1)
		if err != nil {
			return 0, &Error{Kind: NonNumeric, Reason: "no number before connections/user sec label"}
		}
		return nums[0], nil
	}
	return 0, &Error{Kind: RowNotFound, Reason: "no connections/user sec line in s_time output"}
}
