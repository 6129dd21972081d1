package extract_test

import (
	"errors"
	"testing"

	"github.com/pqbench/pqbench/internal/extract"
)

const speedOutput = `Doing mldsa44 keygen ops for 10s ...
                       keygen     sign   verify keygens/s   sign/s verify/s
          mldsa44 0.000080s 0.000120s 0.000067s   12500.0   8333.3  14925.4
          mldsa65 0.000131s 0.000198s 0.000109s    7633.6   5050.5   9174.3
`

func TestSigSpeedRow(t *testing.T) {
	tests := []struct {
		alg        string
		wantKeygen float64
		wantSign   float64
		wantVerify float64
	}{
		{"mldsa44", 12500.0, 8333.3, 14925.4},
		{"mldsa65", 7633.6, 5050.5, 9174.3},
	}
	for _, tt := range tests {
		t.Run(tt.alg, func(t *testing.T) {
			got, err := extract.SigSpeedRow(speedOutput, tt.alg)
			if err != nil {
				t.Fatalf("SigSpeedRow(%s): %v", tt.alg, err)
			}
			if !got.KeygenKnown {
				t.Error("keygen should be known for PQC rows")
			}
			if got.KeygensPerS != tt.wantKeygen || got.SignPerS != tt.wantSign || got.VerifyPerS != tt.wantVerify {
				t.Errorf("got %+v, want %v/%v/%v", got, tt.wantKeygen, tt.wantSign, tt.wantVerify)
			}
		})
	}
}

func TestSigSpeedRowMissing(t *testing.T) {
	_, err := extract.SigSpeedRow(speedOutput, "falcon512")
	var exErr *extract.Error
	if !errors.As(err, &exErr) || exErr.Kind != extract.RowNotFound {
		t.Fatalf("want RowNotFound, got %v", err)
	}
}

func TestECDSAP256Row(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantSign   float64
		wantVerify float64
	}{
		{
			name:       "modern row label",
			text:       "ecdsap256 0.0000s 0.0001s 43000.1 15000.2",
			wantSign:   43000.1,
			wantVerify: 15000.2,
		},
		{
			name:       "legacy nistp256 label",
			text:       " 256 bits ecdsa (nistp256)   0.0000s   0.0001s  43000.1  15000.2",
			wantSign:   43000.1,
			wantVerify: 15000.2,
		},
		{
			name:       "legacy prime256v1 label",
			text:       "ECDSA prime256v1 sign verify 38000.5 13000.7",
			wantSign:   38000.5,
			wantVerify: 13000.7,
		},
		{
			name:       "oldest recognizable form",
			text:       "ECDSA P-256 something 30000.0 11000.0",
			wantSign:   30000.0,
			wantVerify: 11000.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extract.ECDSAP256Row(tt.text)
			if err != nil {
				t.Fatalf("ECDSAP256Row: %v", err)
			}
			if got.KeygenKnown {
				t.Error("keygen must be unknown for ecdsa rows")
			}
			if got.SignPerS != tt.wantSign || got.VerifyPerS != tt.wantVerify {
				t.Errorf("got sign %v verify %v, want %v %v", got.SignPerS, got.VerifyPerS, tt.wantSign, tt.wantVerify)
			}
		})
	}
}

func TestECDSAP256RowNotFound(t *testing.T) {
	_, err := extract.ECDSAP256Row("rsa 2048 bits 0.001s 900.1 30000.2")
	var exErr *extract.Error
	if !errors.As(err, &exErr) {
		t.Fatalf("want *extract.Error, got %v", err)
	}
}

func TestConnPerUserSec(t *testing.T) {
	text := `Collecting connection statistics for 10 seconds
***
855 connections in 3.02s; 283.11 connections/user sec, bytes read 0
855 connections in 31 real seconds, 0 bytes read per connection
`
	got, err := extract.ConnPerUserSec(text)
	if err != nil {
		t.Fatalf("ConnPerUserSec: %v", err)
	}
	if got != 283.11 {
		t.Errorf("got %v, want 283.11", got)
	}
}

func TestConnPerUserSecTrailingFieldsIgnored(t *testing.T) {
	// The trailing "bytes read 0" must not be mistaken for the rate.
	text := "10 connections in 1.00s; 10.00 connections/user sec, bytes read 0"
	got, err := extract.ConnPerUserSec(text)
	if err != nil {
		t.Fatalf("ConnPerUserSec: %v", err)
	}
	if got != 10.00 {
		t.Errorf("got %v, want 10.00", got)
	}
}

func TestConnPerUserSecMissing(t *testing.T) {
	_, err := extract.ConnPerUserSec("no throughput line here")
	var exErr *extract.Error
	if !errors.As(err, &exErr) || exErr.Kind != extract.RowNotFound {
		t.Fatalf("want RowNotFound, got %v", err)
	}
}
