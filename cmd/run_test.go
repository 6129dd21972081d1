package cmd

import (
	"testing"

	"github.com/pqbench/pqbench/internal/config"
)

func TestStrictFlagOverride(t *testing.T) {
	tests := []struct {
		name       string
		flag       string // empty means flag not given
		cfgStrict  bool
		wantStrict bool
	}{
		{"flag absent keeps config true", "", true, true},
		{"flag absent keeps config false", "", false, false},
		{"strict=true overrides config false", "true", false, true},
		{"strict=false overrides config true", "false", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCmd()
			if tt.flag != "" {
				if err := cmd.Flags().Set("strict", tt.flag); err != nil {
					t.Fatal(err)
				}
			}
			spec := &config.Spec{Strict: tt.cfgStrict}
			applyRunFlags(cmd, spec)
			if spec.Strict != tt.wantStrict {
				t.Errorf("strict = %v, want %v", spec.Strict, tt.wantStrict)
			}
		})
	}
}

func TestFilterQuantities(t *testing.T) {
	quantities := []config.Quantity{
		{Name: "handshake", Family: "tls-handshake"},
		{Name: "mldsa44-speed", Family: "sig-speed", Algorithm: "mldsa44"},
		{Name: "falcon512-speed", Family: "sig-speed", Algorithm: "falcon512"},
	}

	tests := []struct {
		name   string
		filter string
		want   int
	}{
		{"exact match", "mldsa44-speed", 1},
		{"no match", "mldsa87-speed", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterQuantities(quantities, tt.filter)
			if len(got) != tt.want {
				t.Errorf("filterQuantities(%q) returned %d, want %d", tt.filter, len(got), tt.want)
			}
			for _, q := range got {
				if q.Name != tt.filter {
					t.Errorf("filterQuantities(%q) kept %q", tt.filter, q.Name)
				}
			}
		})
	}
}
