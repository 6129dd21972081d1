package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Modes select default magnitudes: quick is a sanity profile, full the
// statistics profile used for publishable numbers.
const (
	ModeQuick = "quick"
	ModeFull  = "full"
)

// Spec is the immutable run configuration. Zero values for repeats,
// warmup, window and timeout mean "use the mode default"; Load resolves
// them so the rest of the harness never sees a placeholder.
type Spec struct {
	Mode                string     `yaml:"mode"`
	Repeats             int        `yaml:"repeats"`
	Warmup              int        `yaml:"warmup"`
	Strict              bool       `yaml:"strict"`
	SampleCount         int        `yaml:"sample_count"`
	PerAttemptTimeoutMS int        `yaml:"per_attempt_timeout_ms"`
	WindowSeconds       int        `yaml:"window_seconds"`
	Subject             Subject    `yaml:"subject"`
	Quantities          []Quantity `yaml:"quantities"`
	Results             Results    `yaml:"results"`
	GitSHA              string     `yaml:"git_sha"`
}

// Subject locates and configures the program under measurement.
type Subject struct {
	Image         string  `yaml:"image"`
	ContainerName string  `yaml:"container_name"`
	OpenSSLPath   string  `yaml:"openssl_path"`
	ServerAddr    string  `yaml:"server_addr"`
	CPULimit      float64 `yaml:"cpu_limit"`
	MemoryLimitMB int64   `yaml:"memory_limit_mb"`
}

// Quantity names one thing to measure. Family selects the protocol and
// result schema; Algorithm applies to the signature families.
type Quantity struct {
	Name      string `yaml:"name"`
	Family    string `yaml:"family"`
	Algorithm string `yaml:"algorithm"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

// PerAttemptTimeout returns the per-invocation watchdog budget.
func (s *Spec) PerAttemptTimeout() time.Duration {
	return time.Duration(s.PerAttemptTimeoutMS) * time.Millisecond
}

// Window returns the fixed-window counting budget.
func (s *Spec) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

func Load(path string) (*Spec, error) {
	spec, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := Finalize(spec); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return spec, nil
}

// Parse reads and unmarshals without finalizing, so callers can apply
// flag overrides before mode defaults are resolved.
func Parse(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &spec, nil
}

// Finalize applies mode defaults and validates. Exposed separately so
// tests and flag overrides can build a Spec without a file.
func Finalize(spec *Spec) error {
	if spec.Mode == "" {
		spec.Mode = ModeQuick
	}
	switch spec.Mode {
	case ModeQuick:
		applyDefaults(spec, 3, 1, 20, 3, 10_000)
	case ModeFull:
		applyDefaults(spec, 10, 3, 100, 10, 30_000)
	default:
		return fmt.Errorf("unknown mode %q (want %s or %s)", spec.Mode, ModeQuick, ModeFull)
	}
	return validate(spec)
}

func applyDefaults(spec *Spec, repeats, warmup, samples, windowSecs, timeoutMS int) {
	if spec.Repeats == 0 {
		spec.Repeats = repeats
	}
	if spec.Warmup == 0 {
		spec.Warmup = warmup
	}
	if spec.SampleCount == 0 {
		spec.SampleCount = samples
	}
	if spec.WindowSeconds == 0 {
		spec.WindowSeconds = windowSecs
	}
	if spec.PerAttemptTimeoutMS == 0 {
		spec.PerAttemptTimeoutMS = timeoutMS
	}
	if spec.Subject.OpenSSLPath == "" {
		spec.Subject.OpenSSLPath = "openssl"
	}
	if spec.Results.Dir == "" {
		spec.Results.Dir = "results"
	}
}

func validate(spec *Spec) error {
	if spec.Repeats < 1 {
		return fmt.Errorf("repeats must be at least 1")
	}
	if spec.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative")
	}
	if spec.SampleCount < 1 {
		return fmt.Errorf("sample_count must be at least 1")
	}
	if spec.WindowSeconds < 1 {
		return fmt.Errorf("window_seconds must be at least 1")
	}
	if spec.Subject.Image == "" {
		return fmt.Errorf("subject.image is required")
	}
	if len(spec.Quantities) == 0 {
		return fmt.Errorf("no quantities defined")
	}
	seen := map[string]bool{}
	for i, q := range spec.Quantities {
		if q.Name == "" {
			return fmt.Errorf("quantity %d: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("quantity %q: duplicate name", q.Name)
		}
		seen[q.Name] = true
		switch q.Family {
		case "tls-handshake", "tls-throughput":
			if spec.Subject.ServerAddr == "" {
				return fmt.Errorf("quantity %q: subject.server_addr is required for %s", q.Name, q.Family)
			}
		case "sig-window", "sig-speed":
			if q.Algorithm == "" {
				return fmt.Errorf("quantity %q: algorithm is required for %s", q.Name, q.Family)
			}
		case "":
			return fmt.Errorf("quantity %q: family is required", q.Name)
		default:
			return fmt.Errorf("quantity %q: unknown family %q", q.Name, q.Family)
		}
	}
	return nil
}
