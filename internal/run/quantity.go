// Package run orchestrates a benchmark run: warmup, capability checks,
// repeats, measurement, and the strict failure policy.
package run

import (
	"fmt"
	"strconv"

	"github.com/pqbench/pqbench/internal/config"
	"github.com/pqbench/pqbench/internal/result"
)

const (
	keyPathPrefix = "/tmp/pqbench-"
	msgPath       = "/tmp/pqbench-msg.bin"
)

// Quantity is one fully-resolved thing to measure: the command to run,
// how to run it, and how to recognize its results.
type Quantity struct {
	Name      string
	Family    string
	Algorithm string
	// Argv is the measured command, fully resolved.
	Argv []string
	// Setup commands run once per run before warmup, untimed. A failing
	// setup marks the quantity SETUP_FAILED.
	Setup [][]string
	// Capability is the token searched for in the subject's algorithm
	// listing. When empty, Probe (a cheap one-shot command) is invoked
	// instead; an empty Probe passes unconditionally.
	Capability string
	Probe      []string
	// SpeedName is the row anchor in `openssl speed` output (sig-speed).
	SpeedName string
}

type sigAlg struct {
	speedName  string
	capability string
	keygen     func(openssl, keyPath string) []string
	sign       func(openssl, keyPath string) []string
}

func pqcAlg(speedName, capability string) sigAlg {
	return sigAlg{
		speedName:  speedName,
		capability: capability,
		keygen: func(openssl, keyPath string) []string {
			return []string{openssl, "genpkey", "-algorithm", capability, "-out", keyPath}
		},
		sign: func(openssl, keyPath string) []string {
			return []string{openssl, "pkeyutl", "-sign", "-inkey", keyPath, "-rawin", "-in", msgPath, "-out", "/dev/null"}
		},
	}
}

// sigAlgs is the supported signature algorithm catalog. ECDSA P-256 is
// the classical baseline; the rest are post-quantum schemes provided by
// the subject build.
var sigAlgs = map[string]sigAlg{
	"ecdsap256": {
		speedName:  "ecdsap256",
		capability: "ECDSA",
		keygen: func(openssl, keyPath string) []string {
			return []string{openssl, "genpkey", "-algorithm", "EC", "-pkeyopt", "ec_paramgen_curve:P-256", "-out", keyPath}
		},
		sign: func(openssl, keyPath string) []string {
			// ECDSA signs a digest, not a raw message.
			return []string{openssl, "dgst", "-sha256", "-sign", keyPath, "-out", "/dev/null", msgPath}
		},
	},
	"mldsa44":    pqcAlg("mldsa44", "ML-DSA-44"),
	"mldsa65":    pqcAlg("mldsa65", "ML-DSA-65"),
	"mldsa87":    pqcAlg("mldsa87", "ML-DSA-87"),
	"falcon512":  pqcAlg("falcon512", "falcon512"),
	"falcon1024": pqcAlg("falcon1024", "falcon1024"),
}

// BuildQuantities resolves the configured quantities into concrete
// commands against the subject. The returned order matches the config.
func BuildQuantities(spec *config.Spec) ([]*Quantity, error) {
	openssl := spec.Subject.OpenSSLPath
	var out []*Quantity
	for _, qc := range spec.Quantities {
		q := &Quantity{Name: qc.Name, Family: qc.Family, Algorithm: qc.Algorithm}
		switch qc.Family {
		case result.FamilyTLSHandshake:
			q.Argv = []string{openssl, "s_client", "-connect", spec.Subject.ServerAddr, "-brief"}
			q.Probe = q.Argv
		case result.FamilyTLSThroughput:
			q.Argv = []string{openssl, "s_time", "-connect", spec.Subject.ServerAddr, "-new",
				"-time", strconv.Itoa(spec.WindowSeconds)}
			// The reachability probe is one handshake, not a full window.
			q.Probe = []string{openssl, "s_client", "-connect", spec.Subject.ServerAddr, "-brief"}
		case result.FamilySigWindow:
			alg, ok := sigAlgs[qc.Algorithm]
			if !ok {
				return nil, fmt.Errorf("quantity %q: unknown algorithm %q", qc.Name, qc.Algorithm)
			}
			keyPath := keyPathPrefix + qc.Algorithm + ".key"
			q.Capability = alg.capability
			q.Setup = [][]string{
				{"sh", "-c", "head -c 1024 /dev/urandom > " + msgPath},
				alg.keygen(openssl, keyPath),
			}
			q.Argv = alg.sign(openssl, keyPath)
		case result.FamilySigSpeed:
			alg, ok := sigAlgs[qc.Algorithm]
			if !ok {
				return nil, fmt.Errorf("quantity %q: unknown algorithm %q", qc.Name, qc.Algorithm)
			}
			q.Capability = alg.capability
			q.SpeedName = alg.speedName
			q.Argv = []string{openssl, "speed", "-seconds", strconv.Itoa(spec.WindowSeconds), alg.speedName}
		default:
			return nil, fmt.Errorf("quantity %q: unknown family %q", qc.Name, qc.Family)
		}
		out = append(out, q)
	}
	return out, nil
}
