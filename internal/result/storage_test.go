package result_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pqbench/pqbench/internal/result"
)

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := result.NewStorage(dir)

	rows := []*result.Row{
		{
			Repeat: 1, Mode: "quick", WindowOrTimeout: "10s",
			Quantity: "mldsa44-speed", Family: result.FamilySigSpeed,
			Metrics: []result.Metric{
				{Name: "keygens_s", Value: 12500, Defined: true},
				{Name: "sign_s", Value: 8333.3, Defined: true},
				{Name: "verify_s", Value: 14925.4, Defined: true},
			},
			OK:     true,
			RawRef: "raw/mldsa44-speed-r1.txt",
		},
		{
			Repeat: 2, Mode: "quick", WindowOrTimeout: "10s",
			Quantity: "mldsa44-speed", Family: result.FamilySigSpeed,
			OK:        false,
			ErrorKind: result.ErrRowNotFound,
		},
	}
	for _, r := range rows {
		if err := s.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := result.ReadRows(dir, result.FamilySigSpeed)
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}

	ok := got[0]
	if !ok.OK || ok.ErrorKind != result.ErrNone {
		t.Errorf("row 1 should be ok, got %+v", ok)
	}
	if m := ok.Metric("sign_s"); !m.Defined || m.Value != 8333.3 {
		t.Errorf("sign_s = %+v", m)
	}
	if ok.RawRef != "raw/mldsa44-speed-r1.txt" {
		t.Errorf("raw_ref = %q", ok.RawRef)
	}

	fail := got[1]
	if fail.OK || fail.ErrorKind != result.ErrRowNotFound {
		t.Errorf("row 2 should be a ROW_NOT_FOUND failure, got %+v", fail)
	}
	for _, name := range result.MetricColumns(result.FamilySigSpeed) {
		if m := fail.Metric(name); m.Defined {
			t.Errorf("failed row metric %s must be undefined, got %v", name, m.Value)
		}
	}
}

// Failed rows must land as blank cells, not zeros, in the CSV itself.
func TestStorageBlankOnFailure(t *testing.T) {
	dir := t.TempDir()
	s := result.NewStorage(dir)
	row := &result.Row{
		Repeat: 1, Mode: "full", WindowOrTimeout: "30s",
		Quantity: "tls-throughput", Family: result.FamilyTLSThroughput,
		OK:        false,
		ErrorKind: result.ErrRunFailed,
	}
	if err := s.Append(row); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tls_throughput.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + 1 row", len(lines))
	}
	if !strings.Contains(lines[1], ",,") {
		t.Errorf("expected blank numeric cell in %q", lines[1])
	}
	if strings.Contains(lines[1], ",0,") {
		t.Errorf("failed row encoded a zero: %q", lines[1])
	}
	if !strings.Contains(lines[1], "RUN_FAILED") {
		t.Errorf("error kind missing from %q", lines[1])
	}
}

func TestStorageUnknownFamily(t *testing.T) {
	s := result.NewStorage(t.TempDir())
	err := s.Append(&result.Row{Family: "nonsense"})
	if err == nil {
		t.Fatal("expected error for unknown family")
	}
}

func TestSaveRaw(t *testing.T) {
	dir := t.TempDir()
	ref, err := result.SaveRaw(dir, "tls handshake/x25519", 3, "raw output\n")
	if err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ref))
	if err != nil {
		t.Fatalf("reading raw ref: %v", err)
	}
	if string(data) != "raw output\n" {
		t.Errorf("raw content = %q", data)
	}
	if strings.Contains(filepath.Base(ref), "/") {
		t.Errorf("quantity name not sanitized: %q", ref)
	}
}

func TestRunMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	meta := result.NewRunMeta("quick", "openssl-pqc:latest")
	meta.GitSHA = "abc123"
	meta.Config = map[string]any{"repeats": 3}
	if err := result.WriteRunMeta(dir, meta); err != nil {
		t.Fatalf("WriteRunMeta: %v", err)
	}
	got, err := result.ReadRunMeta(dir)
	if err != nil {
		t.Fatalf("ReadRunMeta: %v", err)
	}
	if got.Mode != "quick" || got.Image != "openssl-pqc:latest" || got.GitSHA != "abc123" {
		t.Errorf("meta round trip: %+v", got)
	}
	if got.TimestampUTC == "" {
		t.Error("timestamp missing")
	}
}
