package result

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Family names route rows to their CSV file. Each family has a fixed
// metric column set; a row's metrics are matched to columns by name.
const (
	FamilyTLSHandshake  = "tls-handshake"
	FamilyTLSThroughput = "tls-throughput"
	FamilySigWindow     = "sig-window"
	FamilySigSpeed      = "sig-speed"
)

var familyFiles = map[string]string{
	FamilyTLSHandshake:  "tls_latency.csv",
	FamilyTLSThroughput: "tls_throughput.csv",
	FamilySigWindow:     "sig_window.csv",
	FamilySigSpeed:      "sig_speed.csv",
}

var familyColumns = map[string][]string{
	FamilyTLSHandshake:  {"p50_ms", "p95_ms", "p99_ms", "mean_ms", "stddev_ms", "ok_count", "fail_count"},
	FamilyTLSThroughput: {"conn_user_sec"},
	FamilySigWindow:     {"count_ok", "count_fail", "rate_per_s"},
	FamilySigSpeed:      {"keygens_s", "sign_s", "verify_s"},
}

// MetricColumns reports the metric column names for a family.
func MetricColumns(family string) []string {
	return familyColumns[family]
}

// CreateRunDir makes a timestamped run directory under baseDir/runs and
// repoints the baseDir/latest symlink at it.
func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// Storage appends rows to the run's per-family CSV files. Files are
// created lazily with a header row on first use. A Storage is not safe
// for concurrent use; the run controller writes sequentially.
type Storage struct {
	runDir  string
	files   map[string]*os.File
	writers map[string]*csv.Writer
}

func NewStorage(runDir string) *Storage {
	return &Storage{
		runDir:  runDir,
		files:   map[string]*os.File{},
		writers: map[string]*csv.Writer{},
	}
}

// Append writes one row and flushes it, so a row is durable before the
// controller decides whether to continue or abort.
func (s *Storage) Append(row *Row) error {
	cols, ok := familyColumns[row.Family]
	if !ok {
		return fmt.Errorf("unknown result family %q", row.Family)
	}
	w, err := s.writer(row.Family, cols)
	if err != nil {
		return err
	}

	record := []string{
		strconv.Itoa(row.Repeat),
		row.Mode,
		row.WindowOrTimeout,
		row.Quantity,
	}
	for _, col := range cols {
		m := row.Metric(col)
		if row.OK && m.Defined {
			record = append(record, strconv.FormatFloat(m.Value, 'f', -1, 64))
		} else {
			record = append(record, "")
		}
	}
	record = append(record, strconv.FormatBool(row.OK), string(row.ErrorKind), row.RawRef)

	if err := w.Write(record); err != nil {
		return fmt.Errorf("writing %s row: %w", row.Family, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s rows: %w", row.Family, err)
	}
	return nil
}

func (s *Storage) writer(family string, cols []string) (*csv.Writer, error) {
	if w, ok := s.writers[family]; ok {
		return w, nil
	}
	path := filepath.Join(s.runDir, familyFiles[family])
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	header := append([]string{"repeat", "mode", "window_or_timeout", "quantity"}, cols...)
	header = append(header, "ok", "error_kind", "raw_ref")
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing %s header: %w", path, err)
	}
	s.files[family] = f
	s.writers[family] = w
	return w, nil
}

// Close flushes and closes all open CSV files.
func (s *Storage) Close() error {
	var firstErr error
	for family, w := range s.writers {
		w.Flush()
		if err := w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.files[family].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.writers = map[string]*csv.Writer{}
	s.files = map[string]*os.File{}
	return firstErr
}

// SaveRaw stores one invocation's raw output under the run's raw/
// directory and returns the path relative to the run dir, which rows
// reference as RawRef.
func SaveRaw(runDir, quantity string, repeat int, text string) (string, error) {
	rawDir := filepath.Join(runDir, "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return "", fmt.Errorf("creating raw dir: %w", err)
	}
	name := fmt.Sprintf("%s-r%d.txt", sanitize(quantity), repeat)
	rel := filepath.Join("raw", name)
	if err := os.WriteFile(filepath.Join(runDir, rel), []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("writing raw output: %w", err)
	}
	return rel, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

// ReadRows loads every row from one family CSV, for reporting. Blank
// numeric cells come back as undefined metrics.
func ReadRows(runDir, family string) ([]*Row, error) {
	cols, ok := familyColumns[family]
	if !ok {
		return nil, fmt.Errorf("unknown result family %q", family)
	}
	path := filepath.Join(runDir, familyFiles[family])
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var rows []*Row
	for i, rec := range records {
		if i == 0 {
			continue // header
		}
		if len(rec) != 4+len(cols)+3 {
			return nil, fmt.Errorf("%s: row %d has %d fields, want %d", path, i, len(rec), 4+len(cols)+3)
		}
		repeat, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d repeat: %w", path, i, err)
		}
		row := &Row{
			Repeat:          repeat,
			Mode:            rec[1],
			WindowOrTimeout: rec[2],
			Quantity:        rec[3],
			Family:          family,
		}
		for j, col := range cols {
			cell := rec[4+j]
			m := Metric{Name: col}
			if cell != "" {
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("%s: row %d column %s: %w", path, i, col, err)
				}
				m.Value = v
				m.Defined = true
			}
			row.Metrics = append(row.Metrics, m)
		}
		tail := rec[4+len(cols):]
		row.OK = tail[0] == "true"
		row.ErrorKind = ErrorKind(tail[1])
		row.RawRef = tail[2]
		rows = append(rows, row)
	}
	return rows, nil
}
