package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// RunMeta records the provenance of one run: when it ran, against which
// subject image, and under what configuration. Stored as meta.json in the
// run directory so results stay interpretable after the fact.
type RunMeta struct {
	TimestampUTC  string         `json:"timestamp_utc"`
	Mode          string         `json:"mode"`
	Image         string         `json:"image"`
	GitSHA        string         `json:"git_sha,omitempty"`
	HostOS        string         `json:"host_os"`
	HostArch      string         `json:"host_arch"`
	DockerVersion string         `json:"docker_version,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

// NewRunMeta fills the host fields and stamps the current time.
func NewRunMeta(mode, image string) *RunMeta {
	return &RunMeta{
		TimestampUTC: time.Now().UTC().Format(time.RFC3339),
		Mode:         mode,
		Image:        image,
		HostOS:       runtime.GOOS,
		HostArch:     runtime.GOARCH,
	}
}

func WriteRunMeta(runDir string, meta *RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "meta.json"), data, 0o644)
}

func ReadRunMeta(runDir string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}
