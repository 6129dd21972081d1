package result

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// RunLog is the companion free-text log: one timestamped line per
// warning or failure, mirrored to stderr and to run.log in the run
// directory. Failure lines carry the same error-kind vocabulary as the
// CSV rows.
type RunLog struct {
	*log.Logger
	file *os.File
}

func OpenRunLog(runDir string) (*RunLog, error) {
	f, err := os.OpenFile(filepath.Join(runDir, "run.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	return &RunLog{
		Logger: log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags|log.LUTC),
		file:   f,
	}, nil
}

// Failure logs one failed repeat × quantity with its error kind.
func (l *RunLog) Failure(quantity string, repeat int, kind ErrorKind, detail string) {
	l.Printf("warning: %s repeat %d failed (%s): %s", quantity, repeat, kind, detail)
}

func (l *RunLog) Close() error {
	return l.file.Close()
}
