package runner

import (
	"context"
	"errors"
	"io"
	"time"

	"reportd/internal/configstore"
)

var (
	// ErrAlreadyRunning is returned when a batch is requested while another
	// one is active. Nothing is queued.
	ErrAlreadyRunning = errors.New("report run already in progress")
	ErrNoGroups       = errors.New("no monitored files")
	ErrShuttingDown   = errors.New("runner shutting down")
)

// ArtifactPrefix marks the line a successful report child prints last.
const ArtifactPrefix = "OK -> "

// Launcher runs the report pipeline for one group and blocks until it exits.
// A non-nil error means the group failed.
type Launcher interface {
	Launch(ctx context.Context, g configstore.Group, stdout, stderr io.Writer) error
}

// GroupResult is the outcome of one monitored group.
type GroupResult struct {
	Group    string        `json:"group"`
	OK       bool          `json:"ok"`
	Artifact string        `json:"artifact,omitempty"`
	Error    string        `json:"error,omitempty"`
	ExitCode int           `json:"exit_code"`
	Elapsed  time.Duration `json:"elapsed"`
	// Output holds the last lines printed by the child (stdout and stderr).
	Output []string `json:"output,omitempty"`
}

// Summary describes a finished batch.
type Summary struct {
	RunID     string        `json:"run_id"`
	Reason    string        `json:"reason"`
	Started   time.Time     `json:"started"`
	Elapsed   time.Duration `json:"elapsed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Groups    []GroupResult `json:"groups"`
}

// Artifacts returns the output files of successful groups.
func (s Summary) Artifacts() []string {
	out := make([]string, 0, len(s.Groups))
	for _, g := range s.Groups {
		if g.OK && g.Artifact != "" {
			out = append(out, g.Artifact)
		}
	}
	return out
}

// Stats is a point-in-time view of the runner.
type Stats struct {
	Running   bool
	Completed uint64
	Rejected  uint64
	Last      *Summary
}

// Options configures a Runner.
type Options struct {
	// Timeout bounds each group; 0 disables it.
	Timeout time.Duration
	// LogRatePerSec caps child output lines relayed to the log.
	LogRatePerSec int
	// OutputTail is how many trailing lines are kept per group.
	OutputTail int
	// ResultBuffer sizes the Results channel.
	ResultBuffer int
}
