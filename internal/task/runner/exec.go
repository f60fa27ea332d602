package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"reportd/internal/configstore"
)

// ExecLauncher runs `<Executable> generate` as a child process per group.
type ExecLauncher struct {
	// Executable defaults to the running binary.
	Executable string
	// Settings, when set, is forwarded as --settings so the child uses the
	// same report configuration as the daemon.
	Settings string
	// Env is appended to the inherited environment.
	Env []string
}

// Args builds the child argument list for g.
func (l ExecLauncher) Args(g configstore.Group) []string {
	args := []string{"generate",
		"--sales", g.Sales,
		"--sales-info", g.SalesInfo,
		"--client", g.Client,
	}
	if l.Settings != "" {
		args = append(args, "--settings", l.Settings)
	}
	return args
}

func (l ExecLauncher) Launch(ctx context.Context, g configstore.Group, stdout, stderr io.Writer) error {
	exe := l.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		exe = self
	}

	cmd := exec.CommandContext(ctx, exe, l.Args(g)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), l.Env...)
	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return &ExitError{Code: ee.ExitCode(), err: err}
		}
		return err
	}
	return nil
}

// ExitError reports a child that ran but exited non-zero.
type ExitError struct {
	Code int
	err  error
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }
func (e *ExitError) Unwrap() error { return e.err }
