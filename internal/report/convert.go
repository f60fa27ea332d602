package report

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"reportd/pkg/errors"
)

var (
	ErrConverterMissing = errors.New("pdf converter not found")
	ErrConvertFailed    = errors.New("pdf conversion failed")
)

// Converter turns a rendered HTML file into a PDF at pdfPath.
type Converter interface {
	Convert(ctx context.Context, htmlPath, pdfPath string) error
}

// ExecConverter runs an external program as `<Path> [Args...] <html> <pdf>`.
type ExecConverter struct {
	Path string
	Args []string
}

func (c ExecConverter) Check() error {
	if c.Path == "" {
		return errors.WithHint(ErrConverterMissing, "set report.converter in the settings file")
	}
	if _, err := os.Stat(c.Path); err != nil {
		if _, lerr := exec.LookPath(c.Path); lerr != nil {
			return errors.WithHintf(errors.Wrapf(ErrConverterMissing, "%s", c.Path),
				"install the converter or point report.converter at it")
		}
	}
	return nil
}

func (c ExecConverter) Convert(ctx context.Context, htmlPath, pdfPath string) error {
	if err := c.Check(); err != nil {
		return err
	}
	args := append(append([]string(nil), c.Args...), htmlPath, pdfPath)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		err = errors.Wrapf(ErrConvertFailed, "%s: %v", c.Path, err)
		if msg := strings.TrimSpace(out.String()); msg != "" {
			err = errors.WithDetailf(err, "%s", tail(msg, 2048))
		}
		return err
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
