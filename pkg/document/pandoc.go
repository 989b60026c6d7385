package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrPandocMissing is returned when a format needs pandoc and it is not
// installed.
var ErrPandocMissing = errors.New("pandoc is not installed (see https://pandoc.org/installing.html)")

func (r *Reader) extractPandoc(ctx context.Context, path string) (string, error) {
	bin, err := exec.LookPath(r.pandoc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPandocMissing, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-t", "plain", "--wrap=none", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("pandoc: %w: %s", err, msg)
		}
		return "", fmt.Errorf("pandoc: %w", err)
	}
	return stdout.String(), nil
}
