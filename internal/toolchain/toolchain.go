// Package toolchain runs the external command-line encoders (cwebp, avifenc,
// ffmpeg, ffprobe) and checks that they are installed before a batch starts.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrToolMissing is matched by every MissingToolError.
var ErrToolMissing = errors.New("required tool not found")

// Tool describes an external binary and how to install it.
type Tool struct {
	Name        string
	VersionArgs []string
	Brew        string // macOS
	Apt         string // Debian/Ubuntu
	Choco       string // Windows
}

var (
	FFmpeg  = Tool{Name: "ffmpeg", VersionArgs: []string{"-version"}, Brew: "ffmpeg", Apt: "ffmpeg", Choco: "ffmpeg"}
	FFprobe = Tool{Name: "ffprobe", VersionArgs: []string{"-version"}, Brew: "ffmpeg", Apt: "ffmpeg", Choco: "ffmpeg"}
	CWebP   = Tool{Name: "cwebp", VersionArgs: []string{"-version"}, Brew: "webp", Apt: "webp", Choco: "webp"}
	AVIFEnc = Tool{Name: "avifenc", VersionArgs: []string{"--version"}, Brew: "libavif", Apt: "libavif-bin", Choco: "libavif"}
)

// Guidance returns the install instructions printed when the tool is missing.
func (t Tool) Guidance() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is not installed or not on PATH. Install it with:\n", t.Name)
	fmt.Fprintf(&b, "  macOS:          brew install %s\n", t.Brew)
	fmt.Fprintf(&b, "  Debian/Ubuntu:  sudo apt-get install %s\n", t.Apt)
	fmt.Fprintf(&b, "  Windows:        choco install %s\n", t.Choco)
	return b.String()
}

// MissingToolError is returned by Require when a version check fails.
type MissingToolError struct {
	Tool Tool
	Err  error
}

func (e *MissingToolError) Error() string {
	return fmt.Sprintf("%s: %v\n%s", e.Tool.Name, e.Err, e.Tool.Guidance())
}

func (e *MissingToolError) Unwrap() error { return e.Err }

func (e *MissingToolError) Is(target error) bool { return target == ErrToolMissing }

// Runner executes external commands. Tests substitute a fake.
type Runner interface {
	// Run executes name with args and returns combined stdout+stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Output executes name with args and returns stdout only.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(tail(out, 2048)))
	}
	return out, nil
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(tail(stderr.Bytes(), 2048)))
	}
	return out, nil
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Require checks every tool once with its version command. It is the shared
// startup routine for all entry points that shell out to the tools.
func Require(ctx context.Context, r Runner, tools ...Tool) error {
	for _, t := range tools {
		if _, err := r.LookPath(t.Name); err != nil {
			return &MissingToolError{Tool: t, Err: err}
		}
		if _, err := r.Run(ctx, t.Name, t.VersionArgs...); err != nil {
			return &MissingToolError{Tool: t, Err: err}
		}
	}
	return nil
}

// tail keeps the last n bytes of encoder output; ffmpeg prints the actual
// failure reason at the end of a long banner.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
