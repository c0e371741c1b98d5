package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"

	"github.com/decred/slog"
)

// FacilityResult is the report of a finished delegated capture.
type FacilityResult struct {
	PayloadBase64 string `json:"payload_base64"`
	DurationMs    int    `json:"duration_ms"`
	MimeType      string `json:"mime_type"`
}

// Facility is a delegated native capture facility: an OS-level recorder that
// produces a finished, compressed payload on its own. A missing facility is
// a distinct failure cause from a present one that refuses permission.
type Facility interface {
	RequestPermission(ctx context.Context) (bool, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) (FacilityResult, error)
}

// ExecFacility delegates capture to an external recorder helper program.
//
// Helper protocol: "<helper> permission" exits 0 when recording is allowed
// and non-zero when refused; "<helper> record" records until its stdin is
// closed, then writes a single JSON object with the FacilityResult fields to
// stdout and exits.
type ExecFacility struct {
	path string
	log  slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   bytes.Buffer
}

// NewExecFacility returns a facility driving the recorder helper at the
// given path.
func NewExecFacility(path string, log slog.Logger) *ExecFacility {
	if log == nil {
		log = slog.Disabled
	}
	return &ExecFacility{path: path, log: log}
}

// notFoundErr reports whether err means the helper binary does not exist.
func notFoundErr(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// RequestPermission probes the helper. A missing helper surfaces as
// ErrBackendUnavailable; a helper that exists but exits non-zero is a
// refusal, not an error.
func (f *ExecFacility) RequestPermission(ctx context.Context) (bool, error) {
	err := exec.CommandContext(ctx, f.path, "permission").Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &exitErr):
		f.log.Debugf("Recorder helper refused permission: %v", err)
		return false, nil
	case notFoundErr(err):
		return false, fmt.Errorf("%w: recorder helper %q not found",
			ErrBackendUnavailable, f.path)
	default:
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

// Start launches the helper in record mode. The helper keeps recording until
// Stop closes its stdin.
func (f *ExecFacility) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, f.path, "record")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	f.out.Reset()
	cmd.Stdout = &f.out

	if err := cmd.Start(); err != nil {
		if notFoundErr(err) {
			return fmt.Errorf("%w: recorder helper %q not found",
				ErrBackendUnavailable, f.path)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	f.cmd, f.stdin = cmd, stdin
	f.log.Debugf("Started recorder helper %s (pid %d)", f.path, cmd.Process.Pid)
	return nil
}

// Stop signals the helper to finish and decodes its report.
func (f *ExecFacility) Stop(_ context.Context) (FacilityResult, error) {
	if f.cmd == nil {
		return FacilityResult{}, errors.New("no delegated recording in progress")
	}

	// Closing stdin asks the helper to stop and report.
	_ = f.stdin.Close()
	err := f.cmd.Wait()
	f.cmd, f.stdin = nil, nil
	if err != nil {
		return FacilityResult{}, fmt.Errorf("recorder helper failed: %w", err)
	}

	var res FacilityResult
	if err := json.Unmarshal(f.out.Bytes(), &res); err != nil {
		return FacilityResult{}, fmt.Errorf("%w: invalid helper report: %v",
			ErrMalformedPayload, err)
	}
	return res, nil
}
