package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundpin/soundpin/internal/assert"
)

// writeHelper creates a fake recorder helper script implementing the exec
// facility protocol with the given permission and record actions.
func writeHelper(t *testing.T, permission, record string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recorder")
	script := "#!/bin/sh\ncase \"$1\" in\n" +
		"permission) " + permission + " ;;\n" +
		"record) " + record + " ;;\n" +
		"esac\n"
	assert.NilErr(t, os.WriteFile(path, []byte(script), 0o700))
	return path
}

// TestExecFacilityPermission asserts that the helper's exit status maps to
// the granted result.
func TestExecFacilityPermission(t *testing.T) {
	ctx := context.Background()

	f := NewExecFacility(writeHelper(t, "exit 0", "exit 0"), nil)
	granted, err := f.RequestPermission(ctx)
	assert.NilErr(t, err)
	assert.BoolIs(t, granted, true)

	f = NewExecFacility(writeHelper(t, "exit 1", "exit 0"), nil)
	granted, err = f.RequestPermission(ctx)
	assert.NilErr(t, err)
	assert.BoolIs(t, granted, false)
}

// TestExecFacilityMissing asserts that a helper binary that does not exist
// surfaces as a backend availability failure, not as a refusal.
func TestExecFacilityMissing(t *testing.T) {
	ctx := context.Background()
	f := NewExecFacility(filepath.Join(t.TempDir(), "no-such-helper"), nil)

	_, err := f.RequestPermission(ctx)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	err = f.Start(ctx)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

// TestExecFacilityRecord asserts the full start/stop cycle against a helper
// that records until stdin closes and reports JSON.
func TestExecFacilityRecord(t *testing.T) {
	ctx := context.Background()
	record := `cat >/dev/null; printf '{"payload_base64":"aGVsbG8","duration_ms":4200,"mime_type":"audio/m4a"}'`
	f := NewExecFacility(writeHelper(t, "exit 0", record), nil)

	assert.NilErr(t, f.Start(ctx))
	res, err := f.Stop(ctx)
	assert.NilErr(t, err)
	assert.DeepEqual(t, res, FacilityResult{
		PayloadBase64: "aGVsbG8",
		DurationMs:    4200,
		MimeType:      "audio/m4a",
	})
}

// TestExecFacilityBadReport asserts that a helper emitting a non-JSON report
// fails with a malformed payload error.
func TestExecFacilityBadReport(t *testing.T) {
	ctx := context.Background()
	f := NewExecFacility(writeHelper(t, "exit 0", `cat >/dev/null; echo not json`), nil)

	assert.NilErr(t, f.Start(ctx))
	_, err := f.Stop(ctx)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
