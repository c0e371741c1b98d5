package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/soundpin/soundpin/internal/audio"
)

// ActiveCapture is an in-progress local capture stream.
type ActiveCapture interface {
	// Finalize stops the capture and returns the finished container
	// bytes plus the backend-reported duration in milliseconds (zero
	// when the backend reports none).
	Finalize(ctx context.Context) ([]byte, int, error)

	// Abort stops the capture and discards any accumulated data.
	Abort()
}

// Backend is the local audio capture and playback surface of the session,
// implemented by the platform audio system.
type Backend interface {
	CanRecord(mime string) bool
	CanPlay(mime string) bool
	CaptureOpusFile(ctx context.Context) (ActiveCapture, error)
	CaptureWAV(ctx context.Context) (ActiveCapture, error)
}

// SystemBackend adapts *audio.System to the Backend interface.
type SystemBackend struct {
	*audio.System
}

func (b SystemBackend) CaptureOpusFile(ctx context.Context) (ActiveCapture, error) {
	c, err := b.System.CaptureOpusFile(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b SystemBackend) CaptureWAV(ctx context.Context) (ActiveCapture, error) {
	c, err := b.System.CaptureWAV(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// sourceResult is the finalized output of a capture source.
type sourceResult struct {
	payload    []byte
	mimeType   string
	durationMs int // 0 when the source reports no duration
}

// captureSource is one recording strategy. The session selects among the
// delegated, compressed and raw implementations and drives exactly one of
// them per capture.
type captureSource interface {
	start(ctx context.Context) error
	stop(ctx context.Context) (sourceResult, error)
	abort()
}

// delegatedSource records through an external native capture facility which
// returns a finished, compressed payload.
type delegatedSource struct {
	f   Facility
	log slog.Logger
}

func (ds *delegatedSource) start(ctx context.Context) error {
	return ds.f.Start(ctx)
}

func (ds *delegatedSource) stop(ctx context.Context) (sourceResult, error) {
	res, err := ds.f.Stop(ctx)
	if err != nil {
		return sourceResult{}, err
	}
	payload, err := decodeFacilityPayload(res.PayloadBase64)
	if err != nil {
		return sourceResult{}, err
	}
	return sourceResult{
		payload:    payload,
		mimeType:   res.MimeType,
		durationMs: res.DurationMs,
	}, nil
}

func (ds *delegatedSource) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := ds.f.Stop(ctx); err != nil {
		ds.log.Debugf("Discarding delegated capture: %v", err)
	}
}

// compressedSource records through the local backend in the negotiated
// compressed container format.
type compressedSource struct {
	backend Backend
	mime    string
	log     slog.Logger

	active ActiveCapture
}

func (cs *compressedSource) start(ctx context.Context) error {
	c, err := cs.backend.CaptureOpusFile(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	cs.active = c
	return nil
}

func (cs *compressedSource) stop(ctx context.Context) (sourceResult, error) {
	data, durationMs, err := cs.active.Finalize(ctx)
	if errors.Is(err, audio.ErrNoCapturedData) {
		return sourceResult{}, fmt.Errorf("%w: %v", ErrEmptyPayload, err)
	}
	if err != nil {
		return sourceResult{}, err
	}
	return sourceResult{
		payload:    data,
		mimeType:   cs.mime,
		durationMs: durationMs,
	}, nil
}

func (cs *compressedSource) abort() {
	cs.active.Abort()
}

// rawSource records uncompressed samples through the local backend and
// finalizes them into a WAVE container. It is the last-resort path, viable
// whenever raw sample access exists.
type rawSource struct {
	backend Backend
	log     slog.Logger

	active ActiveCapture
}

func (rs *rawSource) start(ctx context.Context) error {
	c, err := rs.backend.CaptureWAV(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	rs.active = c
	return nil
}

func (rs *rawSource) stop(ctx context.Context) (sourceResult, error) {
	data, _, err := rs.active.Finalize(ctx)
	if errors.Is(err, audio.ErrNoCapturedData) {
		return sourceResult{}, fmt.Errorf("%w: %v", ErrEmptyPayload, err)
	}
	if err != nil {
		return sourceResult{}, err
	}
	// The raw path has no backend-reported duration; the session falls
	// back to its own measured elapsed time.
	return sourceResult{payload: data, mimeType: audio.MimeWAV}, nil
}

func (rs *rawSource) abort() {
	rs.active.Abort()
}
