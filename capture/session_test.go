package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundpin/soundpin/geotag"
	"github.com/soundpin/soundpin/internal/assert"
	"github.com/soundpin/soundpin/internal/audio"
	"github.com/soundpin/soundpin/memodb"
)

// fakeCapture is a canned ActiveCapture.
type fakeCapture struct {
	data    []byte
	dur     int
	err     error
	aborted bool
}

func (c *fakeCapture) Finalize(_ context.Context) ([]byte, int, error) {
	return c.data, c.dur, c.err
}

func (c *fakeCapture) Abort() { c.aborted = true }

// fakeBackend is a Backend with configurable capabilities and canned
// captures.
type fakeBackend struct {
	recordable map[string]bool
	playable   map[string]bool
	opus       *fakeCapture
	wav        *fakeCapture
	opusErr    error
	wavErr     error
}

func (b *fakeBackend) CanRecord(mime string) bool { return b.recordable[mime] }
func (b *fakeBackend) CanPlay(mime string) bool   { return b.playable[mime] }

func (b *fakeBackend) CaptureOpusFile(_ context.Context) (ActiveCapture, error) {
	if b.opusErr != nil {
		return nil, b.opusErr
	}
	return b.opus, nil
}

func (b *fakeBackend) CaptureWAV(_ context.Context) (ActiveCapture, error) {
	if b.wavErr != nil {
		return nil, b.wavErr
	}
	return b.wav, nil
}

// fakeFacility is a canned delegated capture facility.
type fakeFacility struct {
	granted  bool
	permErr  error
	startErr error
	res      FacilityResult
	stopErr  error
}

func (f *fakeFacility) RequestPermission(_ context.Context) (bool, error) {
	return f.granted, f.permErr
}

func (f *fakeFacility) Start(_ context.Context) error { return f.startErr }

func (f *fakeFacility) Stop(_ context.Context) (FacilityResult, error) {
	return f.res, f.stopErr
}

// errStore fails every append.
type errStore struct{ err error }

func (s errStore) Append(memodb.Record, []byte) (memodb.Record, error) {
	return memodb.Record{}, s.err
}

// failingProvider never produces a fix.
type failingProvider struct{}

func (failingProvider) CurrentPosition(_ context.Context) (geotag.Position, error) {
	return geotag.Position{}, errors.New("no fix")
}

// blockingProvider hangs until its ctx expires.
type blockingProvider struct{}

func (blockingProvider) CurrentPosition(ctx context.Context) (geotag.Position, error) {
	<-ctx.Done()
	return geotag.Position{}, ctx.Err()
}

func newTestStore(t *testing.T) *memodb.DB {
	t.Helper()
	db, err := memodb.New(t.TempDir(), nil)
	assert.NilErr(t, err)
	return db
}

// waitForState consumes state notifications until the wanted one arrives.
func waitForState(t *testing.T, states chan State, want State) {
	t.Helper()
	for {
		if st := assert.ChanWritten(t, states); st == want {
			return
		}
	}
}

// TestSessionDelegatedCapture asserts the delegated path end to end: the
// facility's payload, duration and mime type flow into the persisted record,
// the location snapshot is attached, and the session auto-resets so a second
// capture can start.
func TestSessionDelegatedCapture(t *testing.T) {
	ctx := context.Background()
	payload := []byte("delegated payload bytes")
	db := newTestStore(t)
	states := make(chan State, 16)

	s := NewSession(Config{
		Store: db,
		Facility: &fakeFacility{
			granted: true,
			res: FacilityResult{
				// URL-safe and unpadded, as real facilities emit.
				PayloadBase64: base64.RawURLEncoding.EncodeToString(payload),
				DurationMs:    4200,
				MimeType:      "audio/m4a",
			},
		},
		Geotag:     geotag.Fixed{Pos: geotag.Position{Lat: 10.5, Lon: -20.25}},
		ResetDelay: 10 * time.Millisecond,
		OnState:    func(st State, _ error) { states <- st },
	})

	assert.NilErr(t, s.Start(ctx))
	assert.DeepEqual(t, s.State(), StateRecording)

	rec, err := s.Stop(ctx)
	assert.NilErr(t, err)
	assert.DeepEqual(t, rec.DurationMs, 4200)
	assert.DeepEqual(t, rec.MimeType, "audio/m4a")
	assert.DeepEqual(t, rec.Lat, 10.5)
	assert.DeepEqual(t, rec.Lon, -20.25)
	assert.BoolIs(t, rec.HasLocation(), true)
	assert.BoolIs(t, strings.HasSuffix(rec.PayloadPath, ".m4a"), true)
	assert.BoolIs(t, rec.Label != "", true)
	assert.DeepEqual(t, filepath.Dir(rec.PayloadPath), "audio")

	stored, err := db.ReadPayload(rec)
	assert.NilErr(t, err)
	assert.DeepEqual(t, stored, payload)
	assert.DeepEqual(t, db.List()[0].ID, rec.ID)

	// The session auto-resets and accepts a new capture.
	waitForState(t, states, StateSaved)
	waitForState(t, states, StateIdle)
	assert.NilErr(t, s.Start(ctx))
}

// TestSessionCompressedCapture asserts the negotiated local capture path,
// including the backend-reported duration winning over the measured one.
func TestSessionCompressedCapture(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		opus:       &fakeCapture{data: []byte("opus container"), dur: 1234},
	}

	s := NewSession(Config{Store: db, Backend: backend})
	assert.NilErr(t, s.Start(ctx))

	rec, err := s.Stop(ctx)
	assert.NilErr(t, err)
	assert.DeepEqual(t, rec.MimeType, audio.MimeOggOpus)
	assert.DeepEqual(t, rec.DurationMs, 1234)
	assert.BoolIs(t, strings.HasSuffix(rec.PayloadPath, ".ogg"), true)
}

// TestSessionRawFallback asserts that when no compressed format is mutually
// supported the raw path is used and the duration comes from the session's
// own measured elapsed time.
func TestSessionRawFallback(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	backend := &fakeBackend{
		// An opus decoder is missing, so negotiation fails.
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeWAV: true},
		wav:        &fakeCapture{data: []byte("wav container")},
	}

	s := NewSession(Config{Store: db, Backend: backend})
	assert.NilErr(t, s.Start(ctx))
	time.Sleep(50 * time.Millisecond)

	rec, err := s.Stop(ctx)
	assert.NilErr(t, err)
	assert.DeepEqual(t, rec.MimeType, audio.MimeWAV)
	assert.BoolIs(t, strings.HasSuffix(rec.PayloadPath, ".wav"), true)
	assert.BoolIs(t, rec.DurationMs > 0, true)
}

// TestSessionPermissionDenied asserts that a linked facility refusing
// permission fails the attempt with the specific cause and the session
// returns to idle.
func TestSessionPermissionDenied(t *testing.T) {
	states := make(chan State, 16)
	s := NewSession(Config{
		Store:      newTestStore(t),
		Facility:   &fakeFacility{granted: false},
		ResetDelay: 10 * time.Millisecond,
		OnState:    func(st State, _ error) { states <- st },
	})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.DeepEqual(t, s.State(), StateFailed)

	waitForState(t, states, StateIdle)
	assert.DeepEqual(t, s.State(), StateIdle)
}

// TestSessionFacilityMissing asserts that a configured but absent recorder
// helper fails as backend unavailability, distinct from a refusal.
func TestSessionFacilityMissing(t *testing.T) {
	s := NewSession(Config{
		Store:    newTestStore(t),
		Facility: NewExecFacility(filepath.Join(t.TempDir(), "gone"), nil),
	})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

// TestSessionNoMutualFormat asserts the defect marker error when not even
// raw capture is available.
func TestSessionNoMutualFormat(t *testing.T) {
	backend := &fakeBackend{
		recordable: map[string]bool{},
		playable:   map[string]bool{},
	}
	s := NewSession(Config{Store: newTestStore(t), Backend: backend})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoMutualFormat)
}

// TestSessionEmptyPayload asserts that a capture reporting success with no
// bytes fails instead of persisting an empty record.
func TestSessionEmptyPayload(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true},
		opus:       &fakeCapture{data: nil},
	}

	s := NewSession(Config{Store: db, Backend: backend})
	assert.NilErr(t, s.Start(ctx))

	_, err := s.Stop(ctx)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.DeepEqual(t, len(db.List()), 0)
}

// TestSessionMalformedPayload asserts that a facility payload failing base64
// normalization fails the capture.
func TestSessionMalformedPayload(t *testing.T) {
	ctx := context.Background()
	s := NewSession(Config{
		Store: newTestStore(t),
		Facility: &fakeFacility{
			granted: true,
			res:     FacilityResult{PayloadBase64: "AAAAA", MimeType: "audio/m4a"},
		},
	})

	assert.NilErr(t, s.Start(ctx))
	_, err := s.Stop(ctx)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

// TestSessionPersistenceFailure asserts the store failure mapping.
func TestSessionPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true},
		opus:       &fakeCapture{data: []byte("x"), dur: 100},
	}
	s := NewSession(Config{
		Store:   errStore{err: errors.New("disk full")},
		Backend: backend,
	})

	assert.NilErr(t, s.Start(ctx))
	_, err := s.Stop(ctx)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
}

// TestSessionGeotagFailure asserts that a failing location provider yields
// the (0,0) sentinel instead of failing the capture.
func TestSessionGeotagFailure(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true},
		opus:       &fakeCapture{data: []byte("x"), dur: 100},
	}
	s := NewSession(Config{
		Store:   newTestStore(t),
		Backend: backend,
		Geotag:  failingProvider{},
	})

	assert.NilErr(t, s.Start(ctx))
	rec, err := s.Stop(ctx)
	assert.NilErr(t, err)
	assert.DeepEqual(t, rec.Lat, 0.0)
	assert.DeepEqual(t, rec.Lon, 0.0)
	assert.BoolIs(t, rec.HasLocation(), false)
}

// TestSessionGeotagBounded asserts that a hung location provider delays the
// start only up to the configured timeout.
func TestSessionGeotagBounded(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true},
		opus:       &fakeCapture{data: []byte("x"), dur: 100},
	}
	s := NewSession(Config{
		Store:         newTestStore(t),
		Backend:       backend,
		Geotag:        blockingProvider{},
		GeotagTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	assert.NilErr(t, s.Start(ctx))
	assert.BoolIs(t, time.Since(start) < 5*time.Second, true)

	rec, err := s.Stop(ctx)
	assert.NilErr(t, err)
	assert.BoolIs(t, rec.HasLocation(), false)
}

// TestSessionStopWhileIdle asserts that stop from idle is rejected without
// side effects.
func TestSessionStopWhileIdle(t *testing.T) {
	db := newTestStore(t)
	s := NewSession(Config{Store: db, Backend: &fakeBackend{}})

	_, err := s.Stop(context.Background())
	assert.NonNilErr(t, err)
	assert.DeepEqual(t, s.State(), StateIdle)
	assert.DeepEqual(t, len(db.List()), 0)
}

// TestSessionStartWhileRecording asserts that a second start is rejected
// rather than queued.
func TestSessionStartWhileRecording(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true},
		opus:       &fakeCapture{data: []byte("x"), dur: 100},
	}
	s := NewSession(Config{Store: newTestStore(t), Backend: backend})

	assert.NilErr(t, s.Start(ctx))
	assert.NonNilErr(t, s.Start(ctx))
	assert.DeepEqual(t, s.State(), StateRecording)

	_, err := s.Stop(ctx)
	assert.NilErr(t, err)
}

// TestSessionAbort asserts that aborting discards the capture, tears down
// the source and returns straight to idle.
func TestSessionAbort(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	opus := &fakeCapture{data: []byte("x"), dur: 100}
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true},
		opus:       opus,
	}
	s := NewSession(Config{Store: db, Backend: backend})

	assert.NilErr(t, s.Start(ctx))
	s.Abort()
	assert.DeepEqual(t, s.State(), StateIdle)
	assert.BoolIs(t, opus.aborted, true)
	assert.DeepEqual(t, len(db.List()), 0)

	// Abort outside recording is a no-op.
	s.Abort()
	assert.DeepEqual(t, s.State(), StateIdle)
}

// TestSessionTicker asserts that the display tracker ticks while recording
// and is canceled on stop.
func TestSessionTicker(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{
		recordable: map[string]bool{audio.MimeOggOpus: true, audio.MimeWAV: true},
		playable:   map[string]bool{audio.MimeOggOpus: true},
		opus:       &fakeCapture{data: []byte("x"), dur: 100},
	}

	var ticks atomic.Int64
	s := NewSession(Config{
		Store:     newTestStore(t),
		Backend:   backend,
		OnElapsed: func(time.Duration) { ticks.Add(1) },
	})

	assert.NilErr(t, s.Start(ctx))
	time.Sleep(450 * time.Millisecond)
	_, err := s.Stop(ctx)
	assert.NilErr(t, err)

	got := ticks.Load()
	assert.BoolIs(t, got >= 1, true)

	// No ticks leak into a later session.
	time.Sleep(450 * time.Millisecond)
	assert.DeepEqual(t, ticks.Load(), got)
}
