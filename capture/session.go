// Package capture implements the voice memo capture session: a state
// machine coordinating permission acquisition, capture source selection,
// elapsed time tracking and persistence of the finished memo.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"

	"github.com/soundpin/soundpin/geotag"
	"github.com/soundpin/soundpin/internal/audio"
	"github.com/soundpin/soundpin/memodb"
)

// State is the lifecycle phase of a capture session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateFinalizing
	StateSaved
	StateFailed
)

func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateSaved:
		return "saved"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(st))
	}
}

const (
	// tickInterval is the granularity of the display-only elapsed time
	// tracker.
	tickInterval = 200 * time.Millisecond

	// defaultGeotagTimeout bounds the best-effort location lookup so a
	// stuck provider never blocks the start of a capture indefinitely.
	defaultGeotagTimeout = 3 * time.Second

	// defaultResetDelay is the cosmetic delay before a saved or failed
	// session returns to idle.
	defaultResetDelay = time.Second

	// labelTimeFormat is the default human-readable memo label.
	labelTimeFormat = "2006-01-02 15:04"
)

// Store persists finalized records.
type Store interface {
	Append(rec memodb.Record, payload []byte) (memodb.Record, error)
}

// Config holds the collaborators and tunables of a Session.
type Config struct {
	Store   Store
	Backend Backend

	// Facility is the delegated native capture facility, or nil when
	// none is linked.
	Facility Facility

	// Geotag is the location provider, or nil when the device has none.
	Geotag geotag.Provider

	// Playable overrides the playability predicate used during format
	// negotiation. Defaults to Backend.CanPlay.
	Playable func(mime string) bool

	// Candidates is the ordered compressed container preference list.
	// Defaults to audio.DefaultCandidates.
	Candidates []string

	GeotagTimeout time.Duration
	ResetDelay    time.Duration

	// OnElapsed, when set, is invoked every tick of the display tracker
	// with the time elapsed since recording started.
	OnElapsed func(elapsed time.Duration)

	// OnState, when set, observes every state transition. err is non-nil
	// only for the failed state.
	OnState func(state State, err error)

	Log slog.Logger
}

// activeState bundles every ephemeral resource of one in-flight capture so
// that all exit paths release all of them at once, never leaving a capture
// half-open.
type activeState struct {
	source     captureSource
	pos        geotag.Position
	startTime  time.Time
	stopTicker func()
}

// Session is the capture state machine. One value handles successive
// captures; at most one capture is in flight at a time and the state itself
// is the mutual exclusion mechanism.
type Session struct {
	cfg Config
	log slog.Logger

	geotagTimeout time.Duration
	resetDelay    time.Duration

	mtx    sync.Mutex
	state  State
	active *activeState
}

// NewSession creates the capture session coordinator.
func NewSession(cfg Config) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = audio.DefaultCandidates
	}
	if cfg.Playable == nil && cfg.Backend != nil {
		cfg.Playable = cfg.Backend.CanPlay
	}

	s := &Session{
		cfg:           cfg,
		log:           log,
		geotagTimeout: cfg.GeotagTimeout,
		resetDelay:    cfg.ResetDelay,
	}
	if s.geotagTimeout <= 0 {
		s.geotagTimeout = defaultGeotagTimeout
	}
	if s.resetDelay <= 0 {
		s.resetDelay = defaultResetDelay
	}
	return s
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.state
}

func (s *Session) notify(state State, err error) {
	if s.cfg.OnState != nil {
		s.cfg.OnState(state, err)
	}
}

// toFailed parks the session in the failed state and schedules the reset to
// idle. Callers must have already released any acquired capture resources.
func (s *Session) toFailed(err error) {
	s.mtx.Lock()
	s.state = StateFailed
	s.active = nil
	s.mtx.Unlock()

	s.log.Warnf("Capture failed: %v", err)
	s.notify(StateFailed, err)
	s.scheduleReset(StateFailed)
}

// scheduleReset returns the session to idle after the cosmetic delay.
func (s *Session) scheduleReset(from State) {
	time.AfterFunc(s.resetDelay, func() {
		s.mtx.Lock()
		reset := s.state == from
		if reset {
			s.state = StateIdle
		}
		s.mtx.Unlock()
		if reset {
			s.notify(StateIdle, nil)
		}
	})
}

// startTicker spawns the display-only elapsed time tracker and returns its
// cancel function. The tracker has no correctness role and is canceled on
// every exit path to avoid leaking ticks into a later session.
func (s *Session) startTicker(start time.Time) func() {
	if s.cfg.OnElapsed == nil {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(tickInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.cfg.OnElapsed(time.Since(start))
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// snapshotPosition performs the best-effort location lookup. Failures and
// timeouts are swallowed; the (0,0) sentinel marks an unlocated memo.
func (s *Session) snapshotPosition(ctx context.Context) geotag.Position {
	if s.cfg.Geotag == nil {
		return geotag.Position{}
	}

	ctx, cancel := context.WithTimeout(ctx, s.geotagTimeout)
	defer cancel()
	pos, err := s.cfg.Geotag.CurrentPosition(ctx)
	if err != nil {
		s.log.Debugf("No location snapshot: %v", err)
		return geotag.Position{}
	}
	return pos
}

// selectSource picks the recording strategy: the delegated facility when one
// is linked and grants permission, otherwise a negotiated compressed local
// format, otherwise the raw fallback. A linked facility that is unusable or
// refuses permission fails the attempt instead of silently falling through.
func (s *Session) selectSource(ctx context.Context) (captureSource, error) {
	if s.cfg.Facility != nil {
		granted, err := s.cfg.Facility.RequestPermission(ctx)
		if err != nil {
			return nil, err
		}
		if !granted {
			return nil, ErrPermissionDenied
		}
		return &delegatedSource{f: s.cfg.Facility, log: s.log}, nil
	}

	if mime, ok := audio.Negotiate(s.cfg.Candidates, s.cfg.Backend.CanRecord,
		s.cfg.Playable); ok {
		s.log.Debugf("Negotiated compressed capture format %s", mime)
		return &compressedSource{backend: s.cfg.Backend, mime: mime, log: s.log}, nil
	}

	if !s.cfg.Backend.CanRecord(audio.MimeWAV) {
		return nil, ErrNoMutualFormat
	}
	s.log.Debugf("No mutual compressed format; using raw fallback")
	return &rawSource{backend: s.cfg.Backend, log: s.log}, nil
}

// Start begins a new capture. It is only valid from the idle state; calls
// while another capture is in flight are rejected, not queued. Permission
// refusal or backend unavailability fails this attempt with a specific
// cause; nothing is retried automatically.
func (s *Session) Start(ctx context.Context) error {
	s.mtx.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mtx.Unlock()
		return fmt.Errorf("cannot start capture from state %s", state)
	}
	s.state = StateAcquiring
	s.mtx.Unlock()
	s.notify(StateAcquiring, nil)

	pos := s.snapshotPosition(ctx)

	source, err := s.selectSource(ctx)
	if err != nil {
		s.toFailed(err)
		return err
	}
	if err := source.start(ctx); err != nil {
		s.toFailed(err)
		return err
	}

	start := time.Now()
	active := &activeState{
		source:     source,
		pos:        pos,
		startTime:  start,
		stopTicker: s.startTicker(start),
	}

	s.mtx.Lock()
	s.state = StateRecording
	s.active = active
	s.mtx.Unlock()
	s.notify(StateRecording, nil)
	s.log.Debugf("Recording started")
	return nil
}

// Stop finishes the in-flight capture, persists the resulting record and
// returns it. Only valid while recording; calls in any other state are
// rejected without side effects.
func (s *Session) Stop(ctx context.Context) (memodb.Record, error) {
	s.mtx.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mtx.Unlock()
		return memodb.Record{}, fmt.Errorf("cannot stop capture from state %s", state)
	}
	s.state = StateFinalizing
	active := s.active
	s.active = nil
	s.mtx.Unlock()
	s.notify(StateFinalizing, nil)

	active.stopTicker()
	elapsed := time.Since(active.startTime)

	res, err := active.source.stop(ctx)
	if err != nil {
		s.toFailed(err)
		return memodb.Record{}, err
	}
	if len(res.payload) == 0 {
		s.toFailed(ErrEmptyPayload)
		return memodb.Record{}, ErrEmptyPayload
	}

	// Prefer the backend-reported duration; the raw path reports none.
	durationMs := res.durationMs
	if durationMs <= 0 {
		durationMs = int(elapsed / time.Millisecond)
	}

	createdAt := time.Now()
	rec := memodb.Record{
		ID:         memodb.NewID(),
		CreatedAt:  createdAt,
		Lat:        active.pos.Lat,
		Lon:        active.pos.Lon,
		Label:      createdAt.Format(labelTimeFormat),
		DurationMs: durationMs,
		MimeType:   res.mimeType,
	}
	rec, err = s.cfg.Store.Append(rec, res.payload)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		s.toFailed(err)
		return memodb.Record{}, err
	}

	s.mtx.Lock()
	s.state = StateSaved
	s.mtx.Unlock()
	s.log.Infof("Saved memo %s (%s, %d ms)", rec.ID, rec.MimeType, rec.DurationMs)
	s.notify(StateSaved, nil)
	s.scheduleReset(StateSaved)
	return rec, nil
}

// Abort discards an in-flight capture without persisting anything. It is a
// no-op outside the recording state.
func (s *Session) Abort() {
	s.mtx.Lock()
	if s.state != StateRecording {
		s.mtx.Unlock()
		return
	}
	active := s.active
	s.active = nil
	s.state = StateIdle
	s.mtx.Unlock()

	active.stopTicker()
	active.source.abort()
	s.log.Infof("Capture aborted")
	s.notify(StateIdle, nil)
}
