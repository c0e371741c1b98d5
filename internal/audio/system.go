package audio

import (
	"sync"

	"github.com/decred/slog"
)

// System owns the platform audio backend used for both capture and local
// playback.
type System struct {
	actx audioContext
	log  slog.Logger

	mtx         sync.Mutex
	captureDev  DeviceID
	playbackDev DeviceID
}

// NewSystem initializes the platform audio backend.
func NewSystem(log slog.Logger) (*System, error) {
	actx, err := newAudioContext()
	if err != nil {
		return nil, err
	}

	log.Infof("Initialized audio backend %s", actx.name())
	return &System{actx: actx, log: log}, nil
}

// Close releases all backend resources.
func (s *System) Close() error {
	return s.actx.free()
}

// SetCaptureDevice sets the capture device to use for recording. If empty,
// the system-wide default device is used.
func (s *System) SetCaptureDevice(devID DeviceID) {
	s.mtx.Lock()
	s.captureDev = devID
	s.mtx.Unlock()
	s.log.Infof("Setting capture device to %q", devID)
}

// CaptureDeviceID returns the ID of the device used for capturing mic data.
// If empty, the system-wide default device is used.
func (s *System) CaptureDeviceID() DeviceID {
	s.mtx.Lock()
	res := s.captureDev
	s.mtx.Unlock()
	return res
}

// SetPlaybackDevice sets the playback device to use for playing. If empty,
// the system-wide default device is used.
func (s *System) SetPlaybackDevice(devID DeviceID) {
	s.mtx.Lock()
	s.playbackDev = devID
	s.mtx.Unlock()
	s.log.Infof("Setting playback device to %q", devID)
}

// PlaybackDeviceID returns the ID of the device used for playing back audio
// data. If empty, the system-wide default device is used.
func (s *System) PlaybackDeviceID() DeviceID {
	s.mtx.Lock()
	res := s.playbackDev
	s.mtx.Unlock()
	return res
}

// CanRecord reports whether the capture backend can produce containers of
// the given mime type.
func (s *System) CanRecord(mime string) bool {
	switch mime {
	case MimeOggOpus:
		_, err := s.actx.newEncoder(sampleRate, channels)
		return err == nil
	case MimeWAV:
		// Raw PCM capture needs no codec.
		return true
	default:
		return false
	}
}
