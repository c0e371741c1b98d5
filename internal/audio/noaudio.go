//go:build !cgo || noaudio

// This audio context is only used in cgo-less and noaudio builds.

package audio

import (
	"errors"

	"github.com/decred/slog"
)

func init() {
	newAudioContext = newNullAudioContext
}

var errAudioDisabledCompilation = errors.New("audio was disabled during compilation")

type nullAudioContext struct{}

func newNullAudioContext() (audioContext, error) {
	return nullAudioContext{}, nil
}

func (_ nullAudioContext) name() string { return "nullaudio" }

func (_ nullAudioContext) free() error { return nil }

func (_ nullAudioContext) initCapture(deviceID DeviceID, format sampleFormat, cb dataProc) (captureDevice, error) {
	return nil, errAudioDisabledCompilation
}

func (_ nullAudioContext) initPlayback(deviceID DeviceID, cb dataProc) (playbackDevice, error) {
	return nil, errAudioDisabledCompilation
}

func (_ nullAudioContext) newEncoder(sampleRate, channels int) (streamEncoder, error) {
	return nil, errAudioDisabledCompilation
}

func (_ nullAudioContext) newDecoder(sampleRate, channels int) (streamDecoder, error) {
	return nil, errAudioDisabledCompilation
}

func ListAudioDevices(log slog.Logger) (Devices, error) {
	return Devices{}, errAudioDisabledCompilation
}

func FindDevice(typ DeviceType, id DeviceID) *Device { return nil }
