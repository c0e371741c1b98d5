//go:build cgo && !noaudio

package audio

import (
	"fmt"

	"github.com/companyzero/gopus"
	"github.com/decred/slog"

	"github.com/gen2brain/malgo"
)

func init() {
	newAudioContext = newMalgoContext
}

// toMalgo converts a sample format to the malgo equivalent.
func (f sampleFormat) toMalgo() malgo.FormatType {
	if f == formatF32 {
		return malgo.FormatF32
	}
	return malgo.FormatS16
}

// toMalgoDeviceId converts a device id to a malgo device id.
func (id DeviceID) toMalgoDeviceId() malgo.DeviceID {
	var res malgo.DeviceID
	copy(res[:], id)
	return res
}

func listMalgoDevices(typ malgo.DeviceType, malgoCtx *malgo.AllocatedContext, log slog.Logger) ([]Device, error) {
	devices, err := malgoCtx.Devices(typ)
	if err != nil {
		return nil, err
	}

	res := make([]Device, 0, len(devices))
	setIds := make(map[DeviceID]struct{}, len(devices))
	for _, dev := range devices {
		full, err := malgoCtx.DeviceInfo(typ, dev.ID, malgo.Shared)
		if err != nil {
			log.Warnf("Unable to get audio device info: %v", err)
			continue
		}

		// Avoid duplicate device IDs.
		id := DeviceID(string(append([]byte(nil), full.ID[:]...)))
		if _, ok := setIds[id]; ok {
			continue
		}
		setIds[id] = struct{}{}

		res = append(res, Device{
			ID:        id,
			Name:      full.Name(),
			IsDefault: full.IsDefault == 1,
		})
	}

	return res, nil
}

// ListAudioDevices lists available audio devices.
func ListAudioDevices(log slog.Logger) (Devices, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return Devices{}, err
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	playbackDevs, err := listMalgoDevices(malgo.Playback, malgoCtx, log)
	if err != nil {
		return Devices{}, err
	}
	captureDevs, err := listMalgoDevices(malgo.Capture, malgoCtx, log)
	if err != nil {
		return Devices{}, err
	}

	return Devices{
		Playback: playbackDevs,
		Capture:  captureDevs,
	}, nil
}

// FindDevice finds the device with the given ID or returns nil.
func FindDevice(typ DeviceType, id DeviceID) *Device {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	malgoDt := malgo.Capture
	if typ == DeviceTypePlayback {
		malgoDt = malgo.Playback
	}
	devices, err := listMalgoDevices(malgoDt, malgoCtx, slog.Disabled)
	if err != nil {
		return nil
	}

	for i := range devices {
		if devices[i].ID == id {
			out := new(Device)
			*out = devices[i]
			return out
		}
	}

	return nil
}

// malgoContext is an implementation of audioContext which offloads the work
// to the malgo library.
type malgoContext struct {
	malgoCtx *malgo.AllocatedContext
}

// emptyDeviceID is an empty malgo device id.
var emptyDeviceID malgo.DeviceID

// newMalgoContext creates a new audioContext using malgo.
func newMalgoContext() (audioContext, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	return &malgoContext{malgoCtx: malgoCtx}, nil
}

func (mpc *malgoContext) name() string {
	return "malgo"
}

func (mpc *malgoContext) free() error {
	if err := mpc.malgoCtx.Uninit(); err != nil {
		return err
	}
	mpc.malgoCtx.Free()
	return nil
}

// initCapture is part of the audioContext interface.
func (mpc *malgoContext) initCapture(deviceID DeviceID, format sampleFormat, cb dataProc) (captureDevice, error) {
	mf := format.toMalgo()

	// Sanity check.
	sampleSizeInBytes := malgo.SampleSizeInBytes(mf)
	if sampleSizeInBytes != format.sampleSize() {
		return nil, fmt.Errorf("malgo raw format has wrong sample size "+
			"(got %d, want %d)", sampleSizeInBytes, format.sampleSize())
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = sampleRate
	deviceConfig.PeriodSizeInMilliseconds = periodSizeMS
	malgoDeviceID := deviceID.toMalgoDeviceId()
	if malgoDeviceID != emptyDeviceID {
		deviceConfig.Capture.DeviceID = malgoDeviceID.Pointer()
	}
	deviceConfig.Capture.Format = mf
	deviceConfig.Capture.Channels = channels
	deviceConfig.Alsa.NoMMap = 1

	captureCallbacks := malgo.DeviceCallbacks{
		Data: malgo.DataProc(cb),
	}

	device, err := malgo.InitDevice(mpc.malgoCtx.Context, deviceConfig, captureCallbacks)
	if err != nil {
		return nil, err
	}
	return device, nil
}

// initPlayback is part of the audioContext interface.
func (mpc *malgoContext) initPlayback(deviceID DeviceID, cb dataProc) (playbackDevice, error) {
	mf := formatS16.toMalgo()

	// Sanity check.
	sampleSizeInBytes := malgo.SampleSizeInBytes(mf)
	if sampleSizeInBytes != formatS16.sampleSize() {
		return nil, fmt.Errorf("malgo raw format has wrong sample size "+
			"(got %d, want %d)", sampleSizeInBytes, formatS16.sampleSize())
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	malgoDeviceID := deviceID.toMalgoDeviceId()
	if malgoDeviceID != emptyDeviceID {
		deviceConfig.Playback.DeviceID = malgoDeviceID.Pointer()
	}
	deviceConfig.PeriodSizeInMilliseconds = periodSizeMS
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Playback.Format = mf
	deviceConfig.Playback.Channels = channels
	deviceConfig.Alsa.NoMMap = 1

	playbackCallbacks := malgo.DeviceCallbacks{
		Data: malgo.DataProc(cb),
	}

	device, err := malgo.InitDevice(mpc.malgoCtx.Context, deviceConfig, playbackCallbacks)
	if err != nil {
		return nil, err
	}
	return device, nil
}

func (mpc *malgoContext) newEncoder(sampleRate, channels int) (streamEncoder, error) {
	return gopus.NewEncoder(sampleRate, channels, gopus.Voip)
}

func (mpc *malgoContext) newDecoder(sampleRate, channels int) (streamDecoder, error) {
	return gopus.NewDecoder(sampleRate, channels)
}
