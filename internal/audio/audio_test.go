package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/decred/slog"
)

// errTestCodec is the error returned by test contexts configured without a
// working codec.
var errTestCodec = errors.New("test codec unavailable")

// testEncoder is a fake opus encoder that emits small, recognizable packets
// instead of actual opus data. The second byte is a 1-based packet counter.
type testEncoder struct {
	mtx   sync.Mutex
	count byte
}

func (e *testEncoder) Encode(pcm []int16, frameSize int, out []byte) ([]byte, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.count++
	return []byte{0xa5, e.count, byte(len(pcm)), byte(len(pcm) >> 8)}, nil
}

func (e *testEncoder) SetBitrate(rate int) {}

// testDecoder is a fake opus decoder that fills a full frame with the packet
// counter value of the fake encoder.
type testDecoder struct{}

func (d *testDecoder) Decode(data []byte, frameSize int, fec bool, out []int16) ([]int16, error) {
	if len(data) < 2 {
		return nil, errors.New("short test packet")
	}
	res := out[:frameSize]
	for i := range res {
		res[i] = int16(data[1])
	}
	return res, nil
}

// testDevice is a fake capture or playback device. Playback devices pump
// their data callback from a goroutine until uninited, mimicking the
// periodic delivery of a real backend.
type testDevice struct {
	startErr error
	pump     dataProc

	stopped  chan struct{}
	uninited chan struct{}

	stopOnce   sync.Once
	uninitOnce sync.Once
}

func newTestDevice() *testDevice {
	return &testDevice{
		stopped:  make(chan struct{}),
		uninited: make(chan struct{}),
	}
}

func (d *testDevice) Start() error {
	if d.startErr != nil {
		return d.startErr
	}
	if d.pump != nil {
		go func() {
			out := make([]byte, samplesPerPeriod*formatS16.sampleSize())
			for {
				select {
				case <-d.uninited:
					return
				default:
				}
				d.pump(out, nil, samplesPerPeriod)
				time.Sleep(time.Millisecond)
			}
		}()
	}
	return nil
}

func (d *testDevice) Stop() error {
	d.stopOnce.Do(func() { close(d.stopped) })
	return nil
}

func (d *testDevice) Uninit() {
	d.uninitOnce.Do(func() { close(d.uninited) })
}

// testAudioContext is a fake audioContext with injectable failures.
type testAudioContext struct {
	encErr      error
	decErr      error
	capInitErr  error
	playInitErr error

	captureCB     dataProc
	captureFormat sampleFormat
	captureDev    *testDevice
	playbackDev   *testDevice
}

func (tac *testAudioContext) name() string { return "testaudio" }
func (tac *testAudioContext) free() error  { return nil }

func (tac *testAudioContext) initCapture(_ DeviceID, format sampleFormat, cb dataProc) (captureDevice, error) {
	if tac.capInitErr != nil {
		return nil, tac.capInitErr
	}
	tac.captureCB = cb
	tac.captureFormat = format
	tac.captureDev = newTestDevice()
	return tac.captureDev, nil
}

func (tac *testAudioContext) initPlayback(_ DeviceID, cb dataProc) (playbackDevice, error) {
	if tac.playInitErr != nil {
		return nil, tac.playInitErr
	}
	dev := newTestDevice()
	dev.pump = cb
	tac.playbackDev = dev
	return dev, nil
}

func (tac *testAudioContext) newEncoder(sampleRate, channels int) (streamEncoder, error) {
	if tac.encErr != nil {
		return nil, tac.encErr
	}
	return &testEncoder{}, nil
}

func (tac *testAudioContext) newDecoder(sampleRate, channels int) (streamDecoder, error) {
	if tac.decErr != nil {
		return nil, tac.decErr
	}
	return &testDecoder{}, nil
}

// newTestSystem returns a System backed by a fake audio context.
func newTestSystem() (*System, *testAudioContext) {
	tac := &testAudioContext{}
	return &System{actx: tac, log: slog.Disabled}, tac
}

// pushS16Frame delivers one period worth of constant S16 samples through the
// capture callback.
func (tac *testAudioContext) pushS16Frame(v int16) {
	buf := make([]byte, samplesPerPeriod*formatS16.sampleSize())
	for i := 0; i < samplesPerPeriod; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	tac.captureCB(nil, buf, samplesPerPeriod)
}

// pushF32Frame delivers one period worth of constant F32 samples through the
// capture callback and returns the buffer so callers can mutate it to check
// copy semantics.
func (tac *testAudioContext) pushF32Frame(v float32) []byte {
	buf := make([]byte, samplesPerPeriod*formatF32.sampleSize())
	for i := 0; i < samplesPerPeriod; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	tac.captureCB(nil, buf, samplesPerPeriod)
	return buf
}
