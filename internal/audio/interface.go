package audio

// Sample pipeline parameters. These must be agreed upon between capture,
// encoding and playback.
const (
	// sampleRate must be agreed everywhere.
	sampleRate = 48000

	// channels must be agreed everywhere.
	channels = 1

	// periodSizeMS is the captured frame size in milliseconds.
	periodSizeMS = 20

	// encodeBitRate is the bitrate (in bps) to use as opus encoder output.
	encodeBitRate = 40000

	// samplesPerPeriod is the number of PCM samples delivered in one
	// capture or playback period.
	samplesPerPeriod = sampleRate / 1000 * periodSizeMS
)

// DeviceID identifies an audio device of the underlying backend.
type DeviceID string

type DeviceType string

const (
	DeviceTypeCapture  DeviceType = "capture"
	DeviceTypePlayback DeviceType = "playback"
)

type Device struct {
	ID        DeviceID `json:"id"`
	Name      string   `json:"name"`
	IsDefault bool     `json:"is_default"`
}

type Devices struct {
	Playback []Device `json:"playback"`
	Capture  []Device `json:"capture"`
}

// RecordInfo is the information about a finished capture.
type RecordInfo struct {
	SampleCount int `json:"sample_count"`
	DurationMs  int `json:"duration_ms"`
	EncodedSize int `json:"encoded_size"`
	PacketCount int `json:"packet_count"`
}

// sampleFormat is the raw in-memory representation of captured samples.
type sampleFormat int

const (
	formatS16 sampleFormat = iota // signed 16-bit, little endian
	formatF32                     // IEEE 754 32-bit float, little endian
)

// sampleSize returns the size in bytes of one sample in this format.
func (f sampleFormat) sampleSize() int {
	if f == formatF32 {
		return 4
	}
	return 2
}

// dataProc is invoked by the audio backend with successive fixed-size sample
// blocks. Implementations must copy any data they want to keep and return
// immediately, as the backend may reuse the underlying buffers.
type dataProc func(outSamples, inSamples []byte, frameCount uint32)

type captureDevice interface {
	Start() error
	Stop() error
	Uninit()
}

type playbackDevice interface {
	Start() error
	Stop() error
	Uninit()
}

type streamEncoder interface {
	Encode(pcm []int16, frameSize int, out []byte) ([]byte, error)
	SetBitrate(rate int)
}

type streamDecoder interface {
	Decode(data []byte, frameSize int, fec bool, out []int16) ([]int16, error)
}

// audioContext abstracts the platform audio backend.
type audioContext interface {
	name() string
	free() error
	initCapture(deviceID DeviceID, format sampleFormat, cb dataProc) (captureDevice, error)
	initPlayback(deviceID DeviceID, cb dataProc) (playbackDevice, error)
	newEncoder(sampleRate, channels int) (streamEncoder, error)
	newDecoder(sampleRate, channels int) (streamDecoder, error)
}

// newAudioContext creates the platform audio context. It is set by the
// conditionally compiled backend implementations.
var newAudioContext func() (audioContext, error)
