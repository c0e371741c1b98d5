package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// ErrNoCapturedData is returned when a capture finished without producing
// any sample data.
var ErrNoCapturedData = errors.New("captured no data")

// encodedFunc processes captured and opus-encoded packets.
type encodedFunc func(data []byte, timestamp uint32) error

// opusCaptureStream captures S16 samples from an input device and
// opus-encodes them in a dedicated goroutine. The device callback only
// copies samples into the encode pipeline and returns.
type opusCaptureStream struct {
	log          slog.Logger
	audioCtx     audioContext
	int16Buffers sync.Pool
	encodeChan   chan []int16
	sendingDone  chan struct{}
	captureDone  chan struct{}
	encodedFunc  encodedFunc
	frames       int
	recInfo      RecordInfo
	runErr       error
}

func newOpusCaptureStream(actx audioContext, f encodedFunc, log slog.Logger) *opusCaptureStream {
	return &opusCaptureStream{
		log:         log,
		audioCtx:    actx,
		encodeChan:  make(chan []int16, 1000/periodSizeMS), // Buffer 1 second
		sendingDone: make(chan struct{}),
		captureDone: make(chan struct{}),
		encodedFunc: f,
		int16Buffers: sync.Pool{New: func() interface{} {
			return make([]int16, 0, samplesPerPeriod)
		}},
	}
}

// onCapturedFrames is the device data callback. It copies the delivered
// block into a pooled buffer and hands it to the encode loop without ever
// blocking on a finished stream.
func (cs *opusCaptureStream) onCapturedFrames(_, inSamples []byte, frameCount uint32) {
	readSize := int(frameCount) * formatS16.sampleSize()
	if len(inSamples) < readSize {
		cs.log.Warnf("inSamples buffer has len %d when expected %d",
			len(inSamples), readSize)
		readSize = len(inSamples)
	}
	buf := cs.int16Buffers.Get().([]int16)
	samples := bytesToLES16Slice(inSamples[:readSize], buf)
	cs.frames++

	// Double check sending hasn't finished first.
	select {
	case <-cs.sendingDone:
		return
	default:
	}

	// Send to encode loop.
	select {
	case cs.encodeChan <- samples:
	case <-cs.sendingDone:
	}
}

// captureLoop waits until capture is canceled, then tears down the device
// and signals the encode loop that no further samples will arrive.
func (cs *opusCaptureStream) captureLoop(ctx context.Context, device captureDevice) error {
	<-ctx.Done()

	stopErr := device.Stop()
	device.Uninit()

	// Wait for some time for any outstanding callback to be executed.
	time.Sleep(time.Millisecond * time.Duration(periodSizeMS) * 2)

	close(cs.sendingDone)

	if stopErr != nil {
		return stopErr
	}
	if cs.frames == 0 {
		return ErrNoCapturedData
	}
	return nil
}

// encodeLoop opus-encodes raw samples copied in by the device callback. It
// exits after draining any samples still queued when capture finishes.
func (cs *opusCaptureStream) encodeLoop() error {
	encoder, err := cs.audioCtx.newEncoder(sampleRate, channels)
	if err != nil {
		return err
	}
	encoder.SetBitrate(encodeBitRate)

	cs.log.Debug("Starting encode loop")

	var encodeBuffer = make([]byte, 64*1024)
	var encodedSize, inputSamples, packetCount int
	var timestamp uint32

	encodePacket := func(samples []int16) error {
		if len(samples) != samplesPerPeriod {
			cs.log.Warnf("Wrong len of samples to encode "+
				"(want %d, got %d)", samplesPerPeriod,
				len(samples))
		}
		encoded, err := encoder.Encode(samples, len(samples), encodeBuffer)
		if err != nil {
			return err
		}
		if err := cs.encodedFunc(encoded, timestamp); err != nil {
			return err
		}

		timestamp += periodSizeMS
		packetCount++
		inputSamples += len(samples)
		encodedSize += len(encoded)

		cs.int16Buffers.Put(samples[:0])
		return nil
	}

nextPacket:
	for {
		select {
		case samples := <-cs.encodeChan:
			if err := encodePacket(samples); err != nil {
				return err
			}

		case <-cs.sendingDone:
			// Drain whatever the callback already queued.
			for {
				select {
				case samples := <-cs.encodeChan:
					if err := encodePacket(samples); err != nil {
						return err
					}
				default:
					break nextPacket
				}
			}
		}
	}

	cs.log.Debugf("Finished encoding loop: %d samples, %d opus packets "+
		"(%d out size)", inputSamples, packetCount, encodedSize)

	cs.recInfo = RecordInfo{
		SampleCount: inputSamples,
		DurationMs:  packetCount * periodSizeMS,
		EncodedSize: encodedSize,
		PacketCount: packetCount,
	}
	return nil
}

func (cs *opusCaptureStream) run(ctx context.Context, device captureDevice) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cs.captureLoop(gctx, device) })
	g.Go(func() error { return cs.encodeLoop() })
	cs.runErr = g.Wait()
	close(cs.captureDone)
}

// OpusFileCapture is an in-progress compressed capture accumulating opus
// packets until finalized into an ogg container.
type OpusFileCapture struct {
	cs      *opusCaptureStream
	cancel  func()
	packets [][]byte
}

// CaptureOpusFile starts a compressed capture on the configured capture
// device. It fails fast when the device or the opus encoder is unavailable.
func (s *System) CaptureOpusFile(ctx context.Context) (*OpusFileCapture, error) {
	if _, err := s.actx.newEncoder(sampleRate, channels); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &OpusFileCapture{cancel: cancel}
	cs := newOpusCaptureStream(s.actx, func(data []byte, _ uint32) error {
		// Store a copy of the encoded data.
		c.packets = append(c.packets, append([]byte(nil), data...))
		return nil
	}, s.log)

	device, err := s.actx.initCapture(s.CaptureDeviceID(), formatS16, cs.onCapturedFrames)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := device.Start(); err != nil {
		cancel()
		device.Uninit()
		return nil, err
	}

	s.log.Debug("Started compressed capture")
	c.cs = cs
	go cs.run(ctx, device)
	return c, nil
}

// Finalize stops the capture and assembles the accumulated packets into an
// opusfile. The returned duration is the one derived from the encoded packet
// count.
func (c *OpusFileCapture) Finalize(ctx context.Context) ([]byte, int, error) {
	c.cancel()
	select {
	case <-c.cs.captureDone:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	if err := c.cs.runErr; err != nil && !errors.Is(err, context.Canceled) {
		return nil, 0, err
	}

	if len(c.packets) == 0 {
		return nil, 0, ErrNoCapturedData
	}
	data, err := EncodeOpusFile(c.packets)
	if err != nil {
		return nil, 0, err
	}
	return data, c.cs.recInfo.DurationMs, nil
}

// Abort stops the capture and discards any accumulated data.
func (c *OpusFileCapture) Abort() {
	c.cancel()
	<-c.cs.captureDone
}

// RawCapture is an in-progress uncompressed capture. The device callback
// copies each delivered float sample block into the accumulation buffer;
// the samples are only consumed at finalize time.
type RawCapture struct {
	log         slog.Logger
	cancel      func()
	blockChan   chan []float32
	sendingDone chan struct{}
	captureDone chan struct{}
	frames      int
	blocks      [][]float32
	sampleCount int
	runErr      error
}

// CaptureWAV starts an uncompressed capture on the configured capture
// device. This is the last-resort path and only requires raw sample access.
func (s *System) CaptureWAV(ctx context.Context) (*RawCapture, error) {
	ctx, cancel := context.WithCancel(ctx)
	rc := &RawCapture{
		log:         s.log,
		cancel:      cancel,
		blockChan:   make(chan []float32, 1000/periodSizeMS), // Buffer 1 second
		sendingDone: make(chan struct{}),
		captureDone: make(chan struct{}),
	}

	device, err := s.actx.initCapture(s.CaptureDeviceID(), formatF32, rc.onCapturedFrames)
	if err != nil {
		cancel()
		return nil, err
	}
	if err := device.Start(); err != nil {
		cancel()
		device.Uninit()
		return nil, err
	}

	s.log.Debug("Started raw capture")
	go rc.run(ctx, device)
	return rc, nil
}

// onCapturedFrames copies the delivered block and queues it for
// accumulation. It never blocks and never performs I/O.
func (rc *RawCapture) onCapturedFrames(_, inSamples []byte, frameCount uint32) {
	readSize := int(frameCount) * formatF32.sampleSize()
	if len(inSamples) < readSize {
		rc.log.Warnf("inSamples buffer has len %d when expected %d",
			len(inSamples), readSize)
		readSize = len(inSamples)
	}
	block := bytesToLEF32Slice(inSamples[:readSize], make([]float32, 0, frameCount))
	rc.frames++

	select {
	case <-rc.sendingDone:
		return
	default:
	}

	select {
	case rc.blockChan <- block:
	case <-rc.sendingDone:
	}
}

func (rc *RawCapture) accumLoop() error {
	appendBlock := func(b []float32) {
		rc.blocks = append(rc.blocks, b)
		rc.sampleCount += len(b)
	}

	for {
		select {
		case b := <-rc.blockChan:
			appendBlock(b)
		case <-rc.sendingDone:
			for {
				select {
				case b := <-rc.blockChan:
					appendBlock(b)
				default:
					return nil
				}
			}
		}
	}
}

func (rc *RawCapture) captureLoop(ctx context.Context, device captureDevice) error {
	<-ctx.Done()

	stopErr := device.Stop()
	device.Uninit()

	// Wait for some time for any outstanding callback to be executed.
	time.Sleep(time.Millisecond * time.Duration(periodSizeMS) * 2)

	close(rc.sendingDone)

	if stopErr != nil {
		return stopErr
	}
	if rc.frames == 0 {
		return ErrNoCapturedData
	}
	return nil
}

func (rc *RawCapture) run(ctx context.Context, device captureDevice) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rc.captureLoop(gctx, device) })
	g.Go(rc.accumLoop)
	rc.runErr = g.Wait()
	close(rc.captureDone)
}

// Finalize stops the capture and encodes the accumulated sample blocks into
// a WAVE container. The raw path has no backend-reported duration, so the
// returned duration is always zero and callers must use their own measured
// elapsed time.
func (rc *RawCapture) Finalize(ctx context.Context) ([]byte, int, error) {
	rc.cancel()
	select {
	case <-rc.captureDone:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	if err := rc.runErr; err != nil && !errors.Is(err, context.Canceled) {
		return nil, 0, err
	}
	if rc.sampleCount == 0 {
		return nil, 0, ErrNoCapturedData
	}

	rc.log.Debugf("Encoding %d raw samples (%d blocks) as WAVE",
		rc.sampleCount, len(rc.blocks))
	return EncodeWAV(rc.blocks, sampleRate), 0, nil
}

// Abort stops the capture and discards any accumulated data.
func (rc *RawCapture) Abort() {
	rc.cancel()
	<-rc.captureDone
}
