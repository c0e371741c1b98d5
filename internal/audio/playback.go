package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// CanPlay reports whether the local playback engine can render containers of
// the given mime type.
func (s *System) CanPlay(mime string) bool {
	switch mime {
	case MimeOggOpus:
		_, err := s.actx.newDecoder(sampleRate, channels)
		return err == nil
	case MimeWAV:
		// Raw PCM playback needs no codec.
		return true
	default:
		return false
	}
}

// PlayFile decodes and plays a stored payload on the configured playback
// device, blocking until playback finishes or ctx is canceled.
func (s *System) PlayFile(ctx context.Context, path, mime string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read payload: %w", err)
	}

	switch mime {
	case MimeOggOpus:
		return s.playOpus(ctx, data)
	case MimeWAV:
		return s.playWAV(ctx, data)
	default:
		return fmt.Errorf("no local decoder for %q", mime)
	}
}

// playOpus decodes all opus packets of an opusfile up front (memos are
// short) and streams the decoded frames to the playback device.
func (s *System) playOpus(ctx context.Context, data []byte) error {
	packets, err := opusPacketsFromOgg(data)
	if err != nil {
		return err
	}
	decoder, err := s.actx.newDecoder(sampleRate, channels)
	if err != nil {
		return err
	}

	frames := make(chan []byte, len(packets)+1)
	decodeBuffer := make([]int16, samplesPerPeriod*channels*2)
	for _, p := range packets {
		decoded, err := decoder.Decode(p, samplesPerPeriod, false, decodeBuffer)
		if err != nil {
			return err
		}
		frames <- leS16SliceToBytes(decoded, make([]byte, 0, len(decoded)*2))
	}
	frames <- nil

	s.log.Debugf("Playing back %d opus packets", len(packets))
	return s.playFrames(ctx, frames)
}

// playWAV streams the PCM samples of a WAVE container to the playback
// device in period-sized frames.
func (s *System) playWAV(ctx context.Context, data []byte) error {
	rate, pcm, err := parseWAV(data)
	if err != nil {
		return err
	}
	if rate != sampleRate {
		// No resampling support; only our own capture rate plays.
		return fmt.Errorf("unsupported wav sample rate %d", rate)
	}

	frameBytes := samplesPerPeriod * formatS16.sampleSize()
	frames := make(chan []byte, len(pcm)/frameBytes+2)
	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		// The last frame is zero-padded to a full period.
		frame := make([]byte, frameBytes)
		copy(frame, pcm[off:end])
		frames <- frame
	}
	frames <- nil

	s.log.Debugf("Playing back %d PCM bytes", len(pcm))
	return s.playFrames(ctx, frames)
}

// playFrames feeds period-sized S16 frames to a playback device until a nil
// frame is received.
func (s *System) playFrames(ctx context.Context, frames chan []byte) error {
	playbackDone := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(playbackDone) }) }

	onSendFrames := func(outSamples, _ []byte, frameCount uint32) {
		bytesToRead := int(frameCount) * channels * formatS16.sampleSize()
		if len(outSamples) < bytesToRead {
			s.log.Warnf("Buffer size %d is smaller than read size %d",
				len(outSamples), bytesToRead)
		}

		select {
		case frame := <-frames:
			if frame == nil {
				finish()
				return
			}
			copy(outSamples, frame)
		case <-playbackDone:
		case <-ctx.Done():
		}
	}

	device, err := s.actx.initPlayback(s.PlaybackDeviceID(), onSendFrames)
	if err != nil {
		return err
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return err
	}

	select {
	case <-ctx.Done():
		// Stop playback immediately.
		device.Uninit()
		return ctx.Err()
	case <-playbackDone:
		// Let the last buffered period drain.
		time.Sleep(time.Millisecond * periodSizeMS)
	}

	device.Uninit()
	return nil
}
