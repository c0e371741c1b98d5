// spclient is a terminal voice memo recorder. It captures geotagged audio
// memos through the platform-adaptive capture pipeline and stores them
// locally for listing and playback.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundpin/soundpin/capture"
	"github.com/soundpin/soundpin/geotag"
	"github.com/soundpin/soundpin/internal/audio"
	"github.com/soundpin/soundpin/memodb"
)

// printDevices prints info about audio devices.
func printDevices(devices *audio.Devices) error {
	pf := func(format string, args ...interface{}) {
		fmt.Println(fmt.Sprintf(format, args...))
	}

	printDevice := func(i int, dev *audio.Device) {
		defaultStr := ""
		if dev.IsDefault {
			defaultStr = "(default) "
		}
		pf("  Device %d %s%s", i, defaultStr, dev.Name)
		pf("  ID: %x", dev.ID)
		pf("")
	}

	if len(devices.Capture) == 0 {
		pf("No audio capture devices found")
	} else {
		pf("Audio capture devices")
		pf("")
		for i := range devices.Capture {
			printDevice(i, &devices.Capture[i])
		}
	}

	if len(devices.Playback) == 0 {
		pf("No audio playback devices found")
	} else {
		pf("Audio playback devices")
		pf("")
		for i := range devices.Playback {
			printDevice(i, &devices.Playback[i])
		}
	}

	return nil
}

func realMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logBknd, err := newLogBackend(cfg.LogFile, cfg.DebugLevel, cfg.MaxLogFiles)
	if err != nil {
		return err
	}
	log := logBknd.logger("MAIN")

	devices, devErr := audio.ListAudioDevices(log)
	if cfg.ListDevices {
		if devErr != nil {
			return devErr
		}
		return printDevices(&devices)
	}

	audioSys, err := audio.NewSystem(logBknd.logger("ADIO"))
	if err != nil {
		return fmt.Errorf("unable to init audio backend: %w", err)
	}
	defer audioSys.Close()

	// Set devices.
	if cfg.CaptureDevice > -1 {
		if devErr != nil {
			return devErr
		}
		if cfg.CaptureDevice >= len(devices.Capture) {
			return fmt.Errorf("capture device %d not found (%d devices)",
				cfg.CaptureDevice, len(devices.Capture))
		}
		audioSys.SetCaptureDevice(devices.Capture[cfg.CaptureDevice].ID)
	}
	if cfg.PlaybackDevice > -1 {
		if devErr != nil {
			return devErr
		}
		if cfg.PlaybackDevice >= len(devices.Playback) {
			return fmt.Errorf("playback device %d not found (%d devices)",
				cfg.PlaybackDevice, len(devices.Playback))
		}
		audioSys.SetPlaybackDevice(devices.Playback[cfg.PlaybackDevice].ID)
	}

	db, err := memodb.New(filepath.Join(cfg.RootDir, "memos"),
		logBknd.logger("MMDB"))
	if err != nil {
		return err
	}

	var provider geotag.Provider
	switch {
	case cfg.GpsdAddr != "":
		provider = geotag.NewGpsd(cfg.GpsdAddr, logBknd.logger("GEOT"))
	case cfg.FixedLat != 0 || cfg.FixedLon != 0:
		provider = geotag.Fixed{Pos: geotag.Position{
			Lat: cfg.FixedLat,
			Lon: cfg.FixedLon,
		}}
	}

	var facility capture.Facility
	if cfg.RecorderHelper != "" {
		facility = capture.NewExecFacility(cfg.RecorderHelper,
			logBknd.logger("SESS"))
	}

	p := &player{
		sys: audioSys,
		cmd: cfg.PlayerCmd,
		log: logBknd.logger("ADIO"),
	}

	session := capture.NewSession(capture.Config{
		Store:    db,
		Backend:  capture.SystemBackend{System: audioSys},
		Facility: facility,
		Geotag:   provider,
		Playable: p.canPlay,
		OnElapsed: func(elapsed time.Duration) {
			fmt.Printf("\rrecording %5.1fs ", elapsed.Seconds())
		},
		Log: logBknd.logger("SESS"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	ctl, err := initAppCtl(session, db, p, log)
	if err != nil {
		return err
	}

	printHelp()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.run(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, errQuit) {
		err = nil
	}

	// Discard any capture still in flight.
	session.Abort()
	ctl.stopPlayback()

	return err
}

func main() {
	err := realMain()
	if err != nil && !errors.Is(err, errCmdDone) {
		fmt.Println("Error:", err.Error())
		os.Exit(1)
	}
}
