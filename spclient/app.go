package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/decred/slog"
	"golang.org/x/sys/unix"

	"github.com/soundpin/soundpin/capture"
	"github.com/soundpin/soundpin/memodb"
)

// errQuit signals a user-requested clean shutdown.
var errQuit = errors.New("quit requested")

// appCtl drives the capture session and playback from single-key commands.
type appCtl struct {
	oldTermios *unix.Termios
	session    *capture.Session
	db         *memodb.DB
	player     *player
	log        slog.Logger

	playMtx    sync.Mutex
	playCancel func()
}

func initAppCtl(session *capture.Session, db *memodb.DB, p *player,
	log slog.Logger) (*appCtl, error) {

	oldTermios, err := makeRaw(os.Stdin)
	if err != nil {
		return nil, err
	}
	return &appCtl{
		oldTermios: oldTermios,
		session:    session,
		db:         db,
		player:     p,
		log:        log,
	}, nil
}

func printHelp() {
	fmt.Println("keys: r record, s stop and save, a abort, l list, " +
		"p play newest, 0-9 play memo, x stop playback, q quit")
}

func (ctl *appCtl) listRecords() {
	recs := ctl.db.List()
	if len(recs) == 0 {
		fmt.Println("no memos recorded yet")
		return
	}
	for i, rec := range recs {
		loc := "unlocated"
		if rec.HasLocation() {
			loc = fmt.Sprintf("%.5f,%.5f", rec.Lat, rec.Lon)
		}
		fmt.Printf("%2d: %s  %5.1fs  %-9s  %s\n", i, rec.Label,
			float64(rec.DurationMs)/1000, rec.MimeType, loc)
	}
}

// playRecord plays rec in the background, interrupting any playback already
// in progress.
func (ctl *appCtl) playRecord(ctx context.Context, rec memodb.Record) {
	ctl.playMtx.Lock()
	if ctl.playCancel != nil {
		ctl.playCancel()
	}
	pctx, cancel := context.WithCancel(ctx)
	ctl.playCancel = cancel
	ctl.playMtx.Unlock()

	go func() {
		defer cancel()
		err := ctl.player.play(pctx, ctl.db.PlayablePath(rec), rec.MimeType)
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Printf("\nplay failed: %v\n", err)
		}
	}()
}

func (ctl *appCtl) stopPlayback() {
	ctl.playMtx.Lock()
	if ctl.playCancel != nil {
		ctl.playCancel()
		ctl.playCancel = nil
	}
	ctl.playMtx.Unlock()
}

func (ctl *appCtl) processInput(ctx context.Context, b byte) error {
	switch {
	case b == 'r':
		// Start may block on the location snapshot; keep the input
		// loop responsive.
		go func() {
			if err := ctl.session.Start(ctx); err != nil {
				fmt.Printf("\nstart failed: %v\n", err)
			}
		}()

	case b == 's':
		go func() {
			rec, err := ctl.session.Stop(ctx)
			if err != nil {
				fmt.Printf("\nstop failed: %v\n", err)
				return
			}
			fmt.Printf("\nsaved %s (%s, %.1fs)\n", rec.Label,
				rec.MimeType, float64(rec.DurationMs)/1000)
		}()

	case b == 'a':
		ctl.session.Abort()

	case b == 'l':
		ctl.listRecords()

	case b == 'p':
		recs := ctl.db.List()
		if len(recs) == 0 {
			fmt.Println("no memos recorded yet")
			return nil
		}
		ctl.playRecord(ctx, recs[0])

	case b >= '0' && b <= '9':
		recs := ctl.db.List()
		i := int(b - '0')
		if i >= len(recs) {
			fmt.Printf("no memo %d\n", i)
			return nil
		}
		ctl.playRecord(ctx, recs[i])

	case b == 'x':
		ctl.stopPlayback()

	case b == 'q':
		return errQuit

	case b == 'h', b == '?':
		printHelp()
	}

	return nil
}
