package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/decred/slog"

	"github.com/soundpin/soundpin/internal/audio"
)

// player renders stored memos: natively for containers the local engine
// decodes, through an external player command otherwise. Its canPlay is the
// playability predicate fed to the capture session, so the session never
// persists a payload this player cannot render.
type player struct {
	sys *audio.System
	cmd string
	log slog.Logger
}

func (p *player) canPlay(mime string) bool {
	if p.sys.CanPlay(mime) {
		return true
	}
	return p.cmd != ""
}

func (p *player) play(ctx context.Context, path, mime string) error {
	if p.sys.CanPlay(mime) {
		return p.sys.PlayFile(ctx, path, mime)
	}
	if p.cmd == "" {
		return fmt.Errorf("no player available for %q", mime)
	}

	p.log.Debugf("Playing %s through %s", path, p.cmd)
	return exec.CommandContext(ctx, p.cmd, path).Run()
}
