package main

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

// run reads single keystrokes from stdin and dispatches them until the
// context is canceled, stdin fails or a command requests quitting.
func (ctl *appCtl) run(ctx context.Context) error {
	defer restoreTerminal(os.Stdin, ctl.oldTermios)
	b := make([]byte, 1)

	stdin := os.Stdin

	readChan := make(chan int, 10)
	errChan := make(chan error, 10)
	readNext := func() {
		n, err := stdin.Read(b)
		if err != nil {
			errChan <- err
		} else {
			readChan <- n
		}
	}

	for ctx.Err() == nil {
		go readNext()
		select {
		case n := <-readChan:
			if n == 0 {
				continue
			}

			if err := ctl.processInput(ctx, b[0]); err != nil {
				return err
			}

		case err := <-errChan:
			return err
		case <-ctx.Done():
			return nil
		}
	}

	return nil
}

func makeRaw(f *os.File) (*unix.Termios, error) {
	termios, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	if err != nil {
		return nil, err
	}

	oldTermios := *termios

	// Turn off ICANON (canonical mode) and ECHO
	termios.Lflag &^= unix.ICANON | unix.ECHO

	// Set minimum number of bytes for non-canonical read
	termios.Cc[unix.VMIN] = 1
	// Set timeout to 0 deciseconds
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, termios); err != nil {
		return nil, err
	}

	return &oldTermios, nil
}

func restoreTerminal(f *os.File, termios *unix.Termios) error {
	return unix.IoctlSetTermios(int(f.Fd()), unix.TCSETS, termios)
}
