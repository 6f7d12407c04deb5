//go:build !windows

package ptybridge

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Session is the part of a connection session the bridge needs.
type Session interface {
	Send(data []byte) error
	SetReceiveTap(fn func([]byte))
}

// Options configure a Bridge.
type Options struct {
	// BufferSize is the capacity of the device → terminal ring.
	BufferSize  int           `default:"65536"`
	PollTimeout time.Duration `default:"50ms"`
	// Symlink, when set, is created pointing at the terminal and removed on Close.
	Symlink string
}

// Stats are bridge counters.
type Stats struct {
	Terminal   TerminalStats
	SendErrors uint64
}

// Bridge forwards bytes between a session and a pseudo-terminal.
type Bridge struct {
	session  Session
	terminal *Terminal
	logger   *logrus.Logger
	symlink  string

	sendErrors atomic.Uint64
}

// New opens a terminal and connects it to sess. Device data reaches the terminal through
// the session's receive tap, which the bridge owns until Close.
func New(sess Session, opts Options, logger *logrus.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logrus.New()
	}
	defaults.SetDefaults(&opts)

	b := &Bridge{session: sess, logger: logger}

	term, err := openTerminal(opts.BufferSize, opts.PollTimeout, b.forwardInput, logger)
	if err != nil {
		return nil, err
	}
	b.terminal = term

	if opts.Symlink != "" {
		if err := replaceSymlink(term.Name(), opts.Symlink); err != nil {
			_ = term.Close()
			return nil, err
		}
		b.symlink = opts.Symlink
	}

	sess.SetReceiveTap(func(data []byte) {
		if _, err := term.Write(data); err != nil {
			logger.WithError(err).Debug("Dropping device data for closed terminal")
		}
	})

	logger.WithFields(logrus.Fields{
		"tty":     term.Name(),
		"symlink": b.symlink,
	}).Info("Bridge started")
	return b, nil
}

// replaceSymlink points link at target, replacing an existing symlink but never a
// regular file.
func replaceSymlink(target, link string) error {
	if fi, err := os.Lstat(link); err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("refusing to replace %s: not a symlink", link)
		}
		if err := os.Remove(link); err != nil {
			return fmt.Errorf("failed to remove stale symlink %s: %w", link, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to inspect %s: %w", link, err)
	}

	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("failed to create symlink %s -> %s: %w", link, target, err)
	}
	return nil
}

func (b *Bridge) forwardInput(data []byte) {
	if err := b.session.Send(data); err != nil {
		b.sendErrors.Add(1)
		b.logger.WithError(err).Warn("Failed to forward terminal input to device")
	}
}

// TTYName returns the terminal device path.
func (b *Bridge) TTYName() string {
	return b.terminal.Name()
}

// Symlink returns the symlink path, or "" when none was requested.
func (b *Bridge) Symlink() string {
	return b.symlink
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Terminal:   b.terminal.Stats(),
		SendErrors: b.sendErrors.Load(),
	}
}

// Close detaches from the session, removes the symlink and closes the terminal.
// The session itself stays open.
func (b *Bridge) Close() error {
	b.session.SetReceiveTap(nil)

	var errs []error
	if b.symlink != "" {
		if err := os.Remove(b.symlink); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove symlink %s: %w", b.symlink, err))
		}
	}
	if err := b.terminal.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
