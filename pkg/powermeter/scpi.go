// Package powermeter drives an RF power meter speaking SCPI over a serial line.
package powermeter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	cmdMeasure    = "MEAS?"
	cmdContinuous = "INIT:CONT ON"
	cmdOpComplete = "*OPC?"
)

var (
	// ErrClosed is returned once the port has been closed or the read side failed.
	ErrClosed = errors.New("power meter connection closed")
)

// SCPI is a line-oriented SCPI connection. A reader goroutine pumps reply lines
// into a channel so a read can be abandoned when its context expires.
type SCPI struct {
	port io.ReadWriteCloser

	// mu serializes command/reply exchanges.
	mu    sync.Mutex
	lines chan string
	// unsynced is set when a reply was abandoned; the next exchange resyncs first.
	unsynced bool
	// opcPending counts *OPC? queries whose reply has not been seen.
	opcPending int

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an open port.
func New(port io.ReadWriteCloser) *SCPI {
	p := &SCPI{
		port:   port,
		lines:  make(chan string, 16),
		closed: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *SCPI) readLoop() {
	defer close(p.lines)

	scanner := bufio.NewScanner(p.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case p.lines <- line:
		case <-p.closed:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logrus.WithError(err).Warn("power meter read loop stopped")
	}
}

// drain discards replies that arrived after their reader gave up on them.
func (p *SCPI) drain() {
	for {
		select {
		case l, ok := <-p.lines:
			if !ok {
				return
			}
			logrus.WithField("reply", l).Debug("discarding stale power meter reply")
		default:
			return
		}
	}
}

// Write sends one command that has no reply.
func (p *SCPI) Write(ctx context.Context, cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(ctx, cmd)
}

func (p *SCPI) write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logrus.WithField("cmd", cmd).Trace("power meter command")
	if _, err := io.WriteString(p.port, cmd+"\n"); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %q", cmd)
	}
	return nil
}

// Cmd sends cmd and waits for its reply line until ctx expires. After an abandoned
// reply the meter is resynchronized first, so a late answer cannot be taken for the
// reply to cmd.
func (p *SCPI) Cmd(ctx context.Context, cmd string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.drain()
	if p.unsynced {
		if err := p.resync(ctx); err != nil {
			return "", err
		}
	}
	if err := p.write(ctx, cmd); err != nil {
		return "", err
	}

	line, err := p.readLine(ctx)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return "", err
		}
		p.unsynced = true
		return "", pkgerrors.Wrapf(err, "no reply to %q", cmd)
	}
	return line, nil
}

func (p *SCPI) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", ErrClosed
		}
		return line, nil
	}
}

// resync sends an operation-complete query and discards every line up to its
// answer, including answers to earlier queries that also went unseen.
func (p *SCPI) resync(ctx context.Context) error {
	if err := p.write(ctx, cmdOpComplete); err != nil {
		return err
	}
	p.opcPending++

	for p.opcPending > 0 {
		line, err := p.readLine(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			return pkgerrors.Wrap(err, "failed to resynchronize with power meter")
		}
		if line == "1" || line == "+1" {
			p.opcPending--
			continue
		}
		logrus.WithField("reply", line).Debug("discarding stale power meter reply")
	}
	p.unsynced = false
	logrus.Debug("power meter resynchronized")
	return nil
}

// Query triggers one measurement and returns the raw reply.
func (p *SCPI) Query(ctx context.Context) (string, error) {
	return p.Cmd(ctx, cmdMeasure)
}

// Reset puts the meter back into free-running mode.
func (p *SCPI) Reset(ctx context.Context) error {
	return p.Write(ctx, cmdContinuous)
}

func (p *SCPI) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.port.Close()
	})
	return err
}
