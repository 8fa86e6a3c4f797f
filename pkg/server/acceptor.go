package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/decred/slog"
)

// acceptBackoff spaces out retries after a failed Accept. Errors like
// fd exhaustion persist for a while, and retrying immediately just
// spins on them.
const acceptBackoff = 100 * time.Millisecond

// Acceptor owns the sensor TCP listener. Every accepted connection gets
// its own SensorSession served on a dedicated goroutine; when the session
// ends the pool is told so it can re-pool or park the sensor.
type Acceptor struct {
	log      slog.Logger
	pool     *SensorPool
	timings  SessionTimings
	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewAcceptor wires an acceptor to the pool that will own its sessions.
func NewAcceptor(pool *SensorPool, log slog.Logger, timings SessionTimings) *Acceptor {
	if log == nil {
		log = slog.Disabled
	}
	return &Acceptor{
		log:     log,
		pool:    pool,
		timings: timings,
		quit:    make(chan struct{}),
	}
}

// Listen binds the sensor port. Run must be called afterwards to start
// accepting; splitting the two lets callers learn the bound address (and
// fail fast on a busy port) before the serve loop spins up.
func (a *Acceptor) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.listener = l
	a.log.Infof("Sensor listener bound on %s", l.Addr())
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (a *Acceptor) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Run accepts sensor connections until the context is canceled or the
// listener is closed. It only returns once every session goroutine has
// finished.
func (a *Acceptor) Run(ctx context.Context) error {
	if a.listener == nil {
		if err := a.Listen(":0"); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock Accept when the context ends.
	go func() {
		select {
		case <-ctx.Done():
		case <-a.quit:
		}
		a.listener.Close()
	}()

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			case <-a.quit:
			default:
				a.log.Errorf("Accept failed: %v", err)
				select {
				case <-time.After(acceptBackoff):
					continue
				case <-ctx.Done():
				case <-a.quit:
				}
			}
			break
		}

		a.log.Debugf("Sensor connected from %s", conn.RemoteAddr())
		sess := NewSensorSession(conn, a.pool, a.log, a.timings)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			sess.Serve(ctx)
			a.pool.OnDisconnect(sess)
		}()
	}

	cancel()
	a.wg.Wait()
	return nil
}

// Stop closes the listener and lets Run wind down its sessions.
func (a *Acceptor) Stop() {
	select {
	case <-a.quit:
	default:
		close(a.quit)
	}
}
