// Package daemon runs the main event loop: poll the netlink ingestor,
// decode each event into a Device, and dispatch rule matching and
// action execution to a worker pool.
package daemon

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sys/unix"

	"github.com/smazurov/udevd/internal/actions"
	"github.com/smazurov/udevd/internal/device"
	"github.com/smazurov/udevd/internal/metrics"
	"github.com/smazurov/udevd/internal/netlink"
	"github.com/smazurov/udevd/internal/rules"
)

// pollTimeout bounds how long the main loop waits for readiness on
// the netlink descriptor before checking for shutdown.
const pollTimeout = 100 * time.Millisecond

// Daemon owns the netlink ingestor, the rule manager, the action
// executor, and a worker pool that processes events concurrently.
type Daemon struct {
	ingestor *netlink.Ingestor
	rules    *rules.Manager
	executor *actions.Executor
	logger   *slog.Logger
	workers  int
	// RequireUSB mirrors the reference implementation's event filter:
	// only devices reporting DEVTYPE=usb_device are dispatched to the
	// rule chain. Disabled by default; set true to match that filter.
	RequireUSB bool
}

// New wires a Daemon from its already-constructed collaborators.
func New(ingestor *netlink.Ingestor, ruleManager *rules.Manager, executor *actions.Executor, workers int, logger *slog.Logger) *Daemon {
	if workers < 1 {
		workers = 1
	}
	return &Daemon{
		ingestor: ingestor,
		rules:    ruleManager,
		executor: executor,
		logger:   logger,
		workers:  workers,
	}
}

// Run blocks, polling the ingestor and dispatching one task per event
// to the worker pool, until stop is closed.
func (d *Daemon) Run(stop <-chan struct{}) error {
	p := pool.New().WithMaxGoroutines(d.workers)
	defer p.Wait()

	fd := d.ingestor.Fd()

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		ready, err := pollReadable(fd, pollTimeout)
		if err != nil {
			d.logger.Warn("poll error", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if !ready {
			continue
		}

		props, err := d.ingestor.Receive()
		if err != nil {
			if errors.Is(err, netlink.ErrWouldBlock) {
				continue
			}
			return err
		}

		dev, ok := device.FromProperties(props)
		if !ok {
			d.logger.Warn("dropping malformed event, missing required property")
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			continue
		}
		metrics.EventsReceived.Inc()

		snapshot := d.rules.Snapshot()
		requireUSB := d.RequireUSB

		p.Go(func() {
			d.processEvent(dev, snapshot, requireUSB)
		})
	}
}

// processEvent runs on a worker goroutine: applies the daemon's event
// filter, walks the rule snapshot in order, and executes the first
// match's actions.
func (d *Daemon) processEvent(dev device.Device, snapshot rules.List, requireUSB bool) {
	if requireUSB && !dev.IsUSBDevice() {
		return
	}

	for _, r := range snapshot {
		if !rules.Matches(r, dev) {
			continue
		}

		d.executor.Execute(r, dev)
		metrics.RulesMatched.Inc()
		return
	}

	metrics.RulesUnmatched.Inc()
	d.logger.Warn("no rule matched device", "subsystem", dev.Subsystem(), "devpath", dev.Devpath(), "action", dev.Action().String())
}

// pollReadable waits up to timeout for fd to become readable.
func pollReadable(fd int, timeout time.Duration) (bool, error) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}
