// Package controller keeps a thermometer connected and moves frames between it
// and the device model. Requests from callers are queued and sent in order
// across reconnects.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/tp25ctl/internal/ble/protocol"
	"github.com/chaz8081/tp25ctl/internal/device"
	"github.com/chaz8081/tp25ctl/internal/metrics"
	"github.com/chaz8081/tp25ctl/internal/peripheral"
)

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("controller: stopped")

// errStopRequested ends the sender pipeline after a requested stop.
var errStopRequested = errors.New("controller: stop requested")

// Options configures a Manager.
type Options struct {
	QueueSize        int           // max requests waiting to be sent
	RetryBase        time.Duration // first discovery retry delay, 0 retries immediately
	RetryMax         time.Duration // cap on the discovery retry delay
	TransferLogLimit int           // entries kept in the transfer log, 0 keeps all
	Metrics          *metrics.Metrics
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		QueueSize: 16,
		RetryBase: time.Second,
		RetryMax:  30 * time.Second,
	}
}

// Manager owns the connection lifecycle. It alternates between searching for
// a device and running a connected session until Stop is called, the context
// ends, or discovery fails fatally.
type Manager struct {
	finder    peripheral.Finder
	opts      Options
	metrics   *metrics.Metrics
	store     *device.Store
	transfers *TransferLog

	requests chan Request
	stopping chan struct{}
	stopOnce sync.Once

	// pendingMu guards pending, requests taken off the queue whose writes
	// did not complete. The next session sends them before the queue.
	pendingMu sync.Mutex
	pending   []Request
}

// New creates a Manager that finds devices with finder. Call Run to start it.
func New(finder peripheral.Finder, opts Options) *Manager {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	return &Manager{
		finder:    finder,
		opts:      opts,
		metrics:   opts.Metrics,
		store:     device.NewStore(),
		transfers: NewTransferLog(opts.TransferLogLimit),
		requests:  make(chan Request, opts.QueueSize),
		stopping:  make(chan struct{}),
	}
}

// Snapshot returns the current device state.
func (m *Manager) Snapshot() device.State {
	return m.store.Snapshot()
}

// Subscribe streams every published device state until ctx is done.
func (m *Manager) Subscribe(ctx context.Context, buffer int) <-chan device.State {
	return m.store.Subscribe(ctx, buffer)
}

// Transfers returns the log of frames exchanged with the device.
func (m *Manager) Transfers() *TransferLog {
	return m.transfers
}

// Submit validates req and queues it for the device. It blocks while the
// queue is full. Requests queued while no device is connected are sent after
// the next connection is established.
func (m *Manager) Submit(ctx context.Context, req Request) error {
	if err := validate(req); err != nil {
		return fmt.Errorf("controller: invalid request %T: %w", req, err)
	}
	select {
	case <-m.stopping:
		return ErrStopped
	default:
	}
	select {
	case m.requests <- req:
		m.metrics.SetQueueDepth(len(m.requests))
		return nil
	case <-m.stopping:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks Run to finish. Requests already queued are sent first if a device
// is connected. Stop does not wait for Run to return.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		slog.Info("[CTRL] stop requested", "queued", len(m.requests))
		close(m.stopping)
	})
}

func (m *Manager) stopRequested() bool {
	select {
	case <-m.stopping:
		return true
	default:
		return false
	}
}

// Run drives the connection loop. It returns nil after Stop, ctx.Err() when
// ctx ends, or an error wrapping peripheral.ErrFatal when discovery cannot
// continue. Run must be called at most once.
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		m.setConnected(false)
		if m.stopRequested() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		slog.Info("[CTRL] searching for device", "attempt", attempt+1)
		link, err := m.connect(ctx)
		if err != nil {
			if m.stopRequested() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if peripheral.IsFatal(err) {
				m.metrics.ConnectAttempt(metrics.ResultFatal)
				slog.Error("[CTRL] discovery failed", "error", err)
				return fmt.Errorf("controller: discover device: %w", err)
			}
			m.metrics.ConnectAttempt(metrics.ResultFailed)
			delay := backoffDelay(attempt, m.opts.RetryBase, m.opts.RetryMax)
			slog.Warn("[CTRL] device not connected", "error", err, "attempt", attempt+1, "retry_in", delay)
			attempt++
			m.wait(ctx, delay)
			continue
		}

		attempt = 0
		m.metrics.ConnectAttempt(metrics.ResultConnected)
		m.runSession(ctx, link)
	}
}

// connect calls the finder with a context that also ends on Stop.
func (m *Manager) connect(ctx context.Context) (peripheral.Link, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stopping:
			cancel()
		case <-cctx.Done():
		}
	}()
	return m.finder.Connect(cctx)
}

// wait sleeps for d or until Stop or ctx ends.
func (m *Manager) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-m.stopping:
	case <-ctx.Done():
	}
}

type pipelineResult struct {
	name string
	err  error
}

// runSession runs the receiver and sender pipelines on link until either one
// ends, then tears both down and closes the link.
func (m *Manager) runSession(ctx context.Context, link peripheral.Link) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.setConnected(true)
	slog.Info("[CTRL] device connected")

	done := make(chan pipelineResult, 2)
	go func() { done <- pipelineResult{"receiver", m.receive(sctx, link)} }()
	go func() { done <- pipelineResult{"sender", m.send(sctx, link)} }()

	first := <-done
	cancel()
	<-done

	if err := link.Close(); err != nil {
		slog.Warn("[CTRL] close link", "error", err)
	}

	switch {
	case errors.Is(first.err, errStopRequested):
		m.metrics.SessionEnded(metrics.ReasonStopped)
		slog.Info("[CTRL] session stopped")
	case first.name == "sender":
		m.metrics.SessionEnded(metrics.ReasonSendFailed)
		slog.Warn("[CTRL] session ended", "pipeline", first.name, "error", first.err)
	default:
		m.metrics.SessionEnded(metrics.ReasonLinkLost)
		slog.Warn("[CTRL] session ended", "pipeline", first.name, "error", first.err)
	}
}

// receive decodes every frame from link and folds it into the device model.
func (m *Manager) receive(ctx context.Context, link peripheral.Receiver) error {
	for {
		raw, err := link.Receive(ctx)
		if err != nil {
			return fmt.Errorf("controller: receive: %w", err)
		}
		n := protocol.ParseNotification(raw)
		m.transfers.addNotification(n)
		m.metrics.FrameReceived(n.Kind)

		switch n.Kind {
		case protocol.NotificationUnknown:
			slog.Debug("[CTRL] undecodable frame", "raw", fmt.Sprintf("%x", raw))
		case protocol.NotificationError:
			slog.Warn("[CTRL] device reported error", "raw", fmt.Sprintf("%x", raw))
		default:
			slog.Debug("[CTRL] received", "notification", n)
		}

		m.update(func(s *device.State) bool { return device.Apply(n, s) })
	}
}

// send performs the startup handshake, then writes queued requests until the
// session ends or a stop is requested.
func (m *Manager) send(ctx context.Context, link peripheral.Sender) error {
	if err := m.write(ctx, link, protocol.BuildStartup()); err != nil {
		return err
	}
	if err := m.sendPending(ctx, link); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopping:
			return m.drain(ctx, link)
		case req := <-m.requests:
			// select may pick the queue even though the session already ended.
			if err := ctx.Err(); err != nil {
				m.requeue(req)
				return err
			}
			if err := m.handle(ctx, link, req); err != nil {
				return err
			}
		}
	}
}

// sendPending resends requests left over from a session that ended mid-write.
func (m *Manager) sendPending(ctx context.Context, link peripheral.Sender) error {
	for {
		req, ok := m.popPending()
		if !ok {
			return nil
		}
		slog.Info("[CTRL] resending request", "request", fmt.Sprintf("%T", req))
		if err := m.handle(ctx, link, req); err != nil {
			return err
		}
	}
}

// requeue puts req back at the front of the pending list.
func (m *Manager) requeue(req Request) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending = append([]Request{req}, m.pending...)
}

func (m *Manager) popPending() (Request, bool) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if len(m.pending) == 0 {
		return nil, false
	}
	req := m.pending[0]
	m.pending = m.pending[1:]
	return req, true
}

// drain sends whatever is still queued and then reports the stop.
func (m *Manager) drain(ctx context.Context, link peripheral.Sender) error {
	for {
		select {
		case req := <-m.requests:
			if err := m.handle(ctx, link, req); err != nil {
				return err
			}
		default:
			return errStopRequested
		}
	}
}

func (m *Manager) handle(ctx context.Context, link peripheral.Sender, req Request) error {
	m.metrics.SetQueueDepth(len(m.requests))
	cmds, err := req.commands(m.store.Snapshot().TemperatureMode)
	if err != nil {
		slog.Warn("[CTRL] skipping request", "request", fmt.Sprintf("%T", req), "error", err)
		return nil
	}
	for _, c := range cmds {
		if err := m.write(ctx, link, c); err != nil {
			m.requeue(req)
			return err
		}
	}
	return nil
}

// write logs c and sends it. Commands whose write fails stay in the log.
func (m *Manager) write(ctx context.Context, link peripheral.Sender, c protocol.Command) error {
	m.transfers.addCommand(c)
	if err := link.Send(ctx, c.Raw); err != nil {
		m.metrics.SendError()
		return fmt.Errorf("controller: send %s: %w", c, err)
	}
	m.metrics.FrameSent(c.Kind)
	slog.Debug("[CTRL] sent", "command", c, "raw", fmt.Sprintf("%x", c.Raw))
	return nil
}

func (m *Manager) update(fn func(*device.State) bool) {
	if st, changed := m.store.Update(fn); changed {
		m.metrics.ObserveState(st)
	}
}

func (m *Manager) setConnected(connected bool) {
	m.metrics.ObserveState(m.store.SetConnected(connected))
}
