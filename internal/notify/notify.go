// Package notify delivers completed fault reports and escalation packets to
// the configured sinks off the request path.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joescharf/desk/internal/models"
)

// Notifier is one delivery sink.
type Notifier interface {
	Name() string
	NotifyEscalation(ctx context.Context, e *models.EscalationContext) error
	NotifyFault(ctx context.Context, r *models.FaultReport) error
}

// Recorder persists the outcome of each send.
type Recorder interface {
	RecordNotification(ctx context.Context, n *models.Notification) error
}

// Defaults for Options.
const (
	DefaultWorkers   = 4
	DefaultTimeout   = 10 * time.Second
	DefaultQueueSize = 64
)

// Reasons a packet is dropped instead of queued.
var (
	ErrClosed    = errors.New("dispatcher closed")
	ErrQueueFull = errors.New("notification queue full")
)

// Options configures a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds each send to each sink.
	Timeout  time.Duration
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
	// OnResult is called once per sink and packet after delivery.
	OnResult func(kind models.NotificationKind, sink string, err error)
}

type job struct {
	kind     models.NotificationKind
	recordID string
	send     func(ctx context.Context, n Notifier) error
}

// Dispatcher fans each packet out to every sink on a bounded pool of
// workers. Dispatch calls never block the caller.
type Dispatcher struct {
	sinks []Notifier
	opts  Options
	jobs  chan job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker pool. Call Close to drain and stop it.
func NewDispatcher(sinks []Notifier, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		sinks: sinks,
		opts:  opts,
		jobs:  make(chan job, opts.QueueSize),
	}
	for range opts.Workers {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, n := range d.sinks {
		names[i] = n.Name()
	}
	return names
}

// DispatchFault queues a copy of r for delivery.
func (d *Dispatcher) DispatchFault(ctx context.Context, r *models.FaultReport) {
	if r == nil {
		return
	}
	report := *r
	err := d.enqueue(job{
		kind:     models.NotifyFault,
		recordID: report.ID,
		send: func(ctx context.Context, n Notifier) error {
			return n.NotifyFault(ctx, &report)
		},
	})
	if err != nil {
		d.opts.Logger.WarnContext(ctx, "fault notification dropped", "id", report.ID, "err", err)
	}
}

// DispatchEscalation queues a copy of e for delivery.
func (d *Dispatcher) DispatchEscalation(ctx context.Context, e *models.EscalationContext) {
	if e == nil {
		return
	}
	packet := *e
	packet.SuggestedActions = append([]string(nil), e.SuggestedActions...)
	packet.RecentMessages = append([]string(nil), e.RecentMessages...)
	packet.NotifyTargets = append([]string(nil), e.NotifyTargets...)
	err := d.enqueue(job{
		kind:     models.NotifyEscalation,
		recordID: packet.ID,
		send: func(ctx context.Context, n Notifier) error {
			return n.NotifyEscalation(ctx, &packet)
		},
	})
	if err != nil {
		d.opts.Logger.WarnContext(ctx, "escalation notification dropped", "id", packet.ID, "err", err)
	}
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting packets, delivers what is queued and waits for the
// workers to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
}

// deliver sends one packet to every sink in parallel. A failing sink does
// not cancel the others.
func (d *Dispatcher) deliver(j job) {
	var g errgroup.Group
	for _, sink := range d.sinks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
			defer cancel()

			err := j.send(ctx, sink)
			if err != nil {
				d.opts.Logger.Error("notification failed",
					"kind", j.kind, "id", j.recordID, "sink", sink.Name(), "err", err)
			} else {
				d.opts.Logger.Debug("notification sent",
					"kind", j.kind, "id", j.recordID, "sink", sink.Name())
			}
			d.record(ctx, j, sink.Name(), err)
			if d.opts.OnResult != nil {
				d.opts.OnResult(j.kind, sink.Name(), err)
			}
			return err
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) record(ctx context.Context, j job, sink string, sendErr error) {
	if d.opts.Recorder == nil {
		return
	}
	n := &models.Notification{
		ID:        models.NewID(models.PrefixNotification),
		Kind:      j.kind,
		RecordID:  j.recordID,
		Sink:      sink,
		Status:    models.NotificationSent,
		CreatedAt: d.opts.Now(),
	}
	if sendErr != nil {
		n.Status = models.NotificationFailed
		n.Error = sendErr.Error()
	}
	// The send may have used up the deadline; recording gets its own.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.Timeout)
	defer cancel()
	if err := d.opts.Recorder.RecordNotification(rctx, n); err != nil {
		d.opts.Logger.Error("record notification", "id", j.recordID, "sink", sink, "err", err)
	}
}
