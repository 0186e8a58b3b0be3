package dispatch

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/wabot/core/logger"
	"github.com/m3rciful/wabot/core/whatsapp/message"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("dispatch: queue closed")
	// ErrQueueFull indicates the shard queue is saturated and the update was not accepted.
	ErrQueueFull = errors.New("dispatch: queue full")
)

// Handler processes one update.
type Handler interface {
	HandleUpdate(ctx context.Context, u message.RawUpdate) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u message.RawUpdate) error

// HandleUpdate calls f.
func (f HandlerFunc) HandleUpdate(ctx context.Context, u message.RawUpdate) error { return f(ctx, u) }

// Options sizes the worker pool.
type Options struct {
	Workers int
	// QueueSize is the buffer of each worker.
	QueueSize int
}

type job struct {
	ctx    context.Context
	update message.RawUpdate
	queued time.Time
}

// Dispatcher runs updates on a fixed set of workers. Updates of one chat
// always land on the same worker, so they are handled in arrival order.
type Dispatcher struct {
	opts    Options
	handler Handler
	queues  []chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	handled atomic.Uint64
	errs    atomic.Uint64
}

// New starts a dispatcher with defaults for zeroed options.
func New(h Handler, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	d := &Dispatcher{
		opts:    opts,
		handler: h,
		queues:  make([]chan job, opts.Workers),
	}
	d.wg.Add(opts.Workers)
	for i := range d.queues {
		d.queues[i] = make(chan job, opts.QueueSize)
		go d.worker(d.queues[i])
	}
	return d
}

// Enqueue schedules u. The job keeps the values of ctx but not its cancellation,
// so a webhook request may finish before the update is handled.
func (d *Dispatcher) Enqueue(ctx context.Context, u message.RawUpdate) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}

	q := d.queues[d.shard(u)]
	select {
	case q <- job{ctx: context.WithoutCancel(ctx), update: u, queued: time.Now()}:
		return nil
	default:
		logger.Warn(ctx, logger.CompWA, "dispatch.queue_full",
			slog.String("status", "fail"),
			slog.Int("queue_size", d.opts.QueueSize),
		)
		return ErrQueueFull
	}
}

// Handled returns the number of processed updates.
func (d *Dispatcher) Handled() uint64 { return d.handled.Load() }

// ErrorCount returns the number of updates whose handler failed.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Close stops accepting updates and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) shard(u message.RawUpdate) int {
	key := ""
	if u.Sender != nil {
		key = u.Sender.ChatID
	}
	if key == "" {
		key = u.IDMessage
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(q <-chan job) {
	defer d.wg.Done()
	for j := range q {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	defer func() {
		if r := recover(); r != nil {
			d.errs.Add(1)
			logger.Error(j.ctx, logger.CompWA, "dispatch.panic",
				slog.Any("err", r),
			)
		}
	}()

	if wait := time.Since(j.queued); wait > time.Second {
		logger.Debug(j.ctx, logger.CompWA, "dispatch.slow_queue",
			slog.Duration("wait", logger.RoundMS(wait)),
		)
	}
	err := d.handler.HandleUpdate(j.ctx, j.update)
	d.handled.Add(1)
	if err != nil {
		d.errs.Add(1)
	}
}
