package mailinglist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/akeren/go-waitlist/pkg/circuitbreaker"
	"github.com/akeren/go-waitlist/pkg/queue"
)

// JobTypeSubscribe is the queue job type carrying a Contact payload.
const JobTypeSubscribe = "mailing_list.subscribe"

var (
	ErrBufferFull     = errors.New("mailing list: notification buffer full")
	ErrNotifierClosed = errors.New("mailing list: notifier closed")
)

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Notifier hands a new signup to the mailing list without making the caller
// wait for the provider.
type Notifier interface {
	Notify(ctx context.Context, contact Contact) error
	Close() error
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, Contact) error { return nil }
func (NoopNotifier) Close() error                          { return nil }

// HealthChecker is implemented by notifiers that depend on a remote system.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type AsyncOptions struct {
	Workers int
	Buffer  int
	// Timeout bounds each Subscribe call made by a worker.
	Timeout time.Duration
}

// AsyncNotifier runs Subscribe calls on a fixed pool of in-process workers.
// Notifications that do not fit in the buffer are dropped.
type AsyncNotifier struct {
	syncer  Syncer
	logger  Logger
	timeout time.Duration
	jobs    chan Contact

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncNotifier(syncer Syncer, logger Logger, opts AsyncOptions) *AsyncNotifier {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	n := &AsyncNotifier{
		syncer:  syncer,
		logger:  logger,
		timeout: opts.Timeout,
		jobs:    make(chan Contact, opts.Buffer),
	}

	n.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go n.work()
	}
	return n
}

func (n *AsyncNotifier) Notify(_ context.Context, contact Contact) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return ErrNotifierClosed
	}

	select {
	case n.jobs <- contact:
		return nil
	default:
		n.logger.Warn("Mailing list notification dropped", "email", contact.Email, "reason", "buffer full")
		return ErrBufferFull
	}
}

// Close stops accepting notifications and waits for queued ones to finish.
func (n *AsyncNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.jobs)
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}

// Health fails while the provider circuit is open or after Close.
func (n *AsyncNotifier) Health(context.Context) error {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return ErrNotifierClosed
	}

	if b, ok := n.syncer.(interface {
		BreakerState() circuitbreaker.CircuitState
	}); ok && b.BreakerState() == circuitbreaker.Open {
		return circuitbreaker.ErrCircuitOpen
	}
	return nil
}

func (n *AsyncNotifier) work() {
	defer n.wg.Done()

	for contact := range n.jobs {
		// Detached from the request: the HTTP response has usually been sent already.
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		err := n.syncer.Subscribe(ctx, contact)
		cancel()

		if err != nil {
			n.logger.Error("Mailing list subscribe failed", "email", contact.Email, "error", err)
			continue
		}
		n.logger.Info("Mailing list subscribe succeeded", "email", contact.Email)
	}
}

type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) (*queue.Job, error)
	Ping(ctx context.Context) error
}

// QueueNotifier persists notifications on a Redis queue for cmd/worker to deliver.
type QueueNotifier struct {
	queue  Enqueuer
	logger Logger
}

func NewQueueNotifier(q Enqueuer, logger Logger) *QueueNotifier {
	return &QueueNotifier{queue: q, logger: logger}
}

func (n *QueueNotifier) Notify(ctx context.Context, contact Contact) error {
	job, err := n.queue.Enqueue(ctx, JobTypeSubscribe, contact)
	if err != nil {
		return err
	}
	n.logger.Info("Mailing list job enqueued", "job_id", job.ID, "email", contact.Email)
	return nil
}

func (n *QueueNotifier) Close() error { return nil }

func (n *QueueNotifier) Health(ctx context.Context) error {
	return n.queue.Ping(ctx)
}
