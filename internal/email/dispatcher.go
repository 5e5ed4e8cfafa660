package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/redmonkez12/chatty-auth/internal/logging"
	"github.com/redmonkez12/chatty-auth/internal/metrics"
)

var (
	ErrQueueFull        = errors.New("email queue is full")
	ErrDispatcherClosed = errors.New("email dispatcher is closed")
)

// Sender sends one code email synchronously
type Sender interface {
	SendCode(ctx context.Context, kind Kind, toEmail, name, code string) error
}

// DeliveryError reports a job that exhausted its retries
type DeliveryError struct {
	Kind Kind
	To   string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s email: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DispatcherConfig tunes the worker pool
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxRetries  uint64
	BaseBackoff time.Duration
	SendTimeout time.Duration
}

type job struct {
	kind Kind
	to   string
	name string
	code string
}

// Dispatcher queues code emails and delivers them from background workers.
// Enqueueing never blocks; failures are reported on an internal error
// channel that is drained into the log and metrics.
type Dispatcher struct {
	sender  Sender
	cfg     DispatcherConfig
	logger  *logging.Logger
	metrics *metrics.Metrics

	jobs   chan job
	errs   chan error
	stop   chan struct{}
	mu     sync.RWMutex
	closed bool

	workers sync.WaitGroup
	drained chan struct{}
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *logging.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		jobs:    make(chan job, cfg.QueueSize),
		errs:    make(chan error, cfg.QueueSize),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.workers.Add(1)
		go d.work()
	}
	go d.drainErrors()

	return d
}

// SendVerificationCode queues a verification email
func (d *Dispatcher) SendVerificationCode(ctx context.Context, toEmail, name, code string) error {
	return d.enqueue(job{kind: KindVerification, to: toEmail, name: name, code: code})
}

// SendPasswordResetCode queues a password reset email
func (d *Dispatcher) SendPasswordResetCode(ctx context.Context, toEmail, name, code string) error {
	return d.enqueue(job{kind: KindPasswordReset, to: toEmail, name: name, code: code})
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.jobs <- j:
		return nil
	default:
		d.metrics.EmailDelivery(string(j.kind), metrics.ResultDropped, 0)
		return ErrQueueFull
	}
}

// Close stops accepting jobs, lets the workers finish the queue and waits
// until they are done or ctx expires. On expiry in-flight sends are cancelled
// and Close returns without waiting for senders that ignore cancellation.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(d.errs)
		<-d.drained
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// abort in-flight retries
		close(d.stop)
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.workers.Done()

	for j := range d.jobs {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	go func() {
		select {
		case <-d.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.BaseBackoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := d.sender.SendCode(ctx, j.kind, j.to, j.name, j.code); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.metrics.EmailDelivery(string(j.kind), metrics.ResultFailure, time.Since(start))
		d.errs <- &DeliveryError{Kind: j.kind, To: j.to, Err: err}
		return
	}

	d.metrics.EmailDelivery(string(j.kind), metrics.ResultSuccess, time.Since(start))
	d.logger.Info("code email sent", "kind", j.kind, "email", j.to)
}

func (d *Dispatcher) drainErrors() {
	defer close(d.drained)

	for err := range d.errs {
		var deliveryErr *DeliveryError
		if errors.As(err, &deliveryErr) {
			d.logger.Error("failed to deliver code email",
				"kind", deliveryErr.Kind,
				"email", deliveryErr.To,
				"error", deliveryErr.Err,
			)
			continue
		}
		d.logger.Error("email dispatcher error", "error", err)
	}
}
