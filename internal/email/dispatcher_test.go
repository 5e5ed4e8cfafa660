package email

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/redmonkez12/chatty-auth/internal/logging"
	"github.com/redmonkez12/chatty-auth/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSender struct {
	mu       sync.Mutex
	calls    atomic.Int32
	failures int32
	block    chan struct{}
	sent     []string
}

func (s *fakeSender) SendCode(ctx context.Context, kind Kind, toEmail, name, code string) error {
	n := s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= s.failures {
		return errors.New("temporary failure")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(kind)+":"+toEmail+":"+code)
	return nil
}

func (s *fakeSender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newTestDispatcher(sender Sender, cfg DispatcherConfig) (*Dispatcher, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithWriter(&syncWriter{buf: &buf}, false)
	return NewDispatcher(sender, cfg, logger, metrics.New(prometheus.NewRegistry())), &buf
}

type syncWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func TestDispatcher_DeliversQueuedJobs(t *testing.T) {
	sender := &fakeSender{}
	d, _ := newTestDispatcher(sender, DispatcherConfig{Workers: 2, QueueSize: 10})

	require.NoError(t, d.SendVerificationCode(context.Background(), "a@x.com", "Ann", "111111"))
	require.NoError(t, d.SendPasswordResetCode(context.Background(), "b@x.com", "Bob", "222222"))

	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []string{
		"verify_email:a@x.com:111111",
		"password_reset:b@x.com:222222",
	}, sender.Sent())
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	sender := &fakeSender{failures: 2}
	d, _ := newTestDispatcher(sender, DispatcherConfig{
		Workers:     1,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
	})

	require.NoError(t, d.SendVerificationCode(context.Background(), "a@x.com", "Ann", "111111"))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(3), sender.calls.Load())
	assert.Len(t, sender.Sent(), 1)
}

func TestDispatcher_LogsExhaustedRetries(t *testing.T) {
	sender := &fakeSender{failures: 100}
	d, buf := newTestDispatcher(sender, DispatcherConfig{
		Workers:     1,
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
	})

	require.NoError(t, d.SendVerificationCode(context.Background(), "a@x.com", "Ann", "111111"))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(2), sender.calls.Load())
	assert.Contains(t, buf.String(), "failed to deliver code email")
	assert.NotContains(t, buf.String(), "111111")
}

func TestDispatcher_QueueFullDoesNotBlock(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	d, _ := newTestDispatcher(sender, DispatcherConfig{Workers: 1, QueueSize: 1})

	// first job occupies the worker, second fills the queue
	require.NoError(t, d.SendVerificationCode(context.Background(), "a@x.com", "Ann", "111111"))
	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, d.SendVerificationCode(context.Background(), "b@x.com", "Bob", "222222"))

	err := d.SendVerificationCode(context.Background(), "c@x.com", "Cat", "333333")
	assert.ErrorIs(t, err, ErrQueueFull)

	close(sender.block)
	require.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_CloseRejectsNewJobs(t *testing.T) {
	d, _ := newTestDispatcher(&fakeSender{}, DispatcherConfig{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	err := d.SendVerificationCode(context.Background(), "a@x.com", "Ann", "111111")
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDispatcher_CloseDeadlineAbortsInFlight(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	d, _ := newTestDispatcher(sender, DispatcherConfig{Workers: 1, SendTimeout: time.Minute})

	require.NoError(t, d.SendVerificationCode(context.Background(), "a@x.com", "Ann", "111111"))
	require.Eventually(t, func() bool { return sender.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, sender.Sent())
}

// stuckSender ignores cancellation until released
type stuckSender struct {
	started chan struct{}
	release chan struct{}
}

func (s *stuckSender) SendCode(ctx context.Context, kind Kind, toEmail, name, code string) error {
	close(s.started)
	<-s.release
	return errors.New("released")
}

func TestDispatcher_CloseDoesNotWaitForStuckSender(t *testing.T) {
	sender := &stuckSender{started: make(chan struct{}), release: make(chan struct{})}
	d, _ := newTestDispatcher(sender, DispatcherConfig{Workers: 1, SendTimeout: 50 * time.Millisecond})

	require.NoError(t, d.SendVerificationCode(context.Background(), "a@x.com", "Ann", "111111"))
	<-sender.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(sender.release)
	d.workers.Wait()
	<-d.drained
}
