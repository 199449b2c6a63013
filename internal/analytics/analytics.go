// Package analytics records best-effort usage events. Dispatching never
// blocks the request that produced the event and never fails it.
package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/logger"
)

const (
	EventSkillsFetched   = "skills_fetched"
	EventRepoMatch       = "repo_match"
	EventRepoMatchFailed = "repo_match_failed"

	DefaultTimeout = 5 * time.Second
)

// Event is one usage record.
type Event struct {
	Type  string
	Actor string
	Login string
	// Payload is a list of human readable entries, e.g. "owner/name - url".
	Payload []string
	Fields  map[string]string
	Time    time.Time
}

// Sink stores events.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Dispatcher sends events to a sink in the background.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sink Sink, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		sink:    sink,
		timeout: timeout,
		logger:  logger.WithFields(log),
	}
}

// Dispatch hands the event to the sink and returns at once. The send is
// detached from ctx cancellation but keeps its values.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil || d.sink == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Debug("dispatcher closed, analytics event dropped", zap.String("event", event.Type))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.sink.Send(ctx, event); err != nil {
			d.logger.Warn("failed to send analytics event",
				zap.String("event", event.Type),
				zap.String(logger.FieldActor, event.Actor),
				zap.Error(err),
			)
		}
	}()
}

// Close stops accepting events and waits for in-flight sends.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}

// LogSink writes events to the logger.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Send(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event", event.Type),
		zap.Time("time", event.Time),
		zap.Strings("payload", event.Payload),
	}
	fields = append(fields, logger.RequestFields(event.Actor, event.Login)...)
	for k, v := range event.Fields {
		fields = append(fields, zap.String(k, v))
	}

	logger.WithFields(s.Logger).Info("analytics event", fields...)
	return nil
}
