package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xmimu/manbo-tts/internal/bus"
	"github.com/xmimu/manbo-tts/internal/history"
	"github.com/xmimu/manbo-tts/internal/protocol"
)

// Service exposes every registered operation as a NATS request/reply subject.
// Invocations are independent: each message is served on its own goroutine
// and no mutable state is shared between them.
type Service struct {
	registry *Registry
	bus      *bus.Client
	journal  *history.Store
	subs     []*nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger

	tracer      trace.Tracer
	invocations metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
}

func NewService(parent context.Context, registry *Registry, busClient *bus.Client, journal *history.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		registry: registry,
		bus:      busClient,
		journal:  journal,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "ops-service")),
		tracer:   otel.Tracer("github.com/xmimu/manbo-tts/ops"),
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return s
}

func (s *Service) initMetrics() error {
	meter := otel.Meter("github.com/xmimu/manbo-tts/ops")
	invocations, err := meter.Int64Counter("manbo.operations.invocations",
		metric.WithDescription("Operation invocations"))
	if err != nil {
		return err
	}
	failures, err := meter.Int64Counter("manbo.operations.failures",
		metric.WithDescription("Operation invocations that returned an error"))
	if err != nil {
		return err
	}
	duration, err := meter.Float64Histogram("manbo.operations.duration_ms",
		metric.WithDescription("Operation duration in milliseconds"))
	if err != nil {
		return err
	}
	s.invocations = invocations
	s.failures = failures
	s.duration = duration
	return nil
}

// Start subscribes every registered operation once. The registration table is
// fixed for the process lifetime.
func (s *Service) Start() error {
	for _, name := range s.registry.Names() {
		name := name
		handler, _ := s.registry.Lookup(name)
		sub, err := s.bus.Conn().Subscribe(protocol.OperationSubject(name), func(msg *nats.Msg) {
			s.handle(name, handler, msg)
		})
		if err != nil {
			s.drain()
			return err
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("operation registered", slog.String("operation", name))
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drain()
	s.wg.Wait()
}

func (s *Service) drain() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool { return len(s.subs) == len(s.registry.Names()) }

// handle serves one invocation. No deadline is imposed here: save_audio
// blocks on the user's dialog for as long as they keep it open.
func (s *Service) handle(name string, handler Handler, msg *nats.Msg) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, span := s.tracer.Start(s.ctx, "op."+name)
		defer span.End()

		start := time.Now()
		result := execute(ctx, handler, msg.Data)
		elapsed := time.Since(start)

		s.respond(name, msg, result)
		s.record(ctx, name, result, elapsed)
	}()
}

func (s *Service) respond(name string, msg *nats.Msg, result protocol.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal result",
			slog.String("operation", name),
			slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond",
			slog.String("operation", name),
			slog.String("error", err.Error()))
	}
}

func (s *Service) record(ctx context.Context, name string, result protocol.Result, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("operation", name))
	if s.invocations != nil {
		s.invocations.Add(ctx, 1, attrs)
	}
	if !result.OK && s.failures != nil {
		s.failures.Add(ctx, 1, attrs)
	}
	if s.duration != nil {
		s.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}

	if !result.OK {
		s.logger.Warn("operation failed",
			slog.String("operation", name),
			slog.String("error", result.Error))
	}

	if s.journal != nil {
		rec := history.Record{
			Operation:  name,
			Status:     history.StatusOK,
			DurationMS: elapsed.Milliseconds(),
		}
		if !result.OK {
			rec.Status = history.StatusError
			rec.Detail = result.Error
		}
		if err := s.journal.Append(ctx, rec); err != nil {
			s.logger.Warn("failed to record history",
				slog.String("operation", name),
				slog.String("error", err.Error()))
		}
	}
}
