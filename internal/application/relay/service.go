package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erp/mikrosync/internal/domain/mikro"
	"github.com/erp/mikrosync/internal/domain/relay"
	"github.com/erp/mikrosync/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/erp/mikrosync/internal/application/relay"

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeNoNewOrder  Outcome = "NO_NEW_ORDER"
	OutcomeEmptySource Outcome = "EMPTY_SOURCE"
	OutcomeForwarded   Outcome = "FORWARDED"
	OutcomeRejected    Outcome = "REJECTED"
	OutcomeFailed      Outcome = "FAILED"
)

// Phase is the step a cycle is currently in.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseCheckingOrder      Phase = "checking_order"
	PhaseExtracting         Phase = "extracting"
	PhaseTransforming       Phase = "transforming"
	PhaseAuthenticating     Phase = "authenticating"
	PhaseSubmitting         Phase = "submitting"
	PhaseAdvancingWatermark Phase = "advancing_watermark"
)

// CycleResult describes one completed cycle.
type CycleResult struct {
	ID        uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
	OrderCode string
	Lines     int
	Err       error
}

// Succeeded reports whether the cycle ended without an error.
func (r *CycleResult) Succeeded() bool {
	return r.Err == nil
}

// CycleRecorder receives cycle and submission measurements.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, outcome string, duration time.Duration, lines int)
	RecordSubmission(ctx context.Context, endpoint string, accepted bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(context.Context, string, time.Duration, int) {}
func (nopRecorder) RecordSubmission(context.Context, string, bool)         {}

// ServiceOption configures a SyncService.
type ServiceOption func(*SyncService)

// WithClock overrides the time source used for the daily credential.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *SyncService) {
		s.now = now
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r CycleRecorder) ServiceOption {
	return func(s *SyncService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithTracer sets the tracer used for cycle spans.
func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *SyncService) {
		if t != nil {
			s.tracer = t
		}
	}
}

// SyncService runs relay cycles: detect a new order, extract, transform,
// submit to the ERP and advance the watermark.
type SyncService struct {
	source      relay.OrderSource
	watermark   relay.WatermarkStore
	submitter   relay.Submitter
	transformer *Transformer
	login       *LoginBuilder
	orderSave   *OrderSaveBuilder
	userCode    string

	now      func() time.Time
	recorder CycleRecorder
	tracer   trace.Tracer
	logger   *zap.Logger

	phase atomic.Value
}

// NewSyncService creates a cycle service.
func NewSyncService(
	source relay.OrderSource,
	watermark relay.WatermarkStore,
	submitter relay.Submitter,
	creds mikro.Credentials,
	log *zap.Logger,
	opts ...ServiceOption,
) *SyncService {
	if log == nil {
		log = zap.NewNop()
	}
	validator := NewPayloadValidator()
	s := &SyncService{
		source:      source,
		watermark:   watermark,
		submitter:   submitter,
		transformer: NewTransformer(),
		login:       NewLoginBuilder(creds, validator),
		orderSave:   NewOrderSaveBuilder(creds, validator),
		userCode:    creds.UserCode,
		now:         time.Now,
		recorder:    nopRecorder{},
		tracer:      otel.Tracer(tracerName),
		logger:      log.Named("relay"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.phase.Store(PhaseIdle)
	return s
}

// Phase returns the step the running cycle is in, or PhaseIdle between cycles.
func (s *SyncService) Phase() Phase {
	return s.phase.Load().(Phase)
}

// RunCycle executes one relay cycle. Failures are contained in the result.
func (s *SyncService) RunCycle(ctx context.Context) *CycleResult {
	result := &CycleResult{
		ID:        uuid.New(),
		StartedAt: s.now(),
	}
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "relay.cycle",
		trace.WithAttributes(attribute.String("cycle_id", result.ID.String())))
	defer span.End()

	ctx, log := logger.WithCycleID(ctx, s.logger, result.ID.String())
	log = logger.WithTraceContext(ctx, log)

	s.run(ctx, result, log)
	s.phase.Store(PhaseIdle)

	result.Duration = time.Since(start)
	span.SetAttributes(
		attribute.String("outcome", string(result.Outcome)),
		attribute.String("order_code", result.OrderCode),
		attribute.Int("lines", result.Lines),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		log.Error("Relay cycle failed",
			zap.String("outcome", string(result.Outcome)),
			zap.String("order_code", result.OrderCode),
			zap.Duration("duration", result.Duration),
			zap.Bool("retryable", IsRetryable(result.Err)),
			zap.Error(result.Err),
		)
	} else {
		log.Info("Relay cycle completed",
			zap.String("outcome", string(result.Outcome)),
			zap.String("order_code", result.OrderCode),
			zap.Int("lines", result.Lines),
			zap.Duration("duration", result.Duration),
		)
	}
	s.recorder.RecordCycle(ctx, string(result.Outcome), result.Duration, result.Lines)
	return result
}

func (s *SyncService) run(ctx context.Context, result *CycleResult, log *zap.Logger) {
	fail := func(outcome Outcome, err error) {
		result.Outcome = outcome
		result.Err = err
	}

	// Has new order?
	s.phase.Store(PhaseCheckingOrder)
	latest, err := s.latestOrder(ctx)
	if err != nil {
		fail(OutcomeFailed, err)
		return
	}
	if latest == nil {
		log.Info("Order table is empty")
		result.Outcome = OutcomeEmptySource
		return
	}
	result.OrderCode = latest.Code

	stored, err := s.readWatermark(ctx)
	if err != nil {
		fail(OutcomeFailed, err)
		return
	}
	if latest.Code == stored {
		log.Info("No new order", zap.String("order_code", latest.Code))
		result.Outcome = OutcomeNoNewOrder
		return
	}
	log.Info("New order detected",
		zap.String("order_code", latest.Code),
		zap.String("watermark", stored),
	)

	s.phase.Store(PhaseExtracting)
	extraction, err := s.extract(ctx, latest, log)
	if err != nil {
		fail(OutcomeFailed, err)
		return
	}

	s.phase.Store(PhaseTransforming)
	lines, err := s.transform(ctx, extraction)
	if err != nil {
		fail(OutcomeFailed, err)
		return
	}
	result.Lines = len(lines)

	s.phase.Store(PhaseAuthenticating)
	today := s.now()
	password := mikro.HashedPassword(today, s.userCode)
	loginPayload, err := s.login.Build(today, password)
	if err != nil {
		fail(OutcomeFailed, err)
		return
	}
	orderPayload, err := s.orderSave.Build(lines, today, password)
	if err != nil {
		fail(OutcomeFailed, err)
		return
	}

	loginResult := s.submit(ctx, relay.EndpointLogin, loginPayload)
	if !loginResult.Accepted {
		fail(OutcomeRejected, rejection(loginResult))
		return
	}

	s.phase.Store(PhaseSubmitting)
	orderResult := s.submit(ctx, relay.EndpointOrderSave, orderPayload)
	if !orderResult.Accepted {
		fail(OutcomeRejected, rejection(orderResult))
		return
	}

	s.phase.Store(PhaseAdvancingWatermark)
	if err := s.advance(ctx, latest.Code); err != nil {
		log.Error("Order forwarded but watermark not advanced; it will be sent again",
			zap.String("order_code", latest.Code),
			zap.Error(err),
		)
		fail(OutcomeFailed, err)
		return
	}
	result.Outcome = OutcomeForwarded
}

func (s *SyncService) latestOrder(ctx context.Context) (*relay.Order, error) {
	ctx, span := s.tracer.Start(ctx, "relay.latest_order")
	defer span.End()

	order, err := s.source.LatestOrder(ctx)
	if err != nil {
		endSpanWithError(span, err)
		return nil, err
	}
	return order, nil
}

func (s *SyncService) readWatermark(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "relay.read_watermark")
	defer span.End()

	code, err := s.watermark.Read(ctx)
	if err != nil {
		endSpanWithError(span, err)
		return "", err
	}
	return code, nil
}

// extract runs the per-cycle query sequence: customer, items, then one product lookup per item.
func (s *SyncService) extract(ctx context.Context, order *relay.Order, log *zap.Logger) (*relay.Extraction, error) {
	ctx, span := s.tracer.Start(ctx, "relay.extract")
	defer span.End()

	customerCode, err := s.source.CustomerCode(ctx, order.CustomerID)
	if err != nil {
		endSpanWithError(span, err)
		return nil, err
	}
	if customerCode == "" {
		log.Warn("Customer code not found", zap.String("customer_id", order.CustomerID))
	}

	items, err := s.source.OrderItems(ctx, order.ID)
	if err != nil {
		endSpanWithError(span, err)
		return nil, err
	}

	for i := range items {
		code, err := s.source.ProductCode(ctx, items[i].ProductID)
		if err != nil {
			endSpanWithError(span, err)
			return nil, err
		}
		if code == "" {
			log.Warn("Product code not found", zap.String("product_id", items[i].ProductID))
		}
		items[i].ProductCode = code
	}

	span.SetAttributes(attribute.Int("items", len(items)))
	return &relay.Extraction{Order: order, CustomerCode: customerCode, Items: items}, nil
}

func (s *SyncService) transform(ctx context.Context, ex *relay.Extraction) ([]relay.EnrichedOrderItem, error) {
	_, span := s.tracer.Start(ctx, "relay.transform")
	defer span.End()

	lines, err := s.transformer.Transform(ex.Items, ex.Order, ex.CustomerCode)
	if err != nil {
		endSpanWithError(span, err)
		return nil, err
	}
	return lines, nil
}

func (s *SyncService) submit(ctx context.Context, endpoint relay.Endpoint, payload any) relay.SubmitResult {
	ctx, span := s.tracer.Start(ctx, "relay.submit",
		trace.WithAttributes(attribute.String("endpoint", endpoint.String())))
	defer span.End()

	res := s.submitter.Submit(ctx, endpoint, payload)
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode),
		attribute.Bool("accepted", res.Accepted),
	)
	if !res.Accepted {
		span.SetStatus(codes.Error, "submission rejected")
	}
	s.recorder.RecordSubmission(ctx, endpoint.String(), res.Accepted)
	return res
}

func (s *SyncService) advance(ctx context.Context, code string) error {
	ctx, span := s.tracer.Start(ctx, "relay.advance_watermark")
	defer span.End()

	if err := s.watermark.Write(ctx, code); err != nil {
		endSpanWithError(span, err)
		return err
	}
	return nil
}

func rejection(res relay.SubmitResult) error {
	if res.StatusCode == 0 {
		return fmt.Errorf("%w: %s: no response", relay.ErrSubmissionRejected, res.Endpoint)
	}
	return fmt.Errorf("%w: %s: HTTP %d", relay.ErrSubmissionRejected, res.Endpoint, res.StatusCode)
}

func endSpanWithError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// IsRetryable reports whether the next cycle may succeed without operator action.
// Bad source data fails the same way until the data is fixed.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, relay.ErrMalformedDate),
		errors.Is(err, relay.ErrInvalidAmount),
		errors.Is(err, relay.ErrValidationFailed):
		return false
	default:
		return true
	}
}
