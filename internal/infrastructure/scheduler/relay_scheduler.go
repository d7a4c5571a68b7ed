package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apprelay "github.com/erp/mikrosync/internal/application/relay"
)

// Loop phases reported by Status in addition to the cycle phases.
const (
	PhaseSleeping = "sleeping"
	PhaseStopping = "stopping"
	PhaseStopped  = "stopped"
)

// CycleRunner executes one relay cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) *apprelay.CycleResult
	Phase() apprelay.Phase
}

// RelaySchedulerConfig holds configuration for the relay loop
type RelaySchedulerConfig struct {
	// PollInterval is the fixed sleep between two cycles
	PollInterval time.Duration
	// StopCheckInterval is how often a sleeping loop looks at the stop flag
	StopCheckInterval time.Duration
	// CycleTimeout bounds a single cycle
	CycleTimeout time.Duration
	// HistorySize is the number of cycle records kept in memory
	HistorySize int
}

// DefaultRelaySchedulerConfig returns default relay loop configuration
func DefaultRelaySchedulerConfig() RelaySchedulerConfig {
	return RelaySchedulerConfig{
		PollInterval:      120 * time.Second,
		StopCheckInterval: 100 * time.Millisecond,
		CycleTimeout:      90 * time.Second,
		HistorySize:       100,
	}
}

// Validate checks the configuration
func (c RelaySchedulerConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.StopCheckInterval <= 0 {
		return fmt.Errorf("%w: stop check interval must be positive", ErrInvalidConfig)
	}
	if c.StopCheckInterval > c.PollInterval {
		return fmt.Errorf("%w: stop check interval exceeds poll interval", ErrInvalidConfig)
	}
	if c.CycleTimeout <= 0 {
		return fmt.Errorf("%w: cycle timeout must be positive", ErrInvalidConfig)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("%w: history size must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// CycleRecord is the history entry of one finished cycle.
type CycleRecord struct {
	ID        uuid.UUID
	StartedAt time.Time
	Duration  time.Duration
	Outcome   apprelay.Outcome
	OrderCode string
	Lines     int
	Error     string
	// Retryable is false when the next cycle will fail the same way until the data is fixed
	Retryable bool
}

// Status is a snapshot of the relay loop.
type Status struct {
	Running      bool
	Phase        string
	PollInterval time.Duration
	StartedAt    *time.Time
	Cycles       int64
	LastCycle    *CycleRecord
}

// runState belongs to one Start..loop exit span.
type runState struct {
	stop     atomic.Bool
	sleeping atomic.Bool
	done     chan struct{}
}

// RelayScheduler runs relay cycles one after another on a single goroutine,
// sleeping PollInterval between them. Stop never interrupts a running cycle.
type RelayScheduler struct {
	config RelaySchedulerConfig
	runner CycleRunner
	logger *zap.Logger

	mu        sync.Mutex
	run       *runState
	startedAt time.Time
	cycles    int64

	historyMu sync.RWMutex
	history   []CycleRecord
}

// NewRelayScheduler creates a new relay scheduler
func NewRelayScheduler(config RelaySchedulerConfig, runner CycleRunner, logger *zap.Logger) (*RelayScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RelayScheduler{
		config:  config,
		runner:  runner,
		logger:  logger.Named("scheduler"),
		history: make([]CycleRecord, 0, config.HistorySize),
	}, nil
}

// Start launches the relay loop. The loop lives until Stop is called or ctx is done.
func (s *RelayScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return ErrSchedulerAlreadyRunning
	}

	run := &runState{done: make(chan struct{})}
	s.run = run
	s.startedAt = time.Now()

	go s.loop(ctx, run)

	s.logger.Info("Relay loop started",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Duration("cycle_timeout", s.config.CycleTimeout),
	)
	return nil
}

// Stop asks the loop to exit and waits for it. An in-flight cycle runs to
// completion; ctx only bounds how long Stop waits.
func (s *RelayScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()

	if run == nil {
		return ErrSchedulerNotRunning
	}

	if !run.stop.Swap(true) {
		s.logger.Info("Stopping relay loop")
	}

	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for relay loop to stop")
		return ctx.Err()
	}
}

// IsRunning reports whether the loop goroutine is alive.
func (s *RelayScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Status returns a snapshot of the loop.
func (s *RelayScheduler) Status() Status {
	s.mu.Lock()
	run := s.run
	st := Status{
		Running:      run != nil,
		PollInterval: s.config.PollInterval,
		Cycles:       s.cycles,
	}
	if run != nil {
		startedAt := s.startedAt
		st.StartedAt = &startedAt
	}
	s.mu.Unlock()

	switch {
	case run == nil:
		st.Phase = PhaseStopped
	case run.stop.Load():
		st.Phase = PhaseStopping
	case run.sleeping.Load():
		st.Phase = PhaseSleeping
	default:
		st.Phase = string(s.runner.Phase())
	}

	if last := s.History(1); len(last) == 1 {
		st.LastCycle = &last[0]
	}
	return st
}

// History returns up to limit cycle records, newest first. A limit <= 0 returns all.
func (s *RelayScheduler) History(limit int) []CycleRecord {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]CycleRecord, limit)
	copy(out, s.history[:limit])
	return out
}

func (s *RelayScheduler) loop(ctx context.Context, run *runState) {
	defer func() {
		s.mu.Lock()
		s.run = nil
		s.mu.Unlock()
		close(run.done)
		s.logger.Info("Relay loop stopped")
	}()

	for {
		if run.stop.Load() || ctx.Err() != nil {
			return
		}
		s.runOnce(ctx)
		if !s.sleep(ctx, run) {
			return
		}
	}
}

func (s *RelayScheduler) runOnce(ctx context.Context) {
	// The cycle keeps running if the loop's context is cancelled mid-way.
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CycleTimeout)
	defer cancel()

	result := s.runCycle(cycleCtx)
	if result == nil {
		return
	}

	record := CycleRecord{
		ID:        result.ID,
		StartedAt: result.StartedAt,
		Duration:  result.Duration,
		Outcome:   result.Outcome,
		OrderCode: result.OrderCode,
		Lines:     result.Lines,
	}
	if result.Err != nil {
		record.Error = result.Err.Error()
		record.Retryable = apprelay.IsRetryable(result.Err)
	}

	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()
	s.addToHistory(record)
}

// runCycle runs one cycle and turns a panic into a FAILED result so the loop keeps going.
func (s *RelayScheduler) runCycle(ctx context.Context) (result *apprelay.CycleResult) {
	startedAt := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Relay cycle panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result = &apprelay.CycleResult{
				ID:        uuid.New(),
				StartedAt: startedAt,
				Duration:  time.Since(startedAt),
				Outcome:   apprelay.OutcomeFailed,
				Err:       fmt.Errorf("%w: %v", ErrCyclePanicked, r),
			}
		}
	}()
	return s.runner.RunCycle(ctx)
}

// sleep waits PollInterval, checking the stop flag every StopCheckInterval.
// It returns false when the loop should exit.
func (s *RelayScheduler) sleep(ctx context.Context, run *runState) bool {
	run.sleeping.Store(true)
	defer run.sleeping.Store(false)

	timer := time.NewTimer(s.config.PollInterval)
	defer timer.Stop()
	ticker := time.NewTicker(s.config.StopCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return !run.stop.Load()
		case <-ticker.C:
			if run.stop.Load() {
				return false
			}
		}
	}
}

func (s *RelayScheduler) addToHistory(record CycleRecord) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	// Prepend so the newest record comes first
	s.history = append([]CycleRecord{record}, s.history...)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[:s.config.HistorySize]
	}
}
