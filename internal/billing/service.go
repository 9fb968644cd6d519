package billing

import (
	"context"
	"errors"
	"time"

	"github.com/mivaca/backend/internal/ledger"
	"github.com/mivaca/backend/internal/metrics"
	"go.uber.org/zap"
)

var (
	errMissingStore = errors.New("ledger store is required")
	noOpLogger      = zap.NewNop()
)

const opServiceNew = "billing.service.new"

// Persister stores committed session snapshots.
type Persister interface {
	SaveSession(ctx context.Context, snapshot ledger.Snapshot) error
}

// Change describes one committed command.
type Change struct {
	SessionID  string
	Command    string
	Version    int64
	OccurredAt time.Time
}

// ChangeNotifier fans committed changes out to live subscribers.
type ChangeNotifier interface {
	NotifySessionChanged(change Change)
}

// MetricsRecorder receives command outcomes.
type MetricsRecorder interface {
	SessionCreated()
	CommandCompleted(command, outcome string)
	PaymentRecorded(amount float64)
}

type ServiceConfig struct {
	Store      *ledger.Store
	Persister  Persister
	Notifier   ChangeNotifier
	Metrics    MetricsRecorder
	IDProvider ledger.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service executes every externally visible command against the ledger.
// Each command's checks and writes share one session lock.
type Service struct {
	store     *ledger.Store
	persister Persister
	notifier  ChangeNotifier
	metrics   MetricsRecorder
	ids       ledger.IDProvider
	clock     func() time.Time
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, ledger.Invalidf(opServiceNew, "missing_store", "%v", errMissingStore)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	ids := cfg.IDProvider
	if ids == nil {
		ids = ledger.NewUUIDProvider()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:     cfg.Store,
		persister: cfg.Persister,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		ids:       ids,
		clock:     clock,
		logger:    logger,
	}, nil
}

// execute runs fn inside the session lock and publishes the result once it commits.
func (s *Service) execute(ctx context.Context, command, sessionID string, fn func(tx *ledger.Tx) error) error {
	err := s.store.Update(sessionID, fn)
	s.recordOutcome(command, sessionID, err)
	if err != nil {
		return err
	}
	s.afterCommit(ctx, command, sessionID)
	return nil
}

func (s *Service) afterCommit(ctx context.Context, command, sessionID string) {
	snapshot, err := s.store.Snapshot(sessionID)
	if err != nil {
		s.logError(command, "snapshot_failed", err, zap.String("session_id", sessionID))
		return
	}
	if s.persister != nil {
		if err := s.persister.SaveSession(ctx, snapshot); err != nil {
			s.logError(command, "persist_failed", err,
				zap.String("session_id", sessionID),
				zap.Int64("version", snapshot.Session.Version))
		}
	}
	if s.notifier != nil {
		s.notifier.NotifySessionChanged(Change{
			SessionID:  sessionID,
			Command:    command,
			Version:    snapshot.Session.Version,
			OccurredAt: s.clock().UTC(),
		})
	}
}

func (s *Service) recordOutcome(command, sessionID string, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case ledger.KindOf(err) != "":
		outcome = metrics.OutcomeRejected
		s.logger.Debug("command rejected",
			zap.String("operation", command),
			zap.String("session_id", sessionID),
			zap.Error(err))
	default:
		outcome = metrics.OutcomeFailed
		s.logError(command, "command_failed", err, zap.String("session_id", sessionID))
	}
	if s.metrics != nil {
		s.metrics.CommandCompleted(command, outcome)
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("billing service error", attrs...)
}
