package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mivaca/backend/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("id-%03d", s.next), nil
}

type recordingPersister struct {
	mu        sync.Mutex
	snapshots []ledger.Snapshot
	err       error
}

func (p *recordingPersister) SaveSession(_ context.Context, snapshot ledger.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.snapshots = append(p.snapshots, snapshot)
	return nil
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) NotifySessionChanged(change Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) last() Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changes[len(n.changes)-1]
}

type recordingMetrics struct {
	mu       sync.Mutex
	sessions int
	outcomes map[string]int
	payments []float64
}

func (m *recordingMetrics) SessionCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions++
}

func (m *recordingMetrics) CommandCompleted(command, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[command+"/"+outcome]++
}

func (m *recordingMetrics) PaymentRecorded(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, amount)
}

type testHarness struct {
	service   *Service
	store     *ledger.Store
	persister *recordingPersister
	notifier  *recordingNotifier
	metrics   *recordingMetrics
}

func newHarness(t *testing.T, logger *zap.Logger) testHarness {
	t.Helper()
	ids := &sequenceIDs{}
	fixed := time.Date(2024, 5, 4, 20, 0, 0, 0, time.UTC)
	clock := func() time.Time { return fixed }
	store := ledger.NewStore(ledger.StoreConfig{Clock: clock, IDProvider: ids})
	harness := testHarness{
		store:     store,
		persister: &recordingPersister{},
		notifier:  &recordingNotifier{},
		metrics:   &recordingMetrics{},
	}
	service, err := NewService(ServiceConfig{
		Store:      store,
		Persister:  harness.persister,
		Notifier:   harness.notifier,
		Metrics:    harness.metrics,
		IDProvider: ids,
		Clock:      clock,
		Logger:     logger,
	})
	require.NoError(t, err)
	harness.service = service
	return harness
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	parsed, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return parsed
}

func requireDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(t, expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func (h testHarness) openSession(t *testing.T) (ledger.Session, Actor) {
	t.Helper()
	session, err := h.service.CreateSession(context.Background(), CreateSessionCommand{Name: "Friday dinner", HostName: "Ana"})
	require.NoError(t, err)
	return session, Actor{SessionID: session.ID, ParticipantID: session.HostID, Role: RoleHost}
}

func (h testHarness) join(t *testing.T, sessionID, name string) (ledger.Diner, Actor) {
	t.Helper()
	diner, err := h.service.JoinSession(context.Background(), sessionID, name)
	require.NoError(t, err)
	return diner, Actor{SessionID: sessionID, ParticipantID: diner.ID, Role: RoleDiner}
}

func (h testHarness) addItem(t *testing.T, actor Actor, dinerID, price string, quantity int64) ledger.LineItem {
	t.Helper()
	item, err := h.service.AddLineItem(context.Background(), actor, AddLineItemCommand{
		SessionID:   actor.SessionID,
		DinerID:     dinerID,
		Description: "Dish",
		UnitPrice:   dec(t, price),
		Quantity:    quantity,
	})
	require.NoError(t, err)
	return item
}
