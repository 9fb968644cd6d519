package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type sequenceIDs struct {
	mu     sync.Mutex
	next   int
	failAt int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	if s.failAt > 0 && s.next == s.failAt {
		return "", fmt.Errorf("id exhausted at %d", s.next)
	}
	return fmt.Sprintf("id-%03d", s.next), nil
}

func newTestStore(t *testing.T) (*Store, *sequenceIDs) {
	t.Helper()
	ids := &sequenceIDs{}
	fixed := time.Date(2024, 5, 4, 20, 0, 0, 0, time.UTC)
	store := NewStore(StoreConfig{
		Clock:      func() time.Time { return fixed },
		IDProvider: ids,
	})
	return store, ids
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

func mustSession(t *testing.T, store *Store) Session {
	t.Helper()
	session, err := store.CreateSession("Friday dinner", "host-1", "Ana")
	require.NoError(t, err)
	return session
}

func mustDiner(t *testing.T, store *Store, sessionID, name string) Diner {
	t.Helper()
	diner, err := store.AddDiner(sessionID, name)
	require.NoError(t, err)
	return diner
}

func mustItem(t *testing.T, store *Store, sessionID, dinerID, price string, quantity int64) LineItem {
	t.Helper()
	item, err := store.AddLineItem(sessionID, NewLineItem{
		Description: "Item",
		UnitPrice:   dec(t, price),
		Quantity:    quantity,
		DinerID:     dinerID,
	})
	require.NoError(t, err)
	return item
}
