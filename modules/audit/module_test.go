package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/store-db/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)         {}
func (m *mockLogger) Info(msg string, args ...any)          {}
func (m *mockLogger) Warn(msg string, args ...any)          {}
func (m *mockLogger) Error(msg string, args ...any)         {}
func (m *mockLogger) With(args ...any) types.Logger         { return m }
func (m *mockLogger) WithError(err error) types.Logger      { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

func TestLog_Bounded(t *testing.T) {
	log := NewLog(3)
	assert.Empty(t, log.Recent(10))

	for i := 1; i <= 5; i++ {
		log.Record(Activity{EventID: fmt.Sprintf("e%d", i)})
	}

	recent := log.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "e5", recent[0].EventID)
	assert.Equal(t, "e4", recent[1].EventID)
	assert.Equal(t, "e3", recent[2].EventID)
	assert.Equal(t, int64(5), log.Total())

	recent = log.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "e5", recent[0].EventID)
}

func TestLog_PartiallyFilled(t *testing.T) {
	log := NewLog(0)
	log.Record(Activity{EventID: "a"})
	log.Record(Activity{EventID: "b"})

	recent := log.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].EventID)
	assert.Equal(t, "a", recent[1].EventID)
}

func TestModule_Handlers(t *testing.T) {
	m := NewModule(10, &mockLogger{})
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, m.handleProductAdded(ctx, events.ProductAddedEvent{
		EventID: "1", ProductID: 7, Name: "Widget", Inventory: 10, Price: 2.5, AddedAt: at,
	}, nil))
	require.NoError(t, m.handleOrderPlaced(ctx, events.OrderPlacedEvent{
		EventID: "2", OrderID: 1, ProductID: 7, ProductName: "Widget", Quantity: 3,
		CustomerIdentifier: "alice", RemainingInventory: 7, PlacedAt: at.Add(time.Minute),
	}, nil))
	require.NoError(t, m.handleProductRemoved(ctx, events.ProductRemovedEvent{
		EventID: "3", ProductID: 7, Name: "Widget", RemovedAt: at.Add(2 * time.Minute),
	}, nil))

	resp, err := m.handleRecent(ctx, RecentRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	require.Len(t, resp.Activities, 3)

	assert.Equal(t, TypeProductRemoved, resp.Activities[0].Type)
	assert.Equal(t, "Product 'Widget' removed", resp.Activities[0].Summary)

	assert.Equal(t, TypeOrderPlaced, resp.Activities[1].Type)
	assert.Equal(t, uint(1), resp.Activities[1].OrderID)
	assert.Equal(t, "alice ordered 3 x 'Widget', 7 left", resp.Activities[1].Summary)

	assert.Equal(t, TypeProductAdded, resp.Activities[2].Type)
	assert.Equal(t, "Product 'Widget' added with 10 in stock at 2.50", resp.Activities[2].Summary)
	assert.Equal(t, at, resp.Activities[2].OccurredAt)

	resp, err = m.handleRecent(ctx, RecentRequest{Limit: 1}, nil)
	require.NoError(t, err)
	assert.Len(t, resp.Activities, 1)
}

func TestModule_Lifecycle(t *testing.T) {
	m := NewModule(5, &mockLogger{})
	assert.Equal(t, "audit", m.Name())
	assert.NoError(t, m.Start(context.Background()))
	assert.NoError(t, m.Stop(context.Background()))
}

func TestNewAdapter_NilContainer(t *testing.T) {
	assert.Panics(t, func() { NewAdapter(nil) })
}
