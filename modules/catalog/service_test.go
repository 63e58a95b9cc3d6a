package catalog

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	domain "github.com/example/store-db/domain/catalog"
	"github.com/example/store-db/modules/database"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
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

// stubSessions fails every session with err without running fn.
type stubSessions struct {
	state database.State
	err   error
}

func (s *stubSessions) WithSession(_ context.Context, fn func(tx *gorm.DB) error) error {
	return s.err
}

func (s *stubSessions) State() database.State { return s.state }
func (s *stubSessions) IsAvailable() bool     { return s.state.Available() }

func newTestManager(t *testing.T, cfg database.Config, opts ...database.ManagerOption) *database.Manager {
	t.Helper()
	cfg.HealthCheckInterval = 0
	opts = append([]database.ManagerOption{database.WithModels(domain.Models()...)}, opts...)
	m, err := database.NewManager(cfg, &mockLogger{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func newTestService(t *testing.T) (*Service, *database.Manager) {
	t.Helper()
	cfg := database.DefaultConfig()
	database.WithSQLitePath(":memory:")(&cfg)
	m := newTestManager(t, cfg)
	require.Equal(t, database.StateConnected, m.Initialize(context.Background()))
	return NewService(m, &mockLogger{}), m
}

func mustAdd(t *testing.T, s *Service, p NewProduct) *Product {
	t.Helper()
	product, err := s.AddProduct(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, product)
	return product
}

func orderStats(t *testing.T, m *database.Manager, productID uint) (count int64, sum int) {
	t.Helper()
	err := m.WithSession(context.Background(), func(tx *gorm.DB) error {
		orders := tx.Model(&domain.Order{}).Where("product_id = ?", productID)
		if err := orders.Session(&gorm.Session{}).Count(&count).Error; err != nil {
			return err
		}
		return orders.Session(&gorm.Session{}).Select("COALESCE(SUM(quantity), 0)").Scan(&sum).Error
	})
	require.NoError(t, err)
	return count, sum
}

func requireKind(t *testing.T, err error, kind Kind, code string) *Error {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "expected *Error, got %T: %v", err, err)
	assert.Equal(t, kind, e.Kind)
	assert.Equal(t, code, e.Code)
	return e
}

func TestService_WidgetScenario(t *testing.T) {
	s, m := newTestService(t)
	ctx := context.Background()

	widget := mustAdd(t, s, NewProduct{Name: "Widget", Inventory: 5, Price: 9.99})
	assert.NotZero(t, widget.ID)

	order, err := s.OrderProduct(ctx, OrderRequest{ProductID: widget.ID, Quantity: 3, CustomerIdentifier: "cust-1"})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, widget.ID, order.ProductID)
	assert.Equal(t, 3, order.Quantity)
	assert.Equal(t, "cust-1", order.CustomerIdentifier)

	current, err := s.GetProductByID(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Inventory)

	_, err = s.OrderProduct(ctx, OrderRequest{ProductID: widget.ID, Quantity: 3, CustomerIdentifier: "cust-2"})
	e := requireKind(t, err, KindBusiness, CodeInsufficientInventory)
	assert.Equal(t, "Not enough inventory for product 'Widget'. Available: 2, Requested: 3", e.Error())
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	current, err = s.GetProductByID(ctx, widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Inventory)

	count, sum := orderStats(t, m, widget.ID)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 3, sum)
}

func TestService_OrderUnknownProduct(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.OrderProduct(context.Background(), OrderRequest{ProductID: 999, Quantity: 1, CustomerIdentifier: "cust-1"})

	e := requireKind(t, err, KindBusiness, CodeProductNotFound)
	assert.Equal(t, "Product with id 999 not found.", e.Error())
	assert.NotErrorIs(t, err, ErrOperationFailed)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestService_OrderValidation(t *testing.T) {
	s, m := newTestService(t)
	product := mustAdd(t, s, NewProduct{Name: "Gadget", Inventory: 10, Price: 1})

	tests := []struct {
		name string
		req  OrderRequest
		code string
	}{
		{"zero quantity", OrderRequest{ProductID: product.ID, Quantity: 0, CustomerIdentifier: "c"}, CodeInvalidQuantity},
		{"negative quantity", OrderRequest{ProductID: product.ID, Quantity: -2, CustomerIdentifier: "c"}, CodeInvalidQuantity},
		{"empty customer", OrderRequest{ProductID: product.ID, Quantity: 1}, CodeInvalidCustomer},
		{"blank customer", OrderRequest{ProductID: product.ID, Quantity: 1, CustomerIdentifier: "   "}, CodeInvalidCustomer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.OrderProduct(context.Background(), tt.req)
			requireKind(t, err, KindBusiness, tt.code)
		})
	}

	current, err := s.GetProductByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Inventory)
	count, _ := orderStats(t, m, product.ID)
	assert.Zero(t, count)
}

func TestService_InventoryNeverNegative(t *testing.T) {
	s, m := newTestService(t)
	ctx := context.Background()
	product := mustAdd(t, s, NewProduct{Name: "Bolt", Inventory: 20, Price: 0.1})

	quantities := []int{3, 7, 11, 5, 2, 4, 1}
	for i, q := range quantities {
		_, err := s.OrderProduct(ctx, OrderRequest{ProductID: product.ID, Quantity: q, CustomerIdentifier: fmt.Sprintf("cust-%d", i)})
		if err != nil {
			requireKind(t, err, KindBusiness, CodeInsufficientInventory)
		}

		current, err := s.GetProductByID(ctx, product.ID)
		require.NoError(t, err)
		_, sum := orderStats(t, m, product.ID)
		assert.Equal(t, 20-sum, current.Inventory)
		assert.GreaterOrEqual(t, current.Inventory, 0)
	}
}

func TestService_ConcurrentOrders(t *testing.T) {
	cfg := database.DefaultConfig()
	database.WithSQLitePath(filepath.Join(t.TempDir(), "store.db"))(&cfg)
	m := newTestManager(t, cfg)
	require.Equal(t, database.StateConnected, m.Initialize(context.Background()))
	s := NewService(m, &mockLogger{})

	t.Run("exactly one of two wins", func(t *testing.T) {
		product := mustAdd(t, s, NewProduct{Name: "Last One", Inventory: 3, Price: 5})

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.OrderProduct(context.Background(),
					OrderRequest{ProductID: product.ID, Quantity: 3, CustomerIdentifier: fmt.Sprintf("cust-%d", i)})
			}(i)
		}
		wg.Wait()

		var succeeded int
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			requireKind(t, err, KindBusiness, CodeInsufficientInventory)
		}
		assert.Equal(t, 1, succeeded)

		current, err := s.GetProductByID(context.Background(), product.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, current.Inventory)
	})

	t.Run("many small orders", func(t *testing.T) {
		product := mustAdd(t, s, NewProduct{Name: "Crowded", Inventory: 5, Price: 1})

		const callers = 10
		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.OrderProduct(context.Background(),
					OrderRequest{ProductID: product.ID, Quantity: 1, CustomerIdentifier: fmt.Sprintf("cust-%d", i)})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		var succeeded int
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			requireKind(t, err, KindBusiness, CodeInsufficientInventory)
		}
		assert.Equal(t, 5, succeeded)

		count, sum := orderStats(t, m, product.ID)
		assert.Equal(t, int64(5), count)
		assert.Equal(t, 5, sum)
	})

	opened, closed := m.SessionCounts()
	assert.Equal(t, opened, closed)
}

func TestService_AddProduct(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	desc := "A sturdy thing"

	t.Run("defaults", func(t *testing.T) {
		p := mustAdd(t, s, NewProduct{Name: "Plain"})
		assert.Equal(t, 0, p.Inventory)
		assert.Equal(t, 0.0, p.Price)
		assert.Nil(t, p.Description)
	})

	t.Run("full record", func(t *testing.T) {
		p := mustAdd(t, s, NewProduct{Name: "Sturdy", Description: &desc, Inventory: 4, Price: 12.5})
		assert.Equal(t, "Sturdy", p.Name)
		require.NotNil(t, p.Description)
		assert.Equal(t, desc, *p.Description)

		stored, err := s.GetProductByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, stored)
	})

	t.Run("name stored verbatim", func(t *testing.T) {
		p := mustAdd(t, s, NewProduct{Name: " Padded "})
		assert.Equal(t, " Padded ", p.Name)

		byName, err := s.GetProductByName(ctx, " Padded ")
		require.NoError(t, err)
		assert.Equal(t, p, byName, "a name finds the product it was added as")
	})

	t.Run("invalid", func(t *testing.T) {
		for _, p := range []NewProduct{
			{Name: ""},
			{Name: "  "},
			{Name: "neg-inventory", Inventory: -1},
			{Name: "neg-price", Price: -0.01},
		} {
			_, err := s.AddProduct(ctx, p)
			requireKind(t, err, KindBusiness, CodeInvalidProduct)
			assert.ErrorIs(t, err, ErrInvalidProduct)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		mustAdd(t, s, NewProduct{Name: "Unique"})
		_, err := s.AddProduct(ctx, NewProduct{Name: "Unique"})

		e := requireKind(t, err, KindOperation, CodeConstraintViolation)
		assert.Contains(t, e.Error(), "Database operation failed")
		assert.NotNil(t, e.Unwrap())
	})
}

func TestService_Lookups(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	hammer := mustAdd(t, s, NewProduct{Name: "Hammer", Inventory: 1})

	byID, err := s.GetProductByID(ctx, hammer.ID)
	require.NoError(t, err)
	assert.Equal(t, hammer, byID)

	missing, err := s.GetProductByID(ctx, hammer.ID+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	byName, err := s.GetProductByName(ctx, "Hammer")
	require.NoError(t, err)
	assert.Equal(t, hammer, byName)

	for _, name := range []string{"hammer", "Ham", "Hammer "} {
		got, err := s.GetProductByName(ctx, name)
		require.NoError(t, err)
		assert.Nil(t, got, "name lookup is exact: %q", name)
	}
}

func TestService_Pagination(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		mustAdd(t, s, NewProduct{Name: fmt.Sprintf("Item %d", i)})
	}

	tests := []struct {
		name        string
		skip, limit int
		wantNames   []string
	}{
		{"first page", 0, 2, []string{"Item 1", "Item 2"}},
		{"second page", 2, 2, []string{"Item 3", "Item 4"}},
		{"tail", 4, 2, []string{"Item 5"}},
		{"skip beyond total", 10, 2, []string{}},
		{"zero limit", 0, 0, []string{}},
		{"limit above max is capped", 0, MaxPageSize * 2, []string{"Item 1", "Item 2", "Item 3", "Item 4", "Item 5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := s.GetProducts(ctx, tt.skip, tt.limit)
			require.NoError(t, err)
			names := make([]string, 0, len(products))
			for _, p := range products {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}

	t.Run("negative values", func(t *testing.T) {
		_, err := s.GetProducts(ctx, -1, 10)
		requireKind(t, err, KindBusiness, CodeInvalidPagination)
		_, err = s.SearchProducts(ctx, "item", 0, -1)
		requireKind(t, err, KindBusiness, CodeInvalidPagination)
	})
}

func TestService_SearchProducts(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	cable := "USB-C charging cable"
	mustAdd(t, s, NewProduct{Name: "Cable", Description: &cable})
	mustAdd(t, s, NewProduct{Name: "Charger"})
	mustAdd(t, s, NewProduct{Name: "Lamp"})

	tests := []struct {
		query string
		want  []string
	}{
		{"CHARG", []string{"Cable", "Charger"}},
		{"lamp", []string{"Lamp"}},
		{"usb-c", []string{"Cable"}},
		{"nothing", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			products, err := s.SearchProducts(ctx, tt.query, 0, DefaultPageSize)
			require.NoError(t, err)
			names := make([]string, 0, len(products))
			for _, p := range products {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestService_RemoveProduct(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	t.Run("twice", func(t *testing.T) {
		p := mustAdd(t, s, NewProduct{Name: "Ephemeral", Inventory: 2})

		removed, err := s.RemoveProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, removed)

		removed, err = s.RemoveProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, removed)
	})

	t.Run("with orders", func(t *testing.T) {
		p := mustAdd(t, s, NewProduct{Name: "Ordered", Inventory: 2})
		_, err := s.OrderProduct(ctx, OrderRequest{ProductID: p.ID, Quantity: 1, CustomerIdentifier: "c"})
		require.NoError(t, err)

		_, err = s.RemoveProduct(ctx, p.ID)
		requireKind(t, err, KindOperation, CodeConstraintViolation)

		still, err := s.GetProductByID(ctx, p.ID)
		require.NoError(t, err)
		assert.NotNil(t, still)
	})
}

func TestService_Unavailable(t *testing.T) {
	ctx := context.Background()

	for _, state := range database.States {
		if state.Available() {
			continue
		}
		t.Run(state.String(), func(t *testing.T) {
			sessions := &stubSessions{state: state, err: &database.UnavailableError{State: state}}
			s := NewService(sessions, &mockLogger{})

			calls := map[string]func() error{
				"get_products": func() error { _, err := s.GetProducts(ctx, 0, 10); return err },
				"get_by_id":    func() error { _, err := s.GetProductByID(ctx, 1); return err },
				"get_by_name":  func() error { _, err := s.GetProductByName(ctx, "x"); return err },
				"search":       func() error { _, err := s.SearchProducts(ctx, "x", 0, 10); return err },
				"add":          func() error { _, err := s.AddProduct(ctx, NewProduct{Name: "x"}); return err },
				"remove":       func() error { _, err := s.RemoveProduct(ctx, 1); return err },
				"order": func() error {
					_, err := s.OrderProduct(ctx, OrderRequest{ProductID: 1, Quantity: 0})
					return err
				},
			}
			for name, call := range calls {
				err := call()
				e := requireKind(t, err, KindUnavailable, CodeUnavailable)
				assert.Equal(t, state, e.State, name)
				assert.Equal(t, state.Message(), e.Error(), name)
			}

			assert.False(t, s.IsAvailable())
			report, err := s.Connectivity(ctx)
			require.NoError(t, err)
			assert.Equal(t, state, report.DatabaseStatus)
			assert.False(t, report.CanPerformOperations)
			assert.Equal(t, "Use this tool to check database status before calling other tools", report.Recommendation)
		})
	}
}

type failingSchema struct{}

func (failingSchema) Ensure(context.Context, *gorm.DB) error {
	return &database.MigrationError{Err: errors.New("permission denied for schema public")}
}

func TestService_MigrationFailedIsDistinct(t *testing.T) {
	cfg := database.DefaultConfig()
	database.WithSQLitePath(":memory:")(&cfg)
	m := newTestManager(t, cfg, database.WithSchema(failingSchema{}))
	require.Equal(t, database.StateMigrationFailed, m.Initialize(context.Background()))
	s := NewService(m, &mockLogger{})

	_, err := s.GetProducts(context.Background(), 0, 10)

	e := requireKind(t, err, KindUnavailable, CodeUnavailable)
	assert.Equal(t, database.StateMigrationFailed, e.State)
	assert.Contains(t, e.Error(), "migration")
	assert.Contains(t, e.Error(), "schema")
	assert.NotEqual(t, database.StateDisconnected.Message(), e.Error())
}

func TestService_OrderRolledBackOnStorageFailure(t *testing.T) {
	s, m := newTestService(t)
	product := mustAdd(t, s, NewProduct{Name: "Widget", Inventory: 5, Price: 9.99})

	hiccup := errors.New("disk I/O hiccup")
	require.NoError(t, m.WithSession(context.Background(), func(tx *gorm.DB) error {
		return tx.Callback().Create().Before("gorm:create").Register("test:fail_orders", func(db *gorm.DB) {
			if db.Statement.Table == "orders" {
				_ = db.AddError(hiccup)
			}
		})
	}))

	_, err := s.OrderProduct(context.Background(), OrderRequest{
		ProductID:          product.ID,
		Quantity:           3,
		CustomerIdentifier: "cust-1",
	})

	requireKind(t, err, KindOperation, CodeOperationFailed)
	assert.ErrorIs(t, err, hiccup)

	current, err := s.GetProductByID(context.Background(), product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, current.Inventory, "decrement rolled back with the failed insert")
	count, _ := orderStats(t, m, product.ID)
	assert.Zero(t, count)
}

func TestService_OperationFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"unexpected", errors.New("boom"), CodeOperationFailed},
		{"connection dropped", fmt.Errorf("exec: %w", driver.ErrBadConn), CodeConnectionLost},
		{"constraint", gorm.ErrDuplicatedKey, CodeConstraintViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(&stubSessions{state: database.StateConnected, err: tt.err}, &mockLogger{})

			_, err := s.GetProducts(context.Background(), 0, 10)

			e := requireKind(t, err, KindOperation, tt.code)
			assert.ErrorIs(t, err, tt.err)
			assert.Contains(t, e.Error(), "Database operation failed: ")
		})
	}
}

func TestService_Connectivity(t *testing.T) {
	s, _ := newTestService(t)

	report, err := s.Connectivity(context.Background())

	require.NoError(t, err)
	assert.Equal(t, database.StateConnected, report.DatabaseStatus)
	assert.True(t, report.DatabaseAvailable)
	assert.True(t, report.CanPerformOperations)
	assert.Equal(t, "Database is connected and ready for operations", report.StatusMessage)
	assert.Equal(t, "Database is ready for operations", report.Recommendation)
	assert.False(t, report.Timestamp.IsZero())
}
