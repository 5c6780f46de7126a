package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskitchen/canteen-api/internal/domain/auth"
	"github.com/campuskitchen/canteen-api/internal/domain/checkout"
	"github.com/campuskitchen/canteen-api/internal/domain/feedback"
	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/domain/order"
	"github.com/campuskitchen/canteen-api/internal/domain/stats"
)

const (
	testPepper = "test-pepper"
	studentKey = "student-secret"
	managerKey = "manager-secret"
)

// memMenuRepo is an in-memory menu.Repository preserving insertion order.
type memMenuRepo struct {
	mu    sync.Mutex
	order []string
	items map[string]menu.Item
}

func newMemMenuRepo() *memMenuRepo {
	return &memMenuRepo{items: make(map[string]menu.Item)}
}

func (m *memMenuRepo) List(context.Context) ([]menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]menu.Item, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *memMenuRepo) GetByID(_ context.Context, id string) (*menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, menu.ErrNotFound
	}
	return &it, nil
}

func (m *memMenuRepo) GetByIDs(_ context.Context, ids []string) ([]menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []menu.Item
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memMenuRepo) Insert(_ context.Context, it *menu.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = append(m.order, it.ID)
	m.items[it.ID] = *it
	return nil
}

func (m *memMenuRepo) Update(_ context.Context, it *menu.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[it.ID]; !ok {
		return menu.ErrNotFound
	}
	m.items[it.ID] = *it
	return nil
}

func (m *memMenuRepo) ToggleAvailability(_ context.Context, id string) (*menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, menu.ErrNotFound
	}
	it.Available = !it.Available
	m.items[id] = it
	return &it, nil
}

func (m *memMenuRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return menu.ErrNotFound
	}
	delete(m.items, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// memOrderStore is an in-memory order.Store.
type memOrderStore struct {
	mu      sync.Mutex
	live    map[string]order.Order
	history []order.CompletedOrder
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{live: make(map[string]order.Order)}
}

func (s *memOrderStore) InsertLive(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[o.ID] = *o
	return nil
}

func (s *memOrderStore) UpdateStatus(_ context.Context, id string, status order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.live[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	s.live[id] = o
	return nil
}

func (s *memOrderStore) MoveToHistory(_ context.Context, rec *order.CompletedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[rec.ID]; !ok {
		return order.ErrNotFound
	}
	delete(s.live, rec.ID)
	s.history = append(s.history, *rec)
	return nil
}

func (s *memOrderStore) ListLive(context.Context) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0, len(s.live))
	for _, o := range s.live {
		out = append(out, o)
	}
	return out, nil
}

func (s *memOrderStore) InHistory(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.history {
		if rec.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *memOrderStore) History(_ context.Context, limit int) ([]order.CompletedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.CompletedOrder, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func (s *memOrderStore) HistoryStats(_ context.Context, since time.Time) (*order.HistoryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hs := &order.HistoryStats{Revenue: decimal.Zero}
	for _, rec := range s.history {
		hs.Revenue = hs.Revenue.Add(rec.Total)
		if !rec.CompletedAt.Before(since) {
			hs.CompletedSince++
		}
	}
	return hs, nil
}

// memFeedbackRepo is an in-memory feedback.Repository.
type memFeedbackRepo struct {
	mu      sync.Mutex
	entries []feedback.Entry
}

func (m *memFeedbackRepo) Insert(_ context.Context, e *feedback.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memFeedbackRepo) List(_ context.Context, limit int) ([]feedback.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]feedback.Entry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memFeedbackRepo) AverageRating(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return 0, nil
	}
	sum := 0
	for _, e := range m.entries {
		sum += e.Rating
	}
	return float64(sum) / float64(len(m.entries)), nil
}

// memAuthRepo resolves API key hashes seeded via HashKey.
type memAuthRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (m *memAuthRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

type testEnv struct {
	handler  http.Handler
	menuRepo *memMenuRepo
	ledger   *order.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	menuRepo := newMemMenuRepo()
	for _, it := range []menu.Item{
		{ID: "samosa", Name: "Samosa", Price: decimal.NewFromInt(15), Category: "Snacks", Available: true},
		{ID: "chai", Name: "Masala Chai", Price: decimal.NewFromInt(15), Category: "Beverages", Available: true},
		{ID: "pav-bhaji", Name: "Pav Bhaji", Price: decimal.NewFromInt(55), Category: "Main Course", Available: false},
	} {
		require.NoError(t, menuRepo.Insert(t.Context(), &it))
	}

	store := newMemOrderStore()
	ledger, err := order.NewLedger(t.Context(), store, order.NewTokenGenerator(24*time.Hour))
	require.NoError(t, err)

	h := NewHandler(
		menu.NewService(menuRepo),
		checkout.NewCalculator(menuRepo),
		ledger,
		stats.NewAggregator(ledger, menuRepo),
		feedback.NewService(&memFeedbackRepo{}),
	)

	authRepo := &memAuthRepo{keys: map[string]*auth.APIKeyInfo{
		HashKey([]byte(testPepper), studentKey): {
			ID: "kiosk", KeyHash: HashKey([]byte(testPepper), studentKey), Role: auth.RoleStudent,
		},
		HashKey([]byte(testPepper), managerKey): {
			ID: "dashboard", KeyHash: HashKey([]byte(testPepper), managerKey), Role: auth.RoleManager,
		},
	}}
	security := NewSecurityHandler(authRepo, []byte(testPepper))

	return &testEnv{
		handler:  security.Authenticate(h.Routes()),
		menuRepo: menuRepo,
		ledger:   ledger,
	}
}

func (env *testEnv) do(t *testing.T, method, path, key string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestAPI_Authentication(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/menu", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing api key", body["message"])

	w, _ = env.do(t, http.MethodGet, "/api/menu", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/menu", studentKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_RoleEnforcement(t *testing.T) {
	env := newTestEnv(t)

	// Students cannot reach manager endpoints.
	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/api/orders"},
		{http.MethodGet, "/api/orders/history"},
		{http.MethodGet, "/api/stats"},
		{http.MethodGet, "/api/feedback"},
		{http.MethodPost, "/api/menu"},
	} {
		w, _ := env.do(t, probe.method, probe.path, studentKey, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", probe.method, probe.path)
	}

	w, _ := env.do(t, http.MethodGet, "/api/stats", managerKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_ListMenu(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/menu", studentKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 3)
	assert.Equal(t, "Samosa", items[0]["name"])
	assert.Equal(t, float64(15), items[0]["price"])
	assert.Equal(t, false, items[2]["available"])
}

func TestAPI_PlaceOrder(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
		"items": map[string]int{"samosa": 4},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.NotEmpty(t, body["orderId"])
	token, _ := body["token"].(string)
	assert.Len(t, token, 4)
	assert.Equal(t, float64(60), body["totalAmount"])
	assert.Equal(t, float64(10), body["estimatedTime"], "empty queue gives the base estimate")
}

func TestAPI_PlaceOrder_EstimateGrowsWithQueue(t *testing.T) {
	env := newTestEnv(t)

	var last float64
	for range 3 {
		w, body := env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
			"items": map[string]int{"chai": 1},
		})
		require.Equal(t, http.StatusCreated, w.Code)
		last, _ = body["estimatedTime"].(float64)
	}
	assert.Equal(t, float64(14), last, "two orders ahead add 2 minutes each")
}

func TestAPI_PlaceOrder_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
	}{
		{name: "empty cart", body: map[string]any{"items": map[string]int{}}, wantCode: http.StatusBadRequest},
		{name: "zero quantity", body: map[string]any{"items": map[string]int{"samosa": 0}}, wantCode: http.StatusUnprocessableEntity},
		{name: "unknown item", body: map[string]any{"items": map[string]int{"pizza": 1}}, wantCode: http.StatusUnprocessableEntity},
		{name: "unavailable item", body: map[string]any{"items": map[string]int{"pav-bhaji": 1}}, wantCode: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do(t, http.MethodPost, "/api/orders", studentKey, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestAPI_AdvanceOrder(t *testing.T) {
	env := newTestEnv(t)

	_, placed := env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
		"items": map[string]int{"samosa": 1},
	})
	id, _ := placed["orderId"].(string)
	require.NotEmpty(t, id)

	for _, want := range []string{"preparing", "ready", "collected"} {
		w, body := env.do(t, http.MethodPost, "/api/orders/"+id+"/advance", managerKey, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, body["status"])
	}

	// Advancing a collected order conflicts.
	w, _ := env.do(t, http.MethodPost, "/api/orders/"+id+"/advance", managerKey, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown order is not found.
	w, _ = env.do(t, http.MethodPost, "/api/orders/nope/advance", managerKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_AdvanceOrder_TargetPinning(t *testing.T) {
	env := newTestEnv(t)

	_, placed := env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
		"items": map[string]int{"chai": 1},
	})
	id, _ := placed["orderId"].(string)

	w, _ := env.do(t, http.MethodPost, "/api/orders/"+id+"/advance", managerKey, map[string]any{"to": "preparing"})
	require.Equal(t, http.StatusOK, w.Code)

	// The retried request must not advance the order a second time.
	w, _ = env.do(t, http.MethodPost, "/api/orders/"+id+"/advance", managerKey, map[string]any{"to": "preparing"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/orders/"+id+"/advance", managerKey, map[string]any{"to": "burnt"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_LiveOrdersAndHistory(t *testing.T) {
	env := newTestEnv(t)

	_, placed := env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
		"items": map[string]int{"samosa": 2},
	})
	id, _ := placed["orderId"].(string)

	w, _ := env.do(t, http.MethodGet, "/api/orders", managerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var live []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	require.Len(t, live, 1)
	assert.Equal(t, id, live[0]["orderId"])

	for range 3 {
		w, _ = env.do(t, http.MethodPost, "/api/orders/"+id+"/advance", managerKey, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, _ = env.do(t, http.MethodGet, "/api/orders", managerKey, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Empty(t, live)

	w, _ = env.do(t, http.MethodGet, "/api/orders/history", managerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0]["orderId"])
	assert.Equal(t, float64(30), history[0]["totalAmount"])
}

func TestAPI_Stats(t *testing.T) {
	env := newTestEnv(t)

	_, placed := env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
		"items": map[string]int{"samosa": 2},
	})
	id, _ := placed["orderId"].(string)
	for range 3 {
		env.do(t, http.MethodPost, "/api/orders/"+id+"/advance", managerKey, nil)
	}
	env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
		"items": map[string]int{"chai": 1},
	})

	w, body := env.do(t, http.MethodGet, "/api/stats", managerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, float64(2), body["todayOrders"])
	assert.Equal(t, float64(1), body["pendingOrders"])
	assert.Equal(t, float64(30), body["totalRevenue"])
	assert.Equal(t, float64(1), body["outOfStock"])
}

func TestAPI_ManageMenu(t *testing.T) {
	env := newTestEnv(t)

	w, created := env.do(t, http.MethodPost, "/api/menu", managerKey, map[string]any{
		"name":     "Idli",
		"price":    20,
		"category": "South Indian",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, created["available"])

	w, edited := env.do(t, http.MethodPatch, "/api/menu/"+id, managerKey, map[string]any{
		"price": 25,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Idli", edited["name"])
	assert.Equal(t, float64(25), edited["price"])

	w, toggled := env.do(t, http.MethodPost, "/api/menu/"+id+"/toggle", managerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, toggled["available"])

	// Unavailable items cannot be ordered.
	w, _ = env.do(t, http.MethodPost, "/api/orders", studentKey, map[string]any{
		"items": map[string]int{id: 1},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/menu/"+id, managerKey, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = env.do(t, http.MethodPatch, "/api/menu/"+id, managerKey, map[string]any{"price": 30})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_MenuValidation(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/menu", managerKey, map[string]any{
		"name": "Free Water", "price": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/menu", managerKey, map[string]any{
		"price": 10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Feedback(t *testing.T) {
	env := newTestEnv(t)

	w, entry := env.do(t, http.MethodPost, "/api/feedback", studentKey, map[string]any{
		"studentName": "Priya",
		"message":     "Loved the dosa",
		"rating":      5,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, entry["id"])

	w, _ = env.do(t, http.MethodPost, "/api/feedback", studentKey, map[string]any{
		"studentName": "Ravi",
		"message":     "",
		"rating":      3,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, listed := env.do(t, http.MethodGet, "/api/feedback", managerKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(5), listed["averageRating"])
	entries, _ := listed["entries"].([]any)
	require.Len(t, entries, 1)
}
