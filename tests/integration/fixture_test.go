//go:build integration

package integration

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/campuskitchen/canteen-api/internal/api"
	"github.com/campuskitchen/canteen-api/internal/domain/auth"
	"github.com/campuskitchen/canteen-api/internal/domain/checkout"
	"github.com/campuskitchen/canteen-api/internal/domain/feedback"
	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/domain/order"
	"github.com/campuskitchen/canteen-api/internal/domain/stats"
	"github.com/campuskitchen/canteen-api/pkg/health"
	"github.com/campuskitchen/canteen-api/pkg/httpmiddleware"
)

// startServer assembles the full HTTP stack over in-memory storage: the same
// routes, security, middleware chain, and probes as the real server, minus
// PostgreSQL and telemetry.
func startServer(ctx context.Context) *httptest.Server {
	menuRepo := newMenuStore()
	seedMenuItems(menuRepo)

	orderStore := newOrderStore()
	ledger, err := order.NewLedger(ctx, orderStore, order.NewTokenGenerator(24*time.Hour))
	if err != nil {
		log.Fatalf("create ledger: %v", err)
	}

	h := api.NewHandler(
		menu.NewService(menuRepo),
		checkout.NewCalculator(menuRepo),
		ledger,
		stats.NewAggregator(ledger, menuRepo),
		feedback.NewService(newFeedbackStore()),
	)
	security := api.NewSecurityHandler(newKeyStore(), []byte(testPepper))

	healthSvc := health.New()
	healthSvc.AddCheck(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", security.Authenticate(h.Routes()))

	handler := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: []string{"http://kiosk.campus.test"},
			AllowHeaders: []string{"Content-Type", api.APIKeyHeader},
			MaxAge:       86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    1000,
			Window: time.Minute,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zap.NewNop()),
		httpmiddleware.LogRequests(),
	)

	return httptest.NewServer(handler)
}

func seedMenuItems(repo *menuStore) {
	for _, it := range []menu.Item{
		{ID: "samosa", Name: "Samosa", Price: decimal.NewFromInt(15), Category: "Snacks", Available: true},
		{ID: "chai", Name: "Masala Chai", Price: decimal.NewFromInt(15), Category: "Beverages", Available: true},
		{ID: "biryani", Name: "Veg Biryani", Price: decimal.NewFromInt(80), Category: "Main Course", Available: true},
		{ID: "pav-bhaji", Name: "Pav Bhaji", Price: decimal.NewFromInt(55), Category: "Main Course", Available: false},
	} {
		if err := repo.Insert(context.Background(), &it); err != nil {
			log.Fatalf("seed menu: %v", err)
		}
	}
}

// menuStore is an in-memory menu.Repository preserving insertion order.
type menuStore struct {
	mu    sync.Mutex
	order []string
	items map[string]menu.Item
}

func newMenuStore() *menuStore {
	return &menuStore{items: make(map[string]menu.Item)}
}

func (m *menuStore) List(context.Context) ([]menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]menu.Item, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id])
	}
	return out, nil
}

func (m *menuStore) GetByID(_ context.Context, id string) (*menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, menu.ErrNotFound
	}
	return &it, nil
}

func (m *menuStore) GetByIDs(_ context.Context, ids []string) ([]menu.Item, error) {
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

func (m *menuStore) Insert(_ context.Context, it *menu.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = append(m.order, it.ID)
	m.items[it.ID] = *it
	return nil
}

func (m *menuStore) Update(_ context.Context, it *menu.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[it.ID]; !ok {
		return menu.ErrNotFound
	}
	m.items[it.ID] = *it
	return nil
}

func (m *menuStore) ToggleAvailability(_ context.Context, id string) (*menu.Item, error) {
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

func (m *menuStore) Delete(_ context.Context, id string) error {
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

// orderStore is an in-memory order.Store.
type orderStore struct {
	mu      sync.Mutex
	live    map[string]order.Order
	history []order.CompletedOrder
}

func newOrderStore() *orderStore {
	return &orderStore{live: make(map[string]order.Order)}
}

func (s *orderStore) InsertLive(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[o.ID] = *o
	return nil
}

func (s *orderStore) UpdateStatus(_ context.Context, id string, status order.Status) error {
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

func (s *orderStore) MoveToHistory(_ context.Context, rec *order.CompletedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[rec.ID]; !ok {
		return order.ErrNotFound
	}
	delete(s.live, rec.ID)
	s.history = append(s.history, *rec)
	return nil
}

func (s *orderStore) ListLive(context.Context) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0, len(s.live))
	for _, o := range s.live {
		out = append(out, o)
	}
	return out, nil
}

func (s *orderStore) InHistory(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.history {
		if rec.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *orderStore) History(_ context.Context, limit int) ([]order.CompletedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.CompletedOrder, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func (s *orderStore) HistoryStats(_ context.Context, since time.Time) (*order.HistoryStats, error) {
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

// feedbackStore is an in-memory feedback.Repository.
type feedbackStore struct {
	mu      sync.Mutex
	entries []feedback.Entry
}

func newFeedbackStore() *feedbackStore {
	return &feedbackStore{}
}

func (m *feedbackStore) Insert(_ context.Context, e *feedback.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *feedbackStore) List(_ context.Context, limit int) ([]feedback.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]feedback.Entry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *feedbackStore) AverageRating(context.Context) (float64, error) {
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

// keyStore resolves the two seeded API keys.
type keyStore struct {
	keys map[string]*auth.APIKeyInfo
}

func newKeyStore() *keyStore {
	studentHash := api.HashKey([]byte(testPepper), studentKey)
	managerHash := api.HashKey([]byte(testPepper), managerKey)
	return &keyStore{keys: map[string]*auth.APIKeyInfo{
		studentHash: {ID: "kiosk", KeyHash: studentHash, Name: "Student kiosk key", Role: auth.RoleStudent},
		managerHash: {ID: "dashboard", KeyHash: managerHash, Name: "Staff dashboard key", Role: auth.RoleManager},
	}}
}

func (k *keyStore) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := k.keys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}
