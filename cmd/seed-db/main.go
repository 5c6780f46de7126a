// Command seed-db loads the embedded campus menu into the database and
// provisions API keys for the student ordering kiosk and the canteen staff
// dashboard. Safe to run repeatedly: everything is upserted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campuskitchen/canteen-api/db"
	"github.com/campuskitchen/canteen-api/internal/api"
	"github.com/campuskitchen/canteen-api/internal/domain/auth"
	"github.com/campuskitchen/canteen-api/internal/domain/menu"
	"github.com/campuskitchen/canteen-api/internal/postgres"
)

type menuItemJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Available   bool            `json:"available"`
}

func main() {
	var (
		databaseURL string
		studentKey  string
		managerKey  string
		pepper      string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&studentKey, "student-key", "", "student API key to seed (or CANTEEN_SEED_STUDENT_KEY env)")
	flag.StringVar(&managerKey, "manager-key", "", "manager API key to seed (or CANTEEN_SEED_MANAGER_KEY env)")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CANTEEN_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if studentKey == "" {
		studentKey = os.Getenv("CANTEEN_SEED_STUDENT_KEY")
	}
	if managerKey == "" {
		managerKey = os.Getenv("CANTEEN_SEED_MANAGER_KEY")
	}
	if studentKey == "" || managerKey == "" {
		slog.Error("both API keys are required: set --student-key and --manager-key")
		os.Exit(1)
	}
	if pepper == "" {
		pepper = os.Getenv("CANTEEN_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, studentKey, managerKey, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, studentKey, managerKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, postgres.NewMenuRepository(pool)); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	apikeys := postgres.NewAPIKeyRepository(pool)
	if err := seedAPIKey(ctx, apikeys, "kiosk", "Student kiosk key", auth.RoleStudent, studentKey, pepper); err != nil {
		return errors.Wrap(err, "seed student key")
	}
	if err := seedAPIKey(ctx, apikeys, "dashboard", "Staff dashboard key", auth.RoleManager, managerKey, pepper); err != nil {
		return errors.Wrap(err, "seed manager key")
	}

	return nil
}

func seedMenu(ctx context.Context, repo *postgres.MenuRepository) error {
	var items []menuItemJSON
	if err := json.Unmarshal(db.SeedMenu, &items); err != nil {
		return errors.Wrap(err, "parse embedded menu")
	}

	slog.Info("upserting menu items", slog.Int("count", len(items)))

	for _, it := range items {
		// IDs derive from the item name, so repeated seeding updates rows
		// instead of duplicating them.
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(it.Name)).String()
		if err := repo.Upsert(ctx, &menu.Item{
			ID:          id,
			Name:        it.Name,
			Description: it.Description,
			Price:       it.Price,
			Category:    it.Category,
			Available:   it.Available,
		}); err != nil {
			return errors.Wrapf(err, "upsert menu item %s", it.Name)
		}

		slog.Info("upserted menu item", slog.String("id", id), slog.String("name", it.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, id, name string, role auth.Role, key, pepper string) error {
	if err := repo.Upsert(ctx, &auth.APIKeyInfo{
		ID:      id,
		KeyHash: api.HashKey([]byte(pepper), key),
		Name:    name,
		Role:    role,
	}); err != nil {
		return errors.Wrapf(err, "upsert API key %s", id)
	}

	slog.Info("upserted API key", slog.String("id", id), slog.String("role", string(role)))

	return nil
}
