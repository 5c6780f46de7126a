// Command history-export dumps collected orders as gzip-compressed JSONL
// shards, one file per worker, for offline analysis of canteen demand.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/campuskitchen/canteen-api/internal/domain/order"
	"github.com/campuskitchen/canteen-api/internal/postgres"
)

const defaultShards = 3

// exportRecord is one JSONL line in a shard file.
type exportRecord struct {
	OrderID     string          `json:"order_id"`
	Token       string          `json:"token"`
	Total       decimal.Decimal `json:"total"`
	CompletedAt time.Time       `json:"completed_at"`
	Items       []exportLine    `json:"items"`
}

type exportLine struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func main() {
	var (
		databaseURL string
		outDir      string
		shards      int
		fromStr     string
		toStr       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outDir, "out-dir", "export", "output directory for shard files")
	flag.IntVar(&shards, "shards", defaultShards, "number of output shards")
	flag.StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD, inclusive), defaults to the beginning")
	flag.StringVar(&toStr, "to", "", "end date (YYYY-MM-DD, exclusive), defaults to now")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if shards < 1 {
		slog.Error("shards must be at least 1")
		os.Exit(1)
	}

	from, to, err := parseRange(fromStr, toStr)
	if err != nil {
		slog.Error("invalid date range", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outDir, shards, from, to); err != nil {
		slog.Error("export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("export completed successfully")
}

func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	to = time.Now()
	if toStr != "" {
		to, err = time.Parse(time.DateOnly, toStr)
		if err != nil {
			return from, to, errors.Wrap(err, "parse --to")
		}
	}
	if fromStr != "" {
		from, err = time.Parse(time.DateOnly, fromStr)
		if err != nil {
			return from, to, errors.Wrap(err, "parse --from")
		}
	}
	if !from.Before(to) {
		return from, to, errors.New("--from must be before --to")
	}
	return from, to, nil
}

func run(ctx context.Context, databaseURL, outDir string, shards int, from, to time.Time) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	store := postgres.NewOrderStore(pool)

	// One channel per shard; records are routed by order ID hash so reruns
	// place every order in the same shard.
	chans := make([]chan *order.CompletedOrder, shards)
	for i := range chans {
		chans[i] = make(chan *order.CompletedOrder, 256)
	}

	g, ctx := errgroup.WithContext(ctx)

	for i := range shards {
		g.Go(writeShard(ctx, filepath.Join(outDir, fmt.Sprintf("orders-%03d.jsonl.gz", i)), chans[i]))
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()

		count := 0
		err := store.ScanHistory(ctx, from, to, func(rec *order.CompletedOrder) error {
			h := fnv.New32a()
			h.Write([]byte(rec.ID))
			select {
			case chans[int(h.Sum32())%shards] <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
			count++
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "scan history")
		}

		slog.Info("scanned history", slog.Int("orders", count))
		return nil
	})

	return g.Wait()
}

// writeShard drains one channel into a gzip-compressed JSONL file.
func writeShard(ctx context.Context, path string, ch <-chan *order.CompletedOrder) func() error {
	return func() error {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "create %s", path)
		}
		defer f.Close()

		zw := pgzip.NewWriter(f)
		bw := bufio.NewWriter(zw)
		enc := json.NewEncoder(bw)

		n := 0
		for rec := range ch {
			out := exportRecord{
				OrderID:     rec.ID,
				Token:       rec.Token,
				Total:       rec.Total,
				CompletedAt: rec.CompletedAt,
				Items:       make([]exportLine, len(rec.Lines)),
			}
			for i, l := range rec.Lines {
				out.Items[i] = exportLine{
					ItemID:    l.ItemID,
					Name:      l.Name,
					Quantity:  l.Quantity,
					UnitPrice: l.UnitPrice,
				}
			}
			if err := enc.Encode(out); err != nil {
				return errors.Wrapf(err, "encode record %s", rec.ID)
			}
			n++
		}

		if err := bw.Flush(); err != nil {
			return errors.Wrapf(err, "flush %s", path)
		}
		if err := zw.Close(); err != nil {
			return errors.Wrapf(err, "close gzip %s", path)
		}

		slog.Info("shard written", slog.String("path", path), slog.Int("orders", n))

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
}
