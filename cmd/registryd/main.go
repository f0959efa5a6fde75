package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	backend "github.com/agora-tickets/registry"
	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"
)

var cfg struct {
	dbPath   string
	port     int
	issuer   string
	payments string

	initAdmin  string
	initWallet string
	initFeeBps int
}

func init() {
	flag.StringVar(&cfg.dbPath, "db", "registry.db", "database path")
	flag.IntVar(&cfg.port, "port", 8080, "http port")
	flag.StringVar(&cfg.issuer, "issuer", "", "accepted token issuer")
	flag.StringVar(&cfg.payments, "payments", "", "payment service principal allowed to record sales")
	flag.StringVar(&cfg.initAdmin, "admin", "", "bootstrap admin principal")
	flag.StringVar(&cfg.initWallet, "wallet", "", "bootstrap payout wallet address")
	flag.IntVar(&cfg.initFeeBps, "fee", 0, "bootstrap platform fee in basis points")

	flag.Parse()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	db, err := badger.Open(badger.DefaultOptions(cfg.dbPath))
	if err != nil {
		slog.Error("open db failed", slog.Any("err", err))
		return
	}

	slog.Info("registry rpc launch", "ver", "0.1")

	svr := backend.NewServer(db, backend.ServerConfig{
		Issuer:         cfg.issuer,
		PaymentService: cfg.payments,
	})

	if cfg.initAdmin != "" {
		err := svr.Engine().Initialize(cfg.initAdmin, cfg.initWallet, cfg.initFeeBps)
		if err != nil && !errors.Is(err, backend.ErrAlreadyInitialized) {
			slog.Error("bootstrap failed", slog.Any("err", err))
			return
		}
	}

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.port),
		Handler: svr.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", slog.String("addr", s.Addr))
		return s.ListenAndServe()
	})

	g.Go(func() error {
		<-ctx.Done()

		return s.Shutdown(ctx)
	})

	g.Go(func() error {
		return runGC(ctx, db, time.Minute)
	})

	_ = g.Wait()
}

func runGC(ctx context.Context, db *badger.DB, dur time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dur):
			_ = db.RunValueLogGC(0.7)
		}
	}
}
