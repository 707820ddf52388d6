package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/client"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/config"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/internal/worker"
	"github.com/QubitCodes/ArmouredVehiclesApis-sub002/pkg/log"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.Log.Level)

	cliApp := &cli.App{
		Name:  "marketplace-api",
		Usage: "multi-vendor checkout, settlement and payouts",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start http server and unlock worker",
				Action: func(ctx *cli.Context) error {
					return serve(ctx.Context, cfg)
				},
			},
			{
				Name:  "unlock",
				Usage: "run one unlock batch and exit",
				Action: func(ctx *cli.Context) error {
					return unlockOnce(ctx.Context, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "create or update database tables",
				Action: func(ctx *cli.Context) error {
					return migrate(cfg)
				},
			},
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		log.L.Fatal("command failed", zap.Error(err))
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	eg, groupCtx := errgroup.WithContext(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.L.Info("starting HTTP server", zap.String("addr", serverAddr))

	eg.Go(func() error {
		if err := a.server.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	workerCtx, stopWorker := context.WithCancel(groupCtx)
	defer stopWorker()
	if cfg.Unlock.Enabled {
		eg.Go(func() error {
			return a.worker.Run(workerCtx)
		})
	}

	eg.Go(func() error {
		defer func() {
			log.L.Info("signal received, starting graceful shutdown")
			stopWorker()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				log.L.Error("HTTP server shutdown error", zap.Error(err))
			}
		}()

		select {
		case <-groupCtx.Done():
			return groupCtx.Err()
		case <-sigChan:
			return nil
		}
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.L.Info("server stopped")
	return nil
}

func unlockOnce(ctx context.Context, cfg *config.Config) error {
	c, err := newCore(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	result := worker.NewUnlockWorker(c.unlock, cfg.Unlock.Interval).RunOnce(ctx)
	if result == nil {
		return errors.New("unlock batch failed")
	}
	fmt.Printf("unlocked %d entries (%s), %d failed\n", result.UnlockedCount, result.TotalAmount.StringFixed(2), result.Failed)
	return nil
}

func migrate(cfg *config.Config) error {
	db, err := client.InitDBClient(cfg)
	if err != nil {
		return err
	}
	if err := client.Migrate(db); err != nil {
		return err
	}
	log.L.Info("migration complete")
	return nil
}
