package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"wheatr-server/internal/config"
	"wheatr-server/internal/db"
	"wheatr-server/internal/ingest"
	"wheatr-server/internal/ingest/aemet"
	"wheatr-server/internal/logging"
	"wheatr-server/internal/migrate"
	"wheatr-server/internal/modules/weather/repository"
)

const usage = `usage: %s <command>
  migrate  apply pending schema migrations
  ingest   download AEMET observations once and store them
  stations list stored stations
`

var version = "dev"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg, version, "wheatr-admin"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, command string) error {
	conn, err := db.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	switch command {
	case "migrate":
		if err := migrate.Run(ctx, conn); err != nil {
			return err
		}
		fmt.Println("migrations applied")

	case "ingest":
		if err := migrate.Run(ctx, conn); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, cfg.IngestTimeout)
		defer cancel()
		job := ingest.NewJob(aemet.NewClient(cfg, nil, slog.Default()), repository.NewRepository(conn), nil, slog.Default())
		res, err := job.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("stored %d stations, %d new observations\n", res.Stations, res.Observations)

	case "stations":
		stations, err := repository.NewRepository(conn).GetStations(ctx)
		if err != nil {
			return err
		}
		for _, s := range stations {
			fmt.Printf("%-8s %10.5f %11.5f  %s\n", s.ID, s.Lat, s.Lon, s.Name)
		}

	default:
		return fmt.Errorf("unknown command (see %s without arguments)", os.Args[0])
	}
	return nil
}
