// Command ledgerctl runs maintenance tasks against the configured ledger:
// schema migrations and report exports.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"retailledger/internal/app"
	"retailledger/internal/config"
	"retailledger/internal/report"
	pgstore "retailledger/internal/store/postgres"
	"retailledger/internal/store/sqlite"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  migrate                 apply pending schema migrations
  export-session -id N    write the session workbook to the export sink
  export-sale -id N       write the sale workbook to the export sink
  dump                    write a JSON snapshot of every table to the export sink
`

var errUsage = errors.New("usage")

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.Load()
	log := config.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, log, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		log.WithError(err).Error("ledgerctl failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log logrus.FieldLogger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "migrate":
		return migrate(ctx, cfg, out)
	case "export-session", "export-sale":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.Int64("id", 0, "Required: record id")
		if err := fs.Parse(rest); err != nil || *id <= 0 {
			return fmt.Errorf("%w: %s needs -id", errUsage, cmd)
		}
		return export(ctx, cfg, log, out, cmd, *id)
	case "dump":
		return export(ctx, cfg, log, out, cmd, 0)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func migrate(ctx context.Context, cfg config.Config, out io.Writer) error {
	switch cfg.StoreDriver() {
	case "postgres":
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
	case "sqlite":
		repo, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		if err := repo.Close(); err != nil {
			return err
		}
	default:
		fmt.Fprintln(out, "memory store has no schema; nothing to migrate")
		return nil
	}
	fmt.Fprintf(out, "%s schema is up to date\n", cfg.StoreDriver())
	return nil
}

func export(ctx context.Context, cfg config.Config, log logrus.FieldLogger, out io.Writer, cmd string, id int64) error {
	ledger, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ledger.Close()

	sink, closeSink, err := app.OpenSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	var (
		buf         bytes.Buffer
		name        string
		contentType = report.XLSXContentType
		now         = time.Now().UTC()
	)
	switch cmd {
	case "export-session":
		r, err := ledger.Service.SessionReport(ctx, id)
		if err != nil {
			return err
		}
		if err := report.WriteSessionWorkbook(&buf, r); err != nil {
			return err
		}
		name = report.ObjectName("session", id, now, "xlsx")
	case "export-sale":
		r, err := ledger.Service.SaleReport(ctx, id)
		if err != nil {
			return err
		}
		if err := report.WriteSaleWorkbook(&buf, r); err != nil {
			return err
		}
		name = report.ObjectName("sale", id, now, "xlsx")
	default:
		snap, err := ledger.Service.Snapshot(ctx)
		if err != nil {
			return err
		}
		if err := report.WriteSnapshotJSON(&buf, snap); err != nil {
			return err
		}
		name = report.ObjectName("snapshot", 0, now, "json")
		contentType = report.JSONContentType
	}

	location, err := sink.Put(ctx, name, contentType, &buf)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, location)
	return nil
}
