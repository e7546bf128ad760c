package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/httpapi"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/account"
	"github.com/corefin/ledger/internal/service/allocation"
	"github.com/corefin/ledger/internal/service/balance"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/service/posting"
	"github.com/corefin/ledger/internal/service/recurring"
	"github.com/corefin/ledger/internal/service/report"
	"github.com/corefin/ledger/internal/storage/memory"
	pgstore "github.com/corefin/ledger/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "ledgerd",
		Short:         "General ledger service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), rebuildCmd(), seedCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// stores is the full persistence surface the services are wired against. Both
// the memory and postgres backends satisfy it.
type stores interface {
	account.Repo
	account.Writer
	period.Repo
	period.Writer
	journal.Repo
	journal.Writer
	posting.Store
	balance.RebuildStore
	report.Repo
	recurring.Repo
	recurring.Writer
	allocation.Repo
	allocation.Writer
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the recurring-entry scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := buildLogger(cfg)
			slog.SetDefault(logger)

			st, readier, closeFn, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}

			accounts := account.New(st, st, cfg)
			periods := period.New(st, st)
			entries := journal.New(st, st, periods, cfg)
			poster := posting.New(st, cfg)
			reports := report.New(st, cfg)
			rules := allocation.New(st, st, cfg)
			templates := recurring.New(st, st, entries, poster, cfg, logger)

			srv := &http.Server{
				Addr: cfg.Addr,
				Handler: httpapi.New(httpapi.Deps{
					Accounts:     accounts,
					Periods:      periods,
					Entries:      entries,
					Posting:      poster,
					Reports:      reports,
					Recurring:    templates,
					Allocations:  rules,
					RebuildStore: st,
					Readier:      readier,
				}, cfg, logger).Handler(),
				ReadTimeout:       5 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			go recurring.NewScheduler(templates, cfg.SchedulerInterval, logger).Run(ctx)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("ledger service listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("server shutdown error", "error", err)
				}
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}

func rebuildCmd() *cobra.Command {
	var companyID, accountID string
	cmd := &cobra.Command{
		Use:   "rebuild-balances",
		Short: "Recompute ledger balance chains from posted journal lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := buildLogger(cfg)

			company, err := uuid.Parse(companyID)
			if err != nil {
				return fmt.Errorf("--company: %w", err)
			}
			var only *uuid.UUID
			if accountID != "" {
				id, err := uuid.Parse(accountID)
				if err != nil {
					return fmt.Errorf("--account: %w", err)
				}
				only = &id
			}

			st, _, closeFn, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}

			accounts, err := account.New(st, st, cfg).List(ctx, company)
			if err != nil {
				return err
			}
			projector := balance.NewProjector(cfg)
			rebuilt := 0
			for _, acc := range accounts {
				if only != nil && acc.ID != *only {
					continue
				}
				if err := projector.Rebuild(ctx, st, acc, nil); err != nil {
					return fmt.Errorf("rebuild account %s: %w", acc.Code, err)
				}
				rebuilt++
			}
			logger.Info("balance rebuild complete", "accounts", rebuilt)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "company id (required)")
	cmd.Flags().StringVar(&accountID, "account", "", "limit the rebuild to one account id")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

// seedCmd loads a starter chart of accounts and opens periods for the current
// year. Meant for development databases.
func seedCmd() *cobra.Command {
	var companyID string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a starter chart of accounts and current-year periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := buildLogger(cfg)

			company := uuid.New()
			if companyID != "" {
				if company, err = uuid.Parse(companyID); err != nil {
					return fmt.Errorf("--company: %w", err)
				}
			}

			st, _, closeFn, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}

			accounts := account.New(st, st, cfg)
			chart := []ledger.Account{
				{Code: "1000", Name: "Cash", Classification: ledger.ClassificationAsset, Subtype: ledger.SubtypeCash},
				{Code: "1100", Name: "Accounts Receivable", Classification: ledger.ClassificationAsset, Subtype: ledger.SubtypeReceivable},
				{Code: "1500", Name: "Equipment", Classification: ledger.ClassificationAsset, Subtype: ledger.SubtypeFixedAsset},
				{Code: "2000", Name: "Accounts Payable", Classification: ledger.ClassificationLiability, Subtype: ledger.SubtypePayable},
				{Code: "2100", Name: "Loans Payable", Classification: ledger.ClassificationLiability, Subtype: ledger.SubtypeLoan},
				{Code: "3000", Name: "Owner Capital", Classification: ledger.ClassificationEquity, Subtype: ledger.SubtypeCapital},
				{Code: "3900", Name: "Retained Earnings", Classification: ledger.ClassificationEquity, Subtype: ledger.SubtypeRetainedEarnings},
				{Code: "4000", Name: "Sales Revenue", Classification: ledger.ClassificationRevenue, Subtype: ledger.SubtypeOperatingRevenue},
				{Code: "5000", Name: "Cost of Goods Sold", Classification: ledger.ClassificationExpense, Subtype: ledger.SubtypeCostOfGoodsSold},
				{Code: "5100", Name: "Rent Expense", Classification: ledger.ClassificationExpense, Subtype: ledger.SubtypeOperatingExpense},
			}
			for _, a := range chart {
				a.CompanyID = company
				a.CurrencyCode = cfg.BaseCurrency
				if _, err := accounts.Create(ctx, a); err != nil {
					return fmt.Errorf("seed account %s: %w", a.Code, err)
				}
			}

			periods := period.New(st, st)
			year := time.Now().UTC().Year()
			for m := time.January; m <= time.December; m++ {
				start, end := ledger.MonthPeriodBounds(year, m)
				if _, err := periods.Open(ctx, company, start, end, ""); err != nil {
					return fmt.Errorf("open period %04d-%02d: %w", year, int(m), err)
				}
			}

			logger.Info("seed complete",
				"company_id", company.String(),
				"accounts", len(chart),
				"periods", 12)
			return nil
		},
	}
	cmd.Flags().StringVar(&companyID, "company", "", "company id to seed under (generated when omitted)")
	return cmd
}

// openStore picks the backend from DATABASE_URL: postgres when set, otherwise
// the in-memory store for local development.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, httpapi.Readier, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("storage backend: postgres")
		return pg, pg, pg.Close, nil
	}
	logger.Info("storage backend: memory")
	return memory.New(), nil, nil, nil
}

func buildLogger(cfg config.Config) *slog.Logger {
	var level slog.Leveler
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error", "err":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(strings.TrimSpace(cfg.LogFormat)) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
