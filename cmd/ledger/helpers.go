package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/config"
	"github.com/Veraticus/ledger-must-balance/internal/feed"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/Veraticus/ledger-must-balance/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// timeNow is the CLI clock; tests pin it.
var timeNow = time.Now

// env is everything a command needs to act on the ledger.
type env struct {
	cfg    *config.Config
	store  *storage.SQLiteStorage
	ledger *ledger.Ledger
	bus    *feed.Bus
	out    io.Writer
	user   string
}

// openStorage opens and migrates the configured database.
func openStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	if err := config.EnsureDir(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path, storage.WithLocation(cfg.Location))
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// openEnv loads the configuration and builds the engine for cmd.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}

	bus := feed.NewBus()
	engineConfig := ledger.DefaultConfig()
	engineConfig.Location = cfg.Location
	engineConfig.Now = timeNow
	engineConfig.PageSize = cfg.Ledger.PageSize

	return &env{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		ledger: ledger.NewWithConfig(store, bus, engineConfig),
		out:    cmd.OutOrStdout(),
		user:   cfg.Ledger.UserID,
	}, nil
}

func (e *env) Close() {
	_ = e.store.Close()
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

// accountNames maps account ids to names for display.
func (e *env) accountNames(ctx context.Context) (map[string]string, error) {
	accounts, err := e.ledger.ListAccounts(ctx, e.user)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(accounts))
	for _, account := range accounts {
		names[account.ID] = account.Name
	}
	return names, nil
}

// currentMonth is the month of today in the ledger's zone.
func (e *env) currentMonth() model.Month {
	return model.MonthOf(timeNow().In(e.cfg.Location))
}

func parseMonthFlag(value string, fallback model.Month) (model.Month, error) {
	if value == "" {
		return fallback, nil
	}
	month, err := model.ParseMonth(value)
	if err != nil {
		return model.Month{}, common.NewUserError("invalid month (expected YYYY-MM)", err)
	}
	return month, nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, common.NewUserError(fmt.Sprintf("invalid amount %q", value), err)
	}
	return amount, nil
}

// explain turns engine errors into messages a terminal user can act on.
func explain(err error) error {
	var (
		vErr  *common.ValidationError
		inUse *common.AccountInUseError
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrVersionConflict):
		return common.NewUserError("transaction was changed elsewhere; list it again and retry with the current --version", err)
	case errors.Is(err, common.ErrAlreadyPaid):
		return common.NewUserError("transaction is already paid", err)
	case errors.Is(err, common.ErrNotPaid):
		return common.NewUserError("transaction is not paid", err)
	case errors.As(err, &inUse):
		return common.NewUserError(fmt.Sprintf("account is still used by %d transaction(s)", inUse.Count), err)
	case errors.As(err, &vErr):
		return common.NewUserError(fmt.Sprintf("invalid %s: %v", vErr.Field, vErr.Err), err)
	case errors.Is(err, common.ErrNotFound):
		return common.NewUserError("not found", err)
	default:
		return err
	}
}
