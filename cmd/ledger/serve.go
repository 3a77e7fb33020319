package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/api"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/Veraticus/ledger-must-balance/internal/scheduler"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and live change feed",
		Long: `Start the HTTP API. Month pages are cached and kept current from the
change feed, and recurring transactions are generated on
server.generate_schedule for the configured user.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().Int("ahead", 1, "Months after the current one to generate on schedule")
	cmd.Flags().Bool("dev", false, "Development mode (no response compression or request timeout)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	ahead, _ := cmd.Flags().GetInt("ahead")
	devMode, _ := cmd.Flags().GetBool("dev")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if addr == "" {
		addr = e.cfg.Server.Addr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cache := ledger.NewMonthCache(e.ledger, e.cfg.Ledger.PageSize)
	go cache.Watch(ctx, e.bus)

	sched := scheduler.New(e.cfg.Location)
	job := scheduler.NewGenerateJob(e.ledger, ahead, e.user)
	if err := sched.AddJob(e.cfg.Server.GenerateSchedule, job); err != nil {
		return err
	}
	if err := sched.RunNow(job); err != nil {
		slog.Warn("Initial generation failed", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	server := api.New(api.Config{
		Ledger:         e.ledger,
		Cache:          cache,
		Addr:           addr,
		DefaultUser:    e.user,
		AllowedOrigins: e.cfg.Server.AllowedOrigins,
		Heartbeat:      api.DefaultHeartbeat,
		DevMode:        devMode,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	fmt.Fprintf(e.out, "Serving ledger API on %s\n", addr)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errChan
}
