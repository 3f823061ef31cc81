package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatapi/portal/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage portal sessions",
		Long:  "Inspect and clean up the session store backing the portal's login cookies.",
	}

	cmd.AddCommand(newSessionsSweepCmd())

	return cmd
}

func newSessionsSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired sessions from the session cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsSweep()
		},
	}

	return cmd
}

func runSessionsSweep() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyEnvOverrides(cfg)

	redisCfg := session.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if !redisCfg.Configured() {
		fmt.Println("No session cache configured; in-process sessions expire with the server.")
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := session.NewRedisStore(redisCfg, logger)
	defer store.Close()

	n, err := store.SweepExpired(context.Background())
	if err != nil {
		return fmt.Errorf("sweep sessions: %w", err)
	}

	fmt.Printf("Removed %d expired session(s)\n", n)
	return nil
}
