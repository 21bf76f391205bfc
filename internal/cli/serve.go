package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/PaulBappoo/Deeperseek/internal/app"
	"github.com/PaulBappoo/Deeperseek/internal/server"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the query server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address, overrides the config")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	coordinator, err := app.NewCoordinator(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting server", "listen", cfg.Listen, "secondaries", len(cfg.Secondaries))
	srv := server.New(coordinator, server.WithHeartbeat(cfg.HeartbeatInterval))
	if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
		return fmt.Errorf("serve failed: %w", err)
	}
	return nil
}
