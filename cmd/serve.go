package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/tonewheel/assets"
	"github.com/robalobadob/tonewheel/internal/database"
	"github.com/robalobadob/tonewheel/internal/httpserver"
	"github.com/robalobadob/tonewheel/internal/store"
)

var (
	port   string
	dbPath string
)

func init() {
	serveCmd.Flags().StringVar(&port, "port", "", "HTTP port (default $PORT or 5175)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "SQLite file (default $DB_PATH)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP + WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if port != "" {
			cfg.Port = port
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(db, assets.Migrations); err != nil {
			return err
		}

		srv, err := httpserver.New(store.NewMemoryStore(), db, cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info().Str("port", cfg.Port).Str("db", cfg.DBPath).Str("scale", cfg.Scale).Msg("starting tonewheel")
		if err := srv.Start(ctx, ":"+cfg.Port); err != nil {
			return err
		}
		log.Info().Msg("server stopped")
		return nil
	},
}
