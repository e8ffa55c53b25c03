package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/api"
	"github.com/sells-group/catalog-importer/internal/pricesync"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for import sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, envOptions{catalog: true})
		if err != nil {
			return err
		}
		defer env.Close()

		srv := api.NewServer(ctx, env.Service, api.Options{AllowedOrigins: cfg.Server.AllowedOrigins})
		defer srv.Wait()

		withSync, _ := cmd.Flags().GetBool("pricesync")
		if withSync && len(cfg.PriceSync.FeedURLs) > 0 {
			syncer := pricesync.NewSyncer(env.Fetcher, env.Catalog, cfg.Catalog.Currency)
			go syncer.Run(ctx, cfg.PriceSync.FeedURLs, cfg.PriceSync.Every)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().Bool("pricesync", false, "also run the scheduled price sync")
	rootCmd.AddCommand(serveCmd)
}
