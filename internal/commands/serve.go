package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"devconnect/internal/auth"
	"devconnect/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		if cfg.Development() {
			log.Warn("running in development mode")
		}

		st, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			log.Error("db", "err", err)
			return err
		}
		defer st.Close()

		tokens, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return err
		}
		h := server.New(st, tokens, log, server.Options{Development: cfg.Development()})

		// no WriteTimeout: event streams stay open
		srv := &http.Server{Addr: cfg.Addr, Handler: h,
			ReadTimeout: 15 * time.Second, ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout: 120 * time.Second}

		errCh := make(chan error, 1)
		go func() {
			log.Info("listening", "addr", cfg.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case err := <-errCh:
			log.Error("listen", "err", err)
			return err
		}
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown", "err", err)
		}
		return nil
	},
}
