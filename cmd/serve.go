// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/rnetstat/internal/bridge"
)

var (
	serveListen string
	servePath   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Share the bus with WebSocket clients",
	Long: `Run a WebSocket bridge in front of the RNet connection.

Every frame seen on the bus (including handshakes rnetstat sends) is forwarded
to each connected client as a binary message. Frames sent by clients are
decoded, classified and queued on the bus through the same handshake sequencer
as local commands, so clients never collide with each other.

Other rnetstat commands connect to the bridge with --url ws://host:port/path.

HTTP Basic auth is enforced when bridge.username and a password are set. The
password comes from bridge.password in the config file or the
RNET_BRIDGE_PASSWORD environment variable.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&servePath, "path", "", "WebSocket path (default from config, /ws)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.Bridge.Listen = serveListen
	}
	if servePath != "" {
		if !strings.HasPrefix(servePath, "/") {
			return errors.Errorf("--path must start with /: %q", servePath)
		}
		cfg.Bridge.Path = servePath
	}
	password := cfg.Bridge.Password
	if pw := os.Getenv("RNET_BRIDGE_PASSWORD"); pw != "" {
		password = pw
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	sess := newSession(conn)

	db, err := openStore(sess)
	if err != nil {
		conn.Close()
		return err
	}
	if db != nil {
		defer db.Close()
	}

	br := bridge.New(sess, bridge.Options{
		Username: cfg.Bridge.Username,
		Password: password,
		Logger:   logger,
	})
	sess.Observe(br.Observer())

	mux := http.NewServeMux()
	mux.Handle(cfg.Bridge.Path, br)

	srv := &http.Server{
		Addr:              cfg.Bridge.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signalContext()
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		errChan <- sess.Run(ctx, conn)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- errors.Wrap(err, "listen")
		}
	}()

	logger.Info().
		Str("connection", connInfo).
		Str("listen", cfg.Bridge.Listen).
		Str("path", cfg.Bridge.Path).
		Bool("auth", cfg.Bridge.Username != "" && password != "").
		Msg("bridge started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errChan:
		if err != nil && !isConnectionClosed(err) {
			runErr = err
		}
		logger.Warn().Err(err).Msg("bridge stopped")
	}

	var result error
	if err := br.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "shutdown http"))
	}
	if err := sess.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if result != nil {
		logger.Debug().Err(result).Msg("shutdown errors")
	}
	return runErr
}
