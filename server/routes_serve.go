// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ollama/ddpm/envconfig"
	"github.com/ollama/ddpm/logutil"
	"github.com/ollama/ddpm/version"
)

// Serve laedt das Modell und bedient ln bis SIGINT oder SIGTERM
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	defer cfg.Close()

	s, err := New(cfg)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	defer s.Close()

	ctx, done := context.WithCancel(context.Background())
	defer done()

	go s.expireSessions(ctx)

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	// listen for a ctrl+c and release every session
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		done()
	}()

	err = srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ctx.Done()
	return nil
}
