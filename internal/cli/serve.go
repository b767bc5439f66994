package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const (
	envHTTPReadHeaderTimeoutSeconds = "CONSOLE_HTTP_READ_HEADER_TIMEOUT_SECONDS"
	envHTTPReadTimeoutSeconds       = "CONSOLE_HTTP_READ_TIMEOUT_SECONDS"
	envHTTPWriteTimeoutSeconds      = "CONSOLE_HTTP_WRITE_TIMEOUT_SECONDS"
	envHTTPIdleTimeoutSeconds       = "CONSOLE_HTTP_IDLE_TIMEOUT_SECONDS"
	envHTTPShutdownTimeoutSeconds   = "CONSOLE_HTTP_SHUTDOWN_TIMEOUT_SECONDS"
)

var (
	defaultHTTPReadHeaderTimeout = 10 * time.Second
	defaultHTTPReadTimeout       = 120 * time.Second
	defaultHTTPWriteTimeout      = 0 * time.Second
	defaultHTTPIdleTimeout       = 120 * time.Second
	defaultHTTPShutdownTimeout   = 30 * time.Second
)

type httpRuntimeConfig struct {
	readHeaderTimeout time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	shutdownTimeout   time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (overrides CONSOLE_HOST)")
	serveCmd.Flags().String("port", "", "listen port (overrides CONSOLE_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Host = host
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	runtimeCfg := loadHTTPRuntimeConfig()
	httpServer := newHTTPServer(addr, srv.Handler(), runtimeCfg)
	log.Printf("console http addr=%s project_root=%s timeouts=%s",
		addr, srv.Workspace().Root(), runtimeCfg)
	if cfg.APIKey == "" {
		log.Printf("console operator key is not set, API is unauthenticated")
	}

	signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serveUntilDone(signalCtx, httpServer, runtimeCfg.shutdownTimeout)
}

// serveUntilDone listens until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout before forcing the server closed.
func serveUntilDone(ctx context.Context, httpServer *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		listenErr := httpServer.ListenAndServe()
		if errors.Is(listenErr, http.ErrServerClosed) {
			listenErr = nil
		}
		errCh <- listenErr
	}()

	select {
	case listenErr := <-errCh:
		if listenErr != nil {
			return fmt.Errorf("listen failed: %w", listenErr)
		}
		return nil
	case <-ctx.Done():
		log.Printf("console shutdown requested, draining timeout=%s", shutdownTimeout)
	}

	timedOut, err := shutdownHTTPServer(httpServer, shutdownTimeout)
	if err != nil {
		return err
	}
	if timedOut {
		log.Printf("console shutdown forced after timeout=%s", shutdownTimeout)
	} else {
		log.Printf("console shutdown complete")
	}
	if listenErr := <-errCh; listenErr != nil {
		return fmt.Errorf("listen failed during shutdown: %w", listenErr)
	}
	return nil
}

func (c httpRuntimeConfig) String() string {
	return fmt.Sprintf("read_header=%s read=%s write=%s idle=%s shutdown=%s",
		c.readHeaderTimeout, c.readTimeout, c.writeTimeout, c.idleTimeout, c.shutdownTimeout)
}

func loadHTTPRuntimeConfig() httpRuntimeConfig {
	return httpRuntimeConfig{
		readHeaderTimeout: readDurationSecondsEnv(envHTTPReadHeaderTimeoutSeconds, defaultHTTPReadHeaderTimeout, false),
		readTimeout:       readDurationSecondsEnv(envHTTPReadTimeoutSeconds, defaultHTTPReadTimeout, false),
		writeTimeout:      readDurationSecondsEnv(envHTTPWriteTimeoutSeconds, defaultHTTPWriteTimeout, true),
		idleTimeout:       readDurationSecondsEnv(envHTTPIdleTimeoutSeconds, defaultHTTPIdleTimeout, false),
		shutdownTimeout:   readDurationSecondsEnv(envHTTPShutdownTimeoutSeconds, defaultHTTPShutdownTimeout, false),
	}
}

func newHTTPServer(addr string, handler http.Handler, runtimeCfg httpRuntimeConfig) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: runtimeCfg.readHeaderTimeout,
		ReadTimeout:       runtimeCfg.readTimeout,
		WriteTimeout:      runtimeCfg.writeTimeout,
		IdleTimeout:       runtimeCfg.idleTimeout,
	}
}

// shutdownHTTPServer drains in-flight requests and force-closes the server
// once timeout elapses. The bool reports whether the force close happened.
func shutdownHTTPServer(httpServer *http.Server, timeout time.Duration) (bool, error) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if closeErr := httpServer.Close(); closeErr != nil {
				return true, fmt.Errorf("force close failed after shutdown timeout: %w", closeErr)
			}
			return true, nil
		}
		return false, fmt.Errorf("shutdown failed: %w", err)
	}
	return false, nil
}

func readDurationSecondsEnv(key string, fallback time.Duration, allowZero bool) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 || (seconds == 0 && !allowZero) {
		log.Printf("invalid %s=%q, fallback to %s", key, raw, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
