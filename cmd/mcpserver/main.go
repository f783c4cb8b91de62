// Package main provides the mcpserver entry point: a cobra command tree
// exposing the three interchangeable transports (stdio, httpsse, tcp) over
// one shared capability registry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcprt/server/internal/config"
	"github.com/mcprt/server/internal/engine"
	"github.com/mcprt/server/internal/mcp"
	"github.com/mcprt/server/internal/oauth"
	"github.com/mcprt/server/internal/registry"
	"github.com/mcprt/server/internal/toolkit"
	"github.com/mcprt/server/internal/transport/httpsse"
	"github.com/mcprt/server/internal/transport/stdio"
	"github.com/mcprt/server/internal/transport/tcp"
)

const (
	exitOK         = 0
	exitTransport  = 1
	exitValidation = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:   "mcpserver",
		Short: "Model Context Protocol server runtime",
	}

	var (
		port     int
		tcpPort  int
		token    string
		openapi  bool
		svcName  string
	)

	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve over standard input/output",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New()
			toolkit.RegisterBuiltins(reg)
			router := mcp.New(engine.New(reg), mcp.ServerInfo{Name: "mcpserver", Version: "0.1.0"})
			t := stdio.New(router, logger)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return t.Run(ctx)
		},
	}

	httpsseCmd := &cobra.Command{
		Use:   "httpsse",
		Short: "Serve over HTTP with Server-Sent Events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port <= 0 || port > 65535 {
				return fmt.Errorf("invalid --port %d", port)
			}
			reg := registry.New()
			toolkit.RegisterBuiltins(reg)
			router := mcp.New(engine.New(reg), mcp.ServerInfo{Name: "mcpserver", Version: "0.1.0"})

			opts := httpsse.Options{
				Router:        router,
				Logger:        logger,
				EnableOpenAPI: openapi,
				ServerName:    "mcpserver",
			}
			if token != "" {
				opts.Auth = func(ctx context.Context, bearerToken string) error {
					if bearerToken != token {
						return fmt.Errorf("invalid token")
					}
					return nil
				}
			} else if cfg, err := config.Load(); err == nil && len(cfg.AuthorizationServers) > 0 {
				oauthCfg := &oauth.Config{
					BaseURL:              cfg.BaseURL,
					AuthorizationServers: cfg.AuthorizationServers,
					Audience:             cfg.Audience,
					ScopesSupported:      cfg.ScopesSupported,
					JWKSCacheTTL:         cfg.JWKSCacheTTL,
					ClockSkew:            cfg.ClockSkew,
				}
				validator, metadataService, _, _ := oauth.NewOAuthServices(oauthCfg)
				opts.Auth = httpsse.NewOAuthPredicate(validator)
				opts.Metadata = metadataService
			}

			transport := httpsse.New(opts)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHTTPServer(ctx, fmt.Sprintf(":%d", port), transport.Handler(), logger)
		},
	}
	httpsseCmd.Flags().IntVar(&port, "port", 8080, "port to listen on")
	httpsseCmd.Flags().StringVar(&token, "token", "", "static bearer token (overrides OAuth config)")
	httpsseCmd.Flags().BoolVar(&openapi, "openapi", false, "enable the OpenAPI projection endpoints")

	tcpCmd := &cobra.Command{
		Use:   "tcp",
		Short: "Serve over raw TCP with mDNS service discovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tcpPort <= 0 || tcpPort > 65535 {
				return fmt.Errorf("invalid --port %d", tcpPort)
			}
			reg := registry.New()
			toolkit.RegisterBuiltins(reg)
			router := mcp.New(engine.New(reg), mcp.ServerInfo{Name: "mcpserver", Version: "0.1.0"})
			t := tcp.New(tcp.Options{Router: router, Logger: logger, Port: tcpPort, ServiceName: svcName})
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return t.Run(ctx)
		},
	}
	tcpCmd.Flags().IntVar(&tcpPort, "port", 4050, "port to listen on")
	tcpCmd.Flags().StringVar(&svcName, "name", "mcp-server", "mDNS instance name")

	root.AddCommand(stdioCmd, httpsseCmd, tcpCmd)

	if err := root.Execute(); err != nil {
		if isValidationError(err) {
			fmt.Fprintln(os.Stderr, err)
			return exitValidation
		}
		fmt.Fprintln(os.Stderr, err)
		return exitTransport
	}
	return exitOK
}

func isValidationError(err error) bool {
	msg := err.Error()
	return len(msg) > len("invalid") && msg[:len("invalid")] == "invalid"
}

// runHTTPServer wraps net/http's server with signal-triggered,
// bounded-deadline graceful shutdown.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("httpsse transport listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping httpsse server gracefully")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
