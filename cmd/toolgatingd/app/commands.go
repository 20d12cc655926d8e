// Package app provides the entry point for the tool-gating-mcp daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shuaige121/tool-gating-mcp/internal/apperr"
	"github.com/shuaige121/tool-gating-mcp/internal/config"
	"github.com/shuaige121/tool-gating-mcp/internal/discovery"
	"github.com/shuaige121/tool-gating-mcp/internal/embedder"
	"github.com/shuaige121/tool-gating-mcp/internal/httpapi"
	"github.com/shuaige121/tool-gating-mcp/internal/logger"
	"github.com/shuaige121/tool-gating-mcp/internal/metaserver"
	"github.com/shuaige121/tool-gating-mcp/internal/proxy"
	"github.com/shuaige121/tool-gating-mcp/internal/registry"
	"github.com/shuaige121/tool-gating-mcp/internal/session"
)

// Exit codes, per the external interfaces' process contract.
const (
	exitOK               = 0
	exitConfigError      = 1
	exitEmbedderError    = 2
	exitShutdownError    = 3
	shutdownHardDeadline = 10 * time.Second
)

var rootCmd = &cobra.Command{
	Use:               "toolgatingd",
	DisableAutoGenTag: true,
	Short:             "Tool Gating MCP intermediary",
	Long: `toolgatingd sits between a single MCP client and many MCP backend servers.
It exposes a small, stable meta-toolset (discover, provision, execute, register)
while dynamically indexing the union of all backend tools, ranking them by semantic
relevance to a natural-language query, and transparently forwarding tool invocations
to the owning backend over persistent sessions.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the toolgatingd CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	bindFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the backend config file")
	bindFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func bindFlag(name string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	if err := viper.BindPFlag(name, flag); err != nil {
		logger.Errorf("error binding %s flag: %v", name, err)
	}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func portOf(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "4600"
	}
	return port
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Tool Gating daemon",
		Long: `Start the Tool Gating daemon: connects every configured backend, indexes their
tools into the Registry, and serves the HTTP API and the meta-toolset MCP server
until a shutdown signal is received.`,
		RunE: runServe,
	}
	cmd.Flags().String("http-addr", "127.0.0.1:8080", "Address for the HTTP API")
	cmd.Flags().String("mcp-addr", "127.0.0.1:4600", "Address for the meta-toolset MCP server")
	cmd.Flags().String("embedder-backend", embedder.BackendTypeFake, "Embedder backend: fake, ollama, or openai")
	cmd.Flags().String("embedder-url", "", "Base URL for the ollama/openai embedder backend")
	cmd.Flags().String("embedder-model", "", "Model name for the ollama/openai embedder backend")
	bindFlag("http-addr", cmd.Flags().Lookup("http-addr"))
	bindFlag("mcp-addr", cmd.Flags().Lookup("mcp-addr"))
	bindFlag("embedder-backend", cmd.Flags().Lookup("embedder-backend"))
	bindFlag("embedder-url", cmd.Flags().Lookup("embedder-url"))
	bindFlag("embedder-model", cmd.Flags().Lookup("embedder-model"))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("toolgatingd version: %s", getVersion())
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the backend config file",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := viper.GetString("config")
			if path == "" {
				return fmt.Errorf("no config file specified, use --config")
			}

			file, err := config.Load(path)
			if err != nil {
				return err
			}

			logger.Infof("configuration is valid: %d backend(s) configured", len(file.Servers))
			for name, server := range file.Servers {
				logger.Infof("  %s: %s %v", name, server.Command, server.Args)
			}
			return nil
		},
	}
}

func getVersion() string {
	return "0.1.0"
}

// runServe wires the core components together and serves until ctx is
// cancelled, then drains every backend session within the hard shutdown
// deadline.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	configPath := viper.GetString("config")
	if configPath == "" {
		exitWith(exitConfigError, fmt.Errorf("no config file specified, use --config"))
	}

	backendsFile, err := config.Load(configPath)
	if err != nil {
		exitWith(exitConfigError, err)
	}

	emb, err := embedder.New(embedder.Config{
		BackendType: viper.GetString("embedder-backend"),
		BaseURL:     viper.GetString("embedder-url"),
		Model:       viper.GetString("embedder-model"),
	})
	if err != nil {
		exitWith(exitEmbedderError, fmt.Errorf("embedder initialization failed: %w", err))
	}
	defer func() { _ = emb.Close() }()

	reg := registry.New(emb)
	disc := discovery.New(reg, emb)
	sessions := session.NewManager()
	px := proxy.New(reg, sessions)

	results := px.Startup(ctx, backendsFile.ToBackendSpecs())
	for _, result := range results {
		if result.Err != nil {
			logger.Warnf("backend %s failed to start: %v", result.Name, result.Err)
			continue
		}
		logger.Infof("backend %s started: %d tools indexed", result.Name, result.ToolCount)
	}

	httpServer := &http.Server{
		Addr:              viper.GetString("http-addr"),
		Handler:           httpapi.NewRouter(reg, disc, px, sessions),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mcpServer := metaserver.New(&metaserver.Config{
		Host: hostOf(viper.GetString("mcp-addr")),
		Port: portOf(viper.GetString("mcp-addr")),
	}, reg, disc, px)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP API server: %w", err)
		}
	}()
	go func() {
		if err := mcpServer.Start(); err != nil {
			errCh <- fmt.Errorf("meta-toolset server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Errorf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownHardDeadline)
	defer cancel()

	var shutdownErr error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		shutdownErr = err
	}
	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		shutdownErr = err
	}
	sessions.ShutdownAll()

	if shutdownErr != nil {
		exitWith(exitShutdownError, apperr.NewShutdownError("graceful shutdown did not complete cleanly", shutdownErr))
	}
	return nil
}

func exitWith(code int, err error) {
	if apperr.IsShutdown(err) {
		logger.Errorf("shutdown: %v", err)
	} else {
		logger.Errorf("%v", err)
	}
	os.Exit(code)
}
