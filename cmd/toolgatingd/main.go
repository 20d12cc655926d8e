// Package main is the entry point for the Tool Gating MCP daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shuaige121/tool-gating-mcp/cmd/toolgatingd/app"
	"github.com/shuaige121/tool-gating-mcp/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("error executing command: %v", err)
		os.Exit(1)
	}
}
