// Command kgqa answers natural-language questions over an RDF knowledge
// graph. It runs single questions, an interactive session, batches, an HTTP
// server and an MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	os.Exit(exitCode(err))
}
