// Command candled downloads one-minute candle history archives and loads
// them into PostgreSQL.
//
// Usage:
//
//	candled --config configs/candled.yaml migrate up
//	candled --config configs/candled.yaml instruments import instruments.yaml
//	candled --config configs/candled.yaml run
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
