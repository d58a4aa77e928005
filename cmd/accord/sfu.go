package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/accord-chat/accord/internal/config"
	"github.com/accord-chat/accord/internal/sfu"
	"github.com/accord-chat/accord/internal/tracing"
)

// runSfu runs the edge agent until SIGINT/SIGTERM. Media forwarding itself
// lives outside this process; the agent keeps the node registered and
// heartbeating against the main server.
func runSfu(cfg *config.Config) error {
	if _, err := tracing.Setup(false, version); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agent := sfu.NewAgent(cfg.Sfu, nil)
	return agent.Run(ctx)
}
