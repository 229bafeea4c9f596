// Command mori runs a single child process confined to a declared network
// and filesystem access policy, spec.md §1/§2. Entry point wiring mirrors
// cmd/core-service/main.go's texture: a plain *log.Logger, a SIGINT/SIGTERM
// handler, and exit codes mapped through the error taxonomy instead of
// log.Fatalf (mori must report a specific exit code per spec.md §6, not
// always 1).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mori/internal/audit"
	"mori/internal/cliconfig"
	"mori/internal/morierr"
	"mori/internal/orchestrator"
)

func main() {
	logger := log.New(os.Stderr, "mori: ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("received shutdown signal, cancelling")
		cancel()
	}()

	os.Exit(run(ctx, logger))
}

func run(ctx context.Context, logger *log.Logger) int {
	args, err := cliconfig.ParseArgs(os.Args[1:])
	if err != nil {
		logger.Printf("%v", err)
		return morierr.ExitCode(err)
	}

	pol, err := cliconfig.LoadPolicy(args)
	if err != nil {
		logger.Printf("%v", err)
		return morierr.ExitCode(err)
	}

	auditLog := audit.New(os.Stderr)
	result, err := orchestrator.Run(ctx, logger, auditLog, pol, args.Command, args.CommandArgs)
	if err != nil {
		logger.Printf("%v", err)
		return morierr.ExitCode(err)
	}

	return result.ExitCode
}
