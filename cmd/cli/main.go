package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"smart-docqa-client/internal/bootstrap"
	"smart-docqa-client/internal/config"
	"smart-docqa-client/internal/shell"
	"smart-docqa-client/internal/tracer"

	"golang.org/x/term"
)

func main() {
	// 0. Load Configuration
	cfg := config.Load()

	// 1. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(cfg.Tracing)
	defer shutdownTracer(context.Background())

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Unable to start: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Interactive terminals get a hidden password prompt and background operations
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	var readPassword func() (string, error)
	if interactive {
		readPassword = func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd()))
			return string(b), err
		}
	}

	sh := shell.New(shell.Options{
		BaseURL:      cfg.Service.BaseURL,
		Operations:   container.Operations,
		Sessions:     container.Sessions,
		Events:       container.Bus,
		Logger:       container.Logger,
		In:           os.Stdin,
		Out:          os.Stdout,
		ReadPassword: readPassword,
		Async:        interactive,
	})

	// 4. Run
	if err := sh.Run(ctx); err != nil {
		log.Printf("Shell stopped: %v", err)
	}
}
