package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Run is the CLI entrypoint used by cmd/excuses.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(o Overrides) error {
	cfg := o.Apply(LoadConfig())
	log, logFile := NewLogger(cfg)
	defer func() { _ = logFile.Close() }()

	a, err := New(cfg, log)
	if err != nil {
		log.Error("app.init.fail", "err", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
