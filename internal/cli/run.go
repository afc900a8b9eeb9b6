package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
)

type RunCmd struct{}

// Run starts the recurring scheduler loop and blocks until SIGINT/SIGTERM.
func (c *RunCmd) Run(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return err
	}
	defer ctx.Store.Close()

	_, _, _, drv := ctx.engines()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx.Log.Info("scheduler driver starting")
	err := drv.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		ctx.Log.Info("scheduler driver stopped")
		return nil
	}
	return err
}
