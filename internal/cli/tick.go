package cli

import (
	"context"
	"time"
)

type TickCmd struct{}

// Run executes a single scheduler tick immediately. Intended for operations
// and debugging; the evaluation itself is idempotent, so an extra tick can
// never double-create penalties.
func (c *TickCmd) Run(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return err
	}
	defer ctx.Store.Close()

	_, _, _, drv := ctx.engines()
	drv.Tick(context.Background(), time.Now())
	return nil
}
