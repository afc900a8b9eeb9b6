package cli

import (
	"context"
	"time"
)

type ApplyStagedCmd struct{}

// Run applies every staged habit change whose effective date has arrived in
// its staged timezone.
func (c *ApplyStagedCmd) Run(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return err
	}
	defer ctx.Store.Close()

	_, _, applier, _ := ctx.engines()
	return applier.ApplyDue(context.Background(), time.Now())
}
