package cli

import (
	"context"
	"fmt"
)

type SettleCmd struct {
	User string `arg:"" help:"User ID to settle now, bypassing the local settlement moment."`
}

func (c *SettleCmd) Run(ctx *Context) error {
	if err := ctx.Store.Load(); err != nil {
		return err
	}
	defer ctx.Store.Close()

	user, err := ctx.Store.GetUser(c.User)
	if err != nil {
		return err
	}

	_, settlementEngine, _, _ := ctx.engines()
	if err := settlementEngine.SettleUser(context.Background(), user); err != nil {
		return fmt.Errorf("settlement failed: %w", err)
	}
	return nil
}
