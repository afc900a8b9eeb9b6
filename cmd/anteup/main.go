package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/anteuphq/anteup/internal/cli"
	"github.com/anteuphq/anteup/internal/logger"
	"github.com/anteuphq/anteup/internal/payments"
	"github.com/anteuphq/anteup/internal/secrets"
	"github.com/anteuphq/anteup/internal/storage"
)

var CLI struct {
	Version  kong.VersionFlag
	Config   string `help:"Database path." type:"path" default:"~/.local/share/anteup/anteup.db" env:"ANTEUP_DB"`
	Postgres string `help:"PostgreSQL connection string for a shared database. Defaults to the keyring entry or ANTEUP_POSTGRES_URL; empty uses local sqlite."`
	Debug    bool   `help:"Enable debug logging." env:"ANTEUP_DEBUG"`

	Init        cli.InitCmd        `cmd:"" help:"Initialize anteup storage."`
	Run         cli.RunCmd         `cmd:"" help:"Run the recurring scheduler loop."`
	Tick        cli.TickCmd        `cmd:"" help:"Run a single scheduler tick now."`
	Settle      cli.SettleCmd      `cmd:"" help:"Settle one user's unpaid penalties now."`
	ApplyStaged cli.ApplyStagedCmd `cmd:"" name:"apply-staged" help:"Apply due staged habit changes."`
	Verify      cli.VerifyCmd      `cmd:"" help:"Record a completed verification for a habit."`
	Status      cli.StatusCmd      `cmd:"" help:"Show outstanding penalties and payouts."`
	Webhook     cli.WebhookCmd     `cmd:"" help:"Serve the payment-processor event endpoint."`
	Secret      cli.SecretCmd      `cmd:"" help:"Manage credentials in the OS keyring."`
	Doctor      cli.DoctorCmd      `cmd:"" help:"Run environment diagnostics."`
}

func main() {
	// Optional .env for local development; real deployments use the
	// process environment.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI,
		kong.Name("anteup"),
		kong.Description("Penalty accrual and settlement engine for habit commitments"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.3.1"},
	)

	if err := logger.Init(logger.Config{
		Debug:   CLI.Debug,
		DataDir: filepath.Dir(CLI.Config),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	var paymentClient payments.Client
	if key := secrets.StripeSecretKey(); key != "" {
		paymentClient = payments.NewStripeClient(key)
	} else {
		logger.Warn("no Stripe secret key configured; using fake payment client (no money will move)")
		paymentClient = payments.NewFakeClient()
	}

	if CLI.Postgres == "" {
		CLI.Postgres = secrets.PostgresURL()
	}
	var store storage.Provider
	if CLI.Postgres != "" {
		store = storage.NewPostgresStore(CLI.Postgres)
	} else {
		store = storage.NewSQLiteStore(CLI.Config)
	}

	appCtx := &cli.Context{
		Store:    store,
		Payments: paymentClient,
		Log:      logger.Logger,
	}

	if err := ctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
