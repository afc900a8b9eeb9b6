package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/anteuphq/anteup/internal/migration"
	"github.com/anteuphq/anteup/internal/secrets"
)

type DoctorCmd struct{}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false

	// Check 1: DB reachable
	if err := ctx.Store.Load(); err != nil {
		fmt.Printf("❌ Database reachable: FAIL\n")
		fmt.Printf("   Error: %v\n", err)
		hasError = true
	} else {
		fmt.Printf("✓ Database reachable: OK\n")
		defer ctx.Store.Close()

		// Check 2: Schema version valid
		if err := checkSchemaVersion(ctx); err != nil {
			fmt.Printf("❌ Schema version: FAIL\n")
			fmt.Printf("   Error: %v\n", err)
			hasError = true
		} else {
			fmt.Printf("✓ Schema version: OK\n")
		}
	}

	// Check 3: No second engine instance. There is no distributed lock
	// around the tick, so two processes against one database is the one
	// deployment mistake worth catching here.
	if err := checkSingleInstance(); err != nil {
		fmt.Printf("⚠ Single instance: WARNING\n")
		fmt.Printf("   %v\n", err)
	} else {
		fmt.Printf("✓ Single instance: OK\n")
	}

	// Check 4: Secret storage. A missing keyring is fine as long as the
	// environment carries the credentials instead.
	if secrets.IsAvailable() {
		fmt.Printf("✓ OS keyring: OK\n")
	} else {
		fmt.Printf("⚠ OS keyring: WARNING\n")
		fmt.Printf("   keyring unavailable; secrets fall back to environment variables\n")
	}

	// Check 5: Payment credentials present
	if secrets.StripeSecretKey() == "" {
		fmt.Printf("⚠ Stripe secret key: WARNING\n")
		fmt.Printf("   no %s in keyring or %s in environment; charges will run against the fake client\n",
			secrets.NameStripeSecretKey, secrets.EnvStripeSecretKey)
	} else {
		fmt.Printf("✓ Stripe secret key: OK\n")
	}

	fmt.Println()
	if hasError {
		return fmt.Errorf("diagnostics found problems")
	}
	fmt.Println("All checks passed")
	return nil
}

func checkSchemaVersion(ctx *Context) error {
	store, ok := ctx.Store.(interface {
		MigrationRunner() (*migration.Runner, error)
	})
	if !ok {
		return nil
	}
	runner, err := store.MigrationRunner()
	if err != nil {
		return err
	}

	current, err := runner.GetCurrentVersion()
	if err != nil {
		return err
	}
	latest, err := runner.GetLatestVersion()
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf("schema version %d is behind latest %d, run 'anteup init'", current, latest)
	}
	return runner.ValidateVersion()
}

func checkSingleInstance() error {
	self := os.Getpid()
	name := filepath.Base(os.Args[0])

	procs, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("could not enumerate processes: %w", err)
	}

	for _, p := range procs {
		if p.Pid() == self {
			continue
		}
		if strings.EqualFold(p.Executable(), name) {
			return fmt.Errorf("another %s process is running (pid %d); concurrent ticks rely on penalty idempotency only", name, p.Pid())
		}
	}
	return nil
}
