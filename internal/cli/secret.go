package cli

import (
	"errors"
	"fmt"

	"github.com/anteuphq/anteup/internal/secrets"
)

// SecretCmd manages credentials in the OS keyring. Every secret can also be
// supplied through its environment variable; the keyring takes precedence.
type SecretCmd struct {
	Set    SecretSetCmd    `cmd:"" help:"Store a secret in the OS keyring."`
	Delete SecretDeleteCmd `cmd:"" help:"Remove a secret from the OS keyring."`
	Status SecretStatusCmd `cmd:"" help:"Show keyring availability and stored secrets."`
}

var secretNames = map[string]string{
	secrets.NameStripeSecretKey: secrets.EnvStripeSecretKey,
	secrets.NameWebhookSecret:   secrets.EnvWebhookSecret,
	secrets.NamePostgresURL:     secrets.EnvPostgresURL,
}

func validSecretName(name string) error {
	if _, ok := secretNames[name]; !ok {
		return fmt.Errorf("unknown secret %q (expected one of: %s, %s, %s)",
			name, secrets.NameStripeSecretKey, secrets.NameWebhookSecret, secrets.NamePostgresURL)
	}
	return nil
}

type SecretSetCmd struct {
	Name  string `arg:"" help:"Secret name (stripe-secret-key, stripe-webhook-secret, postgres-url)."`
	Value string `arg:"" help:"Secret value to store."`
}

func (cmd *SecretSetCmd) Run(ctx *Context) error {
	if err := validSecretName(cmd.Name); err != nil {
		return err
	}
	if err := secrets.Set(cmd.Name, cmd.Value); err != nil {
		return err
	}
	fmt.Printf("✓ %s stored in OS keyring\n", cmd.Name)
	return nil
}

type SecretDeleteCmd struct {
	Name string `arg:"" help:"Secret name to remove."`
}

func (cmd *SecretDeleteCmd) Run(ctx *Context) error {
	if err := validSecretName(cmd.Name); err != nil {
		return err
	}
	if err := secrets.Delete(cmd.Name); err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return fmt.Errorf("no %s stored in keyring", cmd.Name)
		}
		return err
	}
	fmt.Printf("✓ %s deleted from OS keyring\n", cmd.Name)
	return nil
}

type SecretStatusCmd struct{}

func (cmd *SecretStatusCmd) Run(ctx *Context) error {
	if !secrets.IsAvailable() {
		fmt.Println("❌ OS keyring is not available on this system")
		return errors.New("keyring unavailable")
	}
	fmt.Println("✓ OS keyring is available")

	for _, name := range []string{secrets.NameStripeSecretKey, secrets.NameWebhookSecret, secrets.NamePostgresURL} {
		if _, err := secrets.Get(name); err == nil {
			fmt.Printf("✓ %s is stored in keyring\n", name)
		} else {
			fmt.Printf("ℹ %s not stored (falls back to %s)\n", name, secretNames[name])
		}
	}
	return nil
}
