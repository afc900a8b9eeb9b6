// Package secrets resolves credentials from the OS keyring with an
// environment variable fallback, so the Stripe keys and the optional
// Postgres URL never have to live in a dotfile on a shared machine.
package secrets

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name all secrets are stored under.
const Service = "anteup"

// Names of the secrets this binary knows about, paired with the
// environment variable consulted when the keyring has no entry.
const (
	NameStripeSecretKey = "stripe-secret-key"
	NameWebhookSecret   = "stripe-webhook-secret"
	NamePostgresURL     = "postgres-url"

	EnvStripeSecretKey = "STRIPE_SECRET_KEY"
	EnvWebhookSecret   = "STRIPE_WEBHOOK_SECRET"
	EnvPostgresURL     = "ANTEUP_POSTGRES_URL"
)

var (
	// ErrNotFound is returned when a secret exists in neither the keyring
	// nor the environment.
	ErrNotFound = errors.New("secret not found")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be reached.
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Get reads a secret from the OS keyring only.
func Get(name string) (string, error) {
	v, err := keyring.Get(Service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

// Set stores a secret in the OS keyring.
func Set(name, value string) error {
	if value == "" {
		return errors.New("secret value cannot be empty")
	}
	if err := keyring.Set(Service, name, value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", name, err)
	}
	return nil
}

// Delete removes a secret from the OS keyring.
func Delete(name string) error {
	if err := keyring.Delete(Service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", name, err)
	}
	return nil
}

// Lookup resolves a secret, preferring the keyring and falling back to the
// named environment variable. A keyring that is merely unavailable does not
// fail the lookup; only a total miss does.
func Lookup(name, envVar string) (string, error) {
	v, err := Get(name)
	if err == nil {
		return v, nil
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s (env %s): %w", name, envVar, ErrNotFound)
}

// StripeSecretKey resolves the Stripe API key. Empty when unset; payment
// commands fall back to the in-memory fake client in that case.
func StripeSecretKey() string {
	v, _ := Lookup(NameStripeSecretKey, EnvStripeSecretKey)
	return v
}

// WebhookSecret resolves the Stripe webhook signing secret.
func WebhookSecret() string {
	v, _ := Lookup(NameWebhookSecret, EnvWebhookSecret)
	return v
}

// PostgresURL resolves the optional shared-database connection string.
// Empty means the local sqlite store is used.
func PostgresURL() string {
	v, _ := Lookup(NamePostgresURL, EnvPostgresURL)
	return v
}

// IsAvailable reports whether the OS keyring can be used on this system.
// Best effort; a read that fails with anything other than a miss means the
// backing service is absent or locked.
func IsAvailable() bool {
	_, err := keyring.Get(Service, "availability-check")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
