package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSetGetDelete(t *testing.T) {
	keyring.MockInit()

	require.NoError(t, Set(NameStripeSecretKey, "sk_test_abc"))

	v, err := Get(NameStripeSecretKey)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_abc", v)

	require.NoError(t, Delete(NameStripeSecretKey))

	_, err = Get(NameStripeSecretKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRejectsEmptyValue(t *testing.T) {
	keyring.MockInit()

	assert.Error(t, Set(NameWebhookSecret, ""))
}

func TestDeleteMissingSecret(t *testing.T) {
	keyring.MockInit()

	assert.ErrorIs(t, Delete(NamePostgresURL), ErrNotFound)
}

func TestLookupPrefersKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvStripeSecretKey, "sk_from_env")

	require.NoError(t, Set(NameStripeSecretKey, "sk_from_keyring"))

	v, err := Lookup(NameStripeSecretKey, EnvStripeSecretKey)
	require.NoError(t, err)
	assert.Equal(t, "sk_from_keyring", v)
}

func TestLookupFallsBackToEnv(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvWebhookSecret, "whsec_from_env")

	v, err := Lookup(NameWebhookSecret, EnvWebhookSecret)
	require.NoError(t, err)
	assert.Equal(t, "whsec_from_env", v)
}

func TestLookupMissEverywhere(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvPostgresURL, "")

	_, err := Lookup(NamePostgresURL, EnvPostgresURL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStripeSecretKeyEmptyWhenUnset(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvStripeSecretKey, "")

	assert.Empty(t, StripeSecretKey())
}

func TestIsAvailableWithMockBackend(t *testing.T) {
	keyring.MockInit()

	assert.True(t, IsAvailable())
}
