package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "./data/insurance.db", c.DBPath)
	assert.Nil(t, c.ReservationFee)
	assert.Equal(t, 120*time.Second, c.PendingWindow)
	assert.Equal(t, time.Minute, c.ReservationDuration)
	assert.Equal(t, []string{"*"}, c.CORSOrigins)
	assert.True(t, c.InMemoryLedger())
	assert.False(t, c.MountLedgerBridge(), "bridge is opt-in")
}

func TestLoad_LedgerBridgeOptIn(t *testing.T) {
	t.Setenv("INSURANCE_LEDGER_BRIDGE", "true")

	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.MountLedgerBridge())

	// A remote ledger cannot be bridged
	t.Setenv("INSURANCE_LEDGER_URL", "http://ledger:8000")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("INSURANCE_PORT", "9090")
	t.Setenv("INSURANCE_RESERVATION_FEE", "100")
	t.Setenv("INSURANCE_PENDING_WINDOW", "5m")
	t.Setenv("INSURANCE_LEDGER_URL", "http://ledger:8000")
	t.Setenv("INSURANCE_CORS_ORIGINS", "http://a.example,http://b.example")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Port)
	require.NotNil(t, c.ReservationFee)
	assert.Equal(t, uint64(100), *c.ReservationFee)
	assert.Equal(t, 5*time.Minute, c.PendingWindow)
	assert.False(t, c.InMemoryLedger())
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, c.CORSOrigins)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("INSURANCE_RESERVATION_FEE", "-1")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	bad := c
	bad.PendingWindow = 0
	assert.Error(t, bad.Validate())

	bad = c
	bad.Port = 70000
	assert.Error(t, bad.Validate())

	bad = c
	bad.ServicePrincipal = ""
	assert.Error(t, bad.Validate())
}
