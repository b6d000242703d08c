// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable, e.g. INSURANCE_PORT.
const Prefix = "INSURANCE"

type App struct {
	// HTTP
	Port        int      `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	// JWTSecret enables bearer-token identity; empty falls back to X-Principal.
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"./data/insurance.db"`

	// Reservations. A missing fee disables the reservation workflow.
	ReservationFee      *uint64       `envconfig:"RESERVATION_FEE"`
	PendingWindow       time.Duration `envconfig:"PENDING_WINDOW" default:"120s"`
	ReservationDuration time.Duration `envconfig:"RESERVATION_DURATION" default:"1m"`
	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`
	ServicePrincipal    string        `envconfig:"SERVICE_PRINCIPAL" default:"insurance-service"`

	// Ledger. Empty URL runs an in-process ledger for development. Its
	// balances live in memory only, so after a restart reservations kept in
	// SQLite cannot be refunded.
	LedgerURL string `envconfig:"LEDGER_URL"`
	LedgerFee uint64 `envconfig:"LEDGER_FEE" default:"10000"`
	// LedgerBridge mounts the in-process ledger at /ledger. The bridge has no
	// access control: anyone can mint and move funds. Development only.
	LedgerBridge bool `envconfig:"LEDGER_BRIDGE" default:"false"`

	// Events. Empty URL disables publishing.
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"insurance.events"`
}

func Load() (App, error) {
	var c App
	if err := envconfig.Process(Prefix, &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate rejects settings the service cannot run with.
func (c App) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.PendingWindow <= 0:
		return fmt.Errorf("config: pending window must be positive")
	case c.ReservationDuration <= 0:
		return fmt.Errorf("config: reservation duration must be positive")
	case c.SweepInterval <= 0:
		return fmt.Errorf("config: sweep interval must be positive")
	case c.ServicePrincipal == "":
		return fmt.Errorf("config: service principal is required")
	case c.LedgerBridge && !c.InMemoryLedger():
		return fmt.Errorf("config: ledger bridge needs the in-process ledger, unset LEDGER_URL")
	}
	return nil
}

// InMemoryLedger reports whether the service runs its own ledger.
func (c App) InMemoryLedger() bool {
	return c.LedgerURL == ""
}

// MountLedgerBridge reports whether /ledger is exposed over HTTP.
func (c App) MountLedgerBridge() bool {
	return c.InMemoryLedger() && c.LedgerBridge
}
