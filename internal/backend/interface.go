// Package backend builds the ledger store and its optional audit publisher
// from configuration.
package backend

import (
	"context"

	"bilancio/internal/amqp"
	"bilancio/internal/ledger"
)

// CleanupFunc releases what a backend opened.
type CleanupFunc func() error

// Result is a ready store plus the AMQP client when messaging is enabled.
type Result struct {
	Store ledger.Store
	AMQP  *amqp.Client // nil when AMQP is disabled or unreachable
	Close CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireAMQP turns an unreachable broker into an error instead of a warning.
	RequireAMQP bool
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
