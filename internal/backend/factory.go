package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/ledger"
	"bilancio/internal/ledger/memory"
	"bilancio/internal/storage"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store, then connects to AMQP when a URL
// is set. A broker failure only disables publishing unless RequireAMQP is set.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store ledger.Store
	switch config.Type {
	case SQLiteBackend:
		s, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		store = s
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	res := &Result{Store: store}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case err != nil && config.RequireAMQP:
			store.Close()
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		case err != nil:
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without audit messages", "error", err)
		default:
			res.AMQP = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	res.Close = func() error {
		var errs []error
		if res.AMQP != nil {
			if err := res.AMQP.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
		return errors.Join(errs...)
	}
	return res, nil
}
