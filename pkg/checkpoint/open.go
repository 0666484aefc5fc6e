package checkpoint

import (
	"context"
	"log/slog"
	"strings"
)

// Open returns the checkpoint store for location, selected by URL scheme:
//
//	""                         in-memory, nothing survives the process
//	file://path or plain path  JSON file
//	redis://, rediss://        Redis key per pipeline
//	postgres://, postgresql:// table in PostgreSQL
//	sqlite://path              table in a SQLite file
//
// name scopes the checkpoint in shared stores; it is usually the pipeline namespace.
//
// nolint:ireturn // the store is selected at runtime
func Open(ctx context.Context, logger *slog.Logger, location, name string) (Store, error) {
	if location == "" {
		return NewMemory(), nil
	}

	scheme, rest, found := strings.Cut(location, "://")
	if !found {
		return NewFile(location), nil
	}

	switch scheme {
	case "file":
		return NewFile(rest), nil
	case "redis", "rediss":
		return nonNil(NewRedis(ctx, logger, location, name))
	case "postgres", "postgresql":
		return nonNil(NewSQL(ctx, logger, DriverPostgres, location, name))
	case "sqlite":
		return nonNil(NewSQL(ctx, logger, DriverSQLite, rest, name))
	default:
		return nil, &Error{Op: "Open", Location: location, Err: ErrUnsupportedScheme}
	}
}

// nolint:ireturn
func nonNil[S Store](store S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}

	return store, nil
}
