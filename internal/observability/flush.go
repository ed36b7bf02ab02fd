package observability

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FlushTelemetry flushes the logger and runs closers (cache clients) before
// process exit. Metrics are pull-based and need no flush. Errors from all
// steps are combined. Call after in-flight requests have drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...func() error) error {
	var err error
	for _, c := range closers {
		if ctx.Err() != nil {
			err = multierr.Append(err, ctx.Err())
			break
		}
		if c != nil {
			err = multierr.Append(err, c())
		}
	}
	if logger != nil {
		if syncErr := logger.Sync(); syncErr != nil {
			err = multierr.Append(err, fmt.Errorf("flush logs: %w", syncErr))
		}
	}
	return err
}
