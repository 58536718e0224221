// Package telemetry installs the process-wide OpenTelemetry log pipeline the
// otelslog loggers in every package write to.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type ShutdownFunc func(ctx context.Context) error

// Setup exports log records to w and installs the provider globally. The
// returned function flushes pending records and must be called on exit.
func Setup(w io.Writer) (ShutdownFunc, error) {
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(provider)

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to flush logs: %w", err)
		}
		return nil
	}, nil
}
