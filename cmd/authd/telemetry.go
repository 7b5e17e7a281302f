package main

import (
	"context"
	"fmt"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/metrics/export/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// startMetricsExport pushes Engine metrics to an OTLP collector every
// interval. With an empty endpoint it does nothing.
func startMetricsExport(ctx context.Context, endpoint string, insecure bool, interval time.Duration, source otel.MetricsSource) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	exporter, err := otel.NewExporter(mp.Meter("github.com/VilnaCRM-Org/user-service-sub004"), source)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		_ = exporter.Close()
		return mp.Shutdown(ctx)
	}, nil
}
