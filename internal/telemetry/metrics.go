package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Domain counters. They point at no-op instruments until Init runs, so
// recording is always safe.
var (
	commitCounter   metric.Int64Counter
	blobCounter     metric.Int64Counter
	dispatchCounter metric.Int64Counter
	exportCounter   metric.Int64Counter
)

func initInstruments() {
	meter := Meter("")
	commitCounter, _ = meter.Int64Counter("templedb.commits",
		metric.WithDescription("Commits persisted"))
	blobCounter, _ = meter.Int64Counter("templedb.blobs.written",
		metric.WithDescription("Content blobs written through commits"))
	dispatchCounter, _ = meter.Int64Counter("templedb.work.dispatched",
		metric.WithDescription("Work items dispatched to agents"))
	exportCounter, _ = meter.Int64Counter("templedb.cathedral.exports",
		metric.WithDescription("Cathedral packages exported"))
}

// RecordCommit counts one persisted commit and the blobs it wrote.
func RecordCommit(ctx context.Context, blobs int) {
	if commitCounter == nil {
		return
	}
	commitCounter.Add(ctx, 1)
	blobCounter.Add(ctx, int64(blobs))
}

// RecordDispatch counts work items handed to agents.
func RecordDispatch(ctx context.Context, n int) {
	if dispatchCounter == nil {
		return
	}
	dispatchCounter.Add(ctx, int64(n))
}

// RecordExport counts one cathedral export.
func RecordExport(ctx context.Context) {
	if exportCounter == nil {
		return
	}
	exportCounter.Add(ctx, 1)
}
