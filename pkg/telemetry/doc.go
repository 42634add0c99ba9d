// Package telemetry provides logging, tracing, metrics and events for
// trackforge batches.
//
// Four pieces are bundled in Telemetry:
//
//  1. Logger - zerolog with batch_id, sequence and operation fields
//  2. Tracer - OpenTelemetry spans per batch, per sequence unit and per commit
//  3. Metrics - Prometheus counters, histograms and gauges on a private registry
//  4. EventPublisher - batch and sequence notifications, optionally asynchronous
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx := tel.WithContext(context.Background())
//	ctx = telemetry.WithBatchContext(ctx, telemetry.BatchInfo{ID: id, Operation: "arithmetic"})
//	// ... run sequence units with WithSequenceContext / EndSequenceContext
//	telemetry.EndBatchContext(ctx, "succeeded", 0, nil)
//
// Code that runs without a Telemetry in its context still gets a logger from
// FromContext; every other helper becomes a no-op.
package telemetry
