package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys for simulations
const (
	AttrBatchID  = "sim.batch_id"
	AttrRunID    = "sim.run_id"
	AttrSteps    = "sim.steps"
	AttrNumSims  = "sim.num_sims"
	AttrRows     = "sim.rows"
	AttrWorkers  = "sim.workers"
	AttrKeySeed  = "sim.key_seed"
	AttrTarget   = "sim.target_site"
	AttrFinalRow = "sim.final_rows"
)

// SimulationTracer opens spans around simulation batches and trajectories.
type SimulationTracer struct {
	tracer trace.Tracer
}

// NewSimulationTracer creates a tracer bound to the global provider.
func NewSimulationTracer() *SimulationTracer {
	return &SimulationTracer{tracer: GetSimulationTracer()}
}

// TraceBatch starts the span of a multi-run simulation.
func (st *SimulationTracer) TraceBatch(ctx context.Context, batchID string, numSims, steps, workers int) (context.Context, trace.Span) {
	return StartSpan(ctx, st.tracer, "simulate_paths",
		StringAttribute(AttrBatchID, batchID),
		Int64Attribute(AttrNumSims, int64(numSims)),
		Int64Attribute(AttrSteps, int64(steps)),
		Int64Attribute(AttrWorkers, int64(workers)),
	)
}

// TracePath starts the span of a single trajectory.
func (st *SimulationTracer) TracePath(ctx context.Context, runID, steps, startRows int, target string) (context.Context, trace.Span) {
	return StartSpan(ctx, st.tracer, "simulate_path",
		Int64Attribute(AttrRunID, int64(runID)),
		Int64Attribute(AttrSteps, int64(steps)),
		Int64Attribute(AttrRows, int64(startRows)),
		StringAttribute(AttrTarget, target),
	)
}
