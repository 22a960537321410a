package cadence

import "time"

// MetricsHook lets hosts observe key engine events and durations.
// Implementers can log, aggregate metrics, or emit traces.
type MetricsHook interface {
	// Render lifecycle, called from the render thread; implementations
	// must be cheap and non-blocking.
	OnRenderStart(frames int)
	OnRenderDone(duration time.Duration, frames int)

	// Project lifecycle.
	OnProjectLoaded(nodes, resources int)
}
