package engine

import "cambang/engine/internal/tuning"

// Config configures a Core instance: queue capacities, tuning constants,
// and which ambient-stack features are enabled.
type Config struct {
	CommandQueueCapacity int
	EventQueueCapacity   int

	Tuning tuning.Constants

	MetricsEnabled bool
	MetricsBackend string // "noop" | "prometheus" | "otel"

	TracingEnabled bool
	ServiceName    string

	EventsEnabled       bool
	EventBusSubscriberBuffer int
}

// Defaults returns a Config with the v1 default tuning constants and
// metrics/tracing disabled (noop backends), matching a zero-dependency
// embedder's expectations until they opt in.
func Defaults() Config {
	return Config{
		CommandQueueCapacity:     256,
		EventQueueCapacity:       256,
		Tuning:                   tuning.Defaults(),
		MetricsEnabled:           false,
		MetricsBackend:           "noop",
		TracingEnabled:           false,
		ServiceName:              "cambang",
		EventsEnabled:            true,
		EventBusSubscriberBuffer: 64,
	}
}
