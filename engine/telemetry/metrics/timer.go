package metrics

import "time"

// startedTimer is the shared Timer implementation used by both the
// Prometheus and OTel backends: it just remembers a start time and an
// observation sink.
type startedTimer struct {
	h     Histogram
	start time.Time
}

func newStartedTimer(h Histogram) Timer {
	return &startedTimer{h: h, start: time.Now()}
}

func (t *startedTimer) ObserveDuration(labels ...string) {
	t.h.Observe(time.Since(t.start).Seconds(), labels...)
}
