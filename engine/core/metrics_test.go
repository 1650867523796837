package core

import "testing"

func resetMetrics(t *testing.T) {
	t.Helper()
	if err := MetricsInitialize(); err != nil {
		t.Fatalf("MetricsInitialize: %v", err)
	}
	metricsState = &MetricsState{}
}

func TestMetricsRollingAverage(t *testing.T) {
	resetMetrics(t)

	// A full window of 16ms frames averages to 16ms.
	for i := uint8(0); i < AVG_COUNT; i++ {
		MetricsUpdate(0.016)
	}

	avg := MetricsFrameTime()
	if avg < 15.9 || avg > 16.1 {
		t.Fatalf("frame time average = %f ms, want ~16", avg)
	}
}

func TestMetricsFPSAfterOneSecond(t *testing.T) {
	resetMetrics(t)

	// Push just past one accumulated second of 10ms frames.
	for i := 0; i < 101; i++ {
		MetricsUpdate(0.010)
	}

	fps := MetricsFPS()
	if fps < 90 || fps > 110 {
		t.Fatalf("fps = %f, want ~100", fps)
	}
}
