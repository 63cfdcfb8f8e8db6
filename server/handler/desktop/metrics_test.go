package desktop

import "testing"

func TestSummarizeDesktopMetrics(t *testing.T) {
	pack := Packet{
		Act: "DESKTOP_METRICS",
		Data: map[string]any{
			"frames":     float64(48),
			"bytes":      float64(96000),
			"blocks":     float64(96),
			"intervalMs": float64(2000),
			"queueDrops": float64(3),
			"lastError":  "encode failed",
		},
	}
	result := summarizeDesktopMetrics("dev-1", pack)
	if result == nil {
		t.Fatal("expected derived metrics")
	}
	if fps, _ := result["fps"].(float64); fps != 24 {
		t.Fatalf("expected 24 fps, got %v", result["fps"])
	}
	if bw, _ := result["bandwidthBytesPerSec"].(float64); bw != 48000 {
		t.Fatalf("expected 48000 B/s, got %v", result["bandwidthBytesPerSec"])
	}
	if avg, _ := result["avgBlocksPerFrame"].(float64); avg != 2 {
		t.Fatalf("expected 2 blocks/frame, got %v", result["avgBlocksPerFrame"])
	}
	if result["lastError"] != "encode failed" {
		t.Fatalf("expected lastError to propagate")
	}
}

func TestSummarizeDesktopMetricsRejectsPartialData(t *testing.T) {
	if summarizeDesktopMetrics("dev-1", Packet{}) != nil {
		t.Fatal("expected nil for missing data")
	}
	pack := Packet{Data: map[string]any{"frames": float64(10)}}
	if summarizeDesktopMetrics("dev-1", pack) != nil {
		t.Fatal("expected nil when bytes/interval missing")
	}
	pack = Packet{Data: map[string]any{
		"frames":     float64(10),
		"bytes":      float64(100),
		"intervalMs": float64(0),
	}}
	if summarizeDesktopMetrics("dev-1", pack) != nil {
		t.Fatal("expected nil for zero interval")
	}
}

func TestMetricFloatNumericTypes(t *testing.T) {
	cases := []any{float64(5), float32(5), int(5), int32(5), int64(5), uint(5), uint32(5), uint64(5)}
	for _, val := range cases {
		got, ok := metricFloat(val)
		if !ok || got != 5 {
			t.Fatalf("metricFloat(%T) = %v, %v", val, got, ok)
		}
	}
	if _, ok := metricFloat("5"); ok {
		t.Fatal("strings should not convert")
	}
}
