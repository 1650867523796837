package config

import "testing"

func TestDecodeOverridesDefaults(t *testing.T) {
	data := []byte(`
name = "demo"
start_width = 800
start_height = 600
log_level = "info"

[renderer]
max_frames_in_flight = 3
vsync = true
`)
	cfg := Default()
	if err := Decode(data, cfg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cfg.Name != "demo" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Renderer.MaxFramesInFlight != 3 {
		t.Errorf("max frames in flight = %d", cfg.Renderer.MaxFramesInFlight)
	}
	if !cfg.Renderer.VSync {
		t.Error("vsync not applied")
	}
	// Untouched keys keep their defaults.
	if cfg.Renderer.MaxRebuildAttempts != 8 {
		t.Errorf("rebuild attempts = %d", cfg.Renderer.MaxRebuildAttempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"zero frames", "[renderer]\nmax_frames_in_flight = 0\n"},
		{"too many frames", "[renderer]\nmax_frames_in_flight = 7\n"},
		{"zero width", "start_width = 0\n"},
		{"bad level", `log_level = "loud"` + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Decode([]byte(tc.data), Default()); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
