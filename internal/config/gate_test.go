package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmptyGateConfigDefaults(t *testing.T) {
	cfg := EmptyGateConfig()

	if got := cfg.GetTickInterval(); got != 33*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 33ms", got)
	}
	if got := cfg.GetHeartbeatTimeout(); got != 500*time.Millisecond {
		t.Errorf("GetHeartbeatTimeout() = %v, want 500ms", got)
	}
	if got := cfg.GetStopTimeout(); got != 30*time.Second {
		t.Errorf("GetStopTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWheelBase(); got != 2.89 {
		t.Errorf("GetWheelBase() = %v, want 2.89", got)
	}
	if got := cfg.GetStopSpeedThreshold(); got != 0.1 {
		t.Errorf("GetStopSpeedThreshold() = %v, want 0.1", got)
	}
	if got := cfg.GetStopDeceleration(); got != 2.5 {
		t.Errorf("GetStopDeceleration() = %v, want 2.5", got)
	}

	points := cfg.GetReferenceSpeedPoints()
	if len(points) != 4 || points[0] != 5 || points[3] != 20 {
		t.Errorf("GetReferenceSpeedPoints() = %v, want [5 10 15 20]", points)
	}
	if lims := cfg.GetLonAccLim(); len(lims) != 4 || lims[0] != 1.5 {
		t.Errorf("GetLonAccLim() = %v, want [1.5 1.0 0.8 0.6]", lims)
	}
}

func TestLoadGateConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "gate.json")

	testJSON := `{
  "tick_interval": "50ms",
  "heartbeat_timeout": "1s",
  "wheel_base": 3.1,
  "reference_speed_points": [5, 15],
  "lon_acc_lim": [2.0, 1.0],
  "lon_jerk_lim": [1.5, 0.8],
  "lat_acc_lim": [2.5, 1.5],
  "lat_jerk_lim": [2.0, 1.0],
  "actual_steer_diff_lim": [0.6, 0.3],
  "stop_timeout": "20s",
  "stop_speed_threshold": 0.2,
  "stop_deceleration": 3.0
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadGateConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetTickInterval(); got != 50*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 50ms", got)
	}
	if got := cfg.GetHeartbeatTimeout(); got != time.Second {
		t.Errorf("GetHeartbeatTimeout() = %v, want 1s", got)
	}
	if got := cfg.GetWheelBase(); got != 3.1 {
		t.Errorf("GetWheelBase() = %v, want 3.1", got)
	}
	if got := cfg.GetStopDeceleration(); got != 3.0 {
		t.Errorf("GetStopDeceleration() = %v, want 3.0", got)
	}
	if points := cfg.GetReferenceSpeedPoints(); len(points) != 2 {
		t.Errorf("GetReferenceSpeedPoints() = %v, want 2 points", points)
	}
}

func TestLoadGateConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "gate.json")

	// Partial configs keep defaults for everything omitted.
	if err := os.WriteFile(configPath, []byte(`{"wheel_base": 2.5}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadGateConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.GetWheelBase(); got != 2.5 {
		t.Errorf("GetWheelBase() = %v, want 2.5", got)
	}
	if got := cfg.GetTickInterval(); got != 33*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want default 33ms", got)
	}
}

func TestLoadGateConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadGateConfig(filepath.Join(tmpDir, "gate.yaml")); err == nil {
		t.Error("expected error for non-json extension")
	}
	if _, err := LoadGateConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	badJSON := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(badJSON, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadGateConfig(badJSON); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestGateConfigValidate(t *testing.T) {
	bad := func(mutate func(*GateConfig)) *GateConfig {
		cfg := EmptyGateConfig()
		mutate(cfg)
		return cfg
	}
	strPtr := func(s string) *string { return &s }
	f64Ptr := func(f float64) *float64 { return &f }

	cases := []struct {
		name string
		cfg  *GateConfig
	}{
		{"bad tick interval", bad(func(c *GateConfig) { c.TickInterval = strPtr("soon") })},
		{"bad heartbeat timeout", bad(func(c *GateConfig) { c.HeartbeatTimeout = strPtr("0.5") })},
		{"zero wheelbase", bad(func(c *GateConfig) { c.WheelBase = f64Ptr(0) })},
		{"negative stop threshold", bad(func(c *GateConfig) { c.StopSpeedThreshold = f64Ptr(-1) })},
		{"zero stop deceleration", bad(func(c *GateConfig) { c.StopDeceleration = f64Ptr(0) })},
		{"table length mismatch", bad(func(c *GateConfig) { c.LonAccLim = []float64{1.0} })},
	}
	for _, c := range cases {
		if err := c.cfg.Validate(); err == nil {
			t.Errorf("%s: Validate() accepted invalid config", c.name)
		}
	}

	if err := EmptyGateConfig().Validate(); err != nil {
		t.Errorf("Validate() on empty config: %v", err)
	}
}

func TestBuildFilterLimits(t *testing.T) {
	limits, err := EmptyGateConfig().BuildFilterLimits()
	if err != nil {
		t.Fatalf("BuildFilterLimits() on defaults: %v", err)
	}
	if got := limits.LonAcc.Lookup(10); got != 1.0 {
		t.Errorf("LonAcc.Lookup(10) = %v, want 1.0", got)
	}
	if got := limits.LatAcc.Lookup(20); got != 0.8 {
		t.Errorf("LatAcc.Lookup(20) = %v, want 0.8", got)
	}
	if limits.Wheelbase != 2.89 {
		t.Errorf("Wheelbase = %v, want 2.89", limits.Wheelbase)
	}

	// Non-increasing breakpoints surface as a build error.
	cfg := EmptyGateConfig()
	cfg.ReferenceSpeedPoints = []float64{10, 10, 15, 20}
	if _, err := cfg.BuildFilterLimits(); err == nil {
		t.Error("BuildFilterLimits() accepted non-increasing speed points")
	}
}

func TestBuildWatchdogConfig(t *testing.T) {
	wc := EmptyGateConfig().BuildWatchdogConfig()
	if wc.HeartbeatTimeout != 500*time.Millisecond {
		t.Errorf("HeartbeatTimeout = %v, want 500ms", wc.HeartbeatTimeout)
	}
	if wc.StopTimeout != 30*time.Second {
		t.Errorf("StopTimeout = %v, want 30s", wc.StopTimeout)
	}
	if wc.StopSpeedThreshold != 0.1 || wc.StopDeceleration != 2.5 {
		t.Errorf("stop policy = %v/%v, want 0.1/2.5", wc.StopSpeedThreshold, wc.StopDeceleration)
	}
}

func TestObjectsConfigDefaults(t *testing.T) {
	// A nil receiver returns every default, so callers can pass through
	// an absent objects block unchecked.
	var o *ObjectsConfig
	if got := o.GetIgnoreVelocityThreshold(); got != 1.0 {
		t.Errorf("GetIgnoreVelocityThreshold() = %v, want 1.0", got)
	}
	if got := o.GetCheckForwardDistance(); got != 100.0 {
		t.Errorf("GetCheckForwardDistance() = %v, want 100.0", got)
	}
	if got := o.GetCheckBackwardDistance(); got != 30.0 {
		t.Errorf("GetCheckBackwardDistance() = %v, want 30.0", got)
	}
	if got := o.GetClasses(); len(got) != 6 || got[5] != "pedestrian" {
		t.Errorf("GetClasses() = %v, want six default classes", got)
	}
	if got := o.GetTimeHorizon(); got != 5.0 {
		t.Errorf("GetTimeHorizon() = %v, want 5.0", got)
	}
	if got := o.GetEgoAcceleration(); got != -1.0 {
		t.Errorf("GetEgoAcceleration() = %v, want -1.0", got)
	}
}

func TestLoadDefaultsFile(t *testing.T) {
	// The checked-in defaults file must load and validate.
	path := filepath.Join("..", "..", DefaultConfigPath)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("defaults file not present: %v", err)
	}
	cfg, err := LoadGateConfig(path)
	if err != nil {
		t.Fatalf("Failed to load defaults file: %v", err)
	}
	if _, err := cfg.BuildFilterLimits(); err != nil {
		t.Errorf("BuildFilterLimits() on defaults file: %v", err)
	}
}
