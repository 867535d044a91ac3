// Package config loads the gate's startup configuration. All values are
// loaded once at process start and are immutable thereafter; malformed
// configuration is fatal at startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/vehicle.gate/internal/gate"
)

// DefaultConfigPath is the path to the canonical gate defaults file.
const DefaultConfigPath = "config/gate.defaults.json"

// Reference limit schedule used when the config file omits the tables.
// Speeds in m/s, accelerations in m/s², jerks in m/s³, steer diff in rad/s.
var (
	defaultSpeedPoints   = []float64{5, 10, 15, 20}
	defaultLonAccLim     = []float64{1.5, 1.0, 0.8, 0.6}
	defaultLonJerkLim    = []float64{1.4, 0.9, 0.7, 0.5}
	defaultLatAccLim     = []float64{2.0, 1.6, 1.2, 0.8}
	defaultLatJerkLim    = []float64{1.7, 1.3, 0.9, 0.6}
	defaultSteerDiffLim  = []float64{0.5, 0.4, 0.2, 0.1}
	defaultWheelBase     = 2.89
	defaultStopDecel     = 2.5
	defaultStopSpeed     = 0.1
	defaultTickInterval  = "33ms"
	defaultHeartbeatLoss = "500ms"
	defaultStopTimeout   = "30s"
)

// GateConfig is the root configuration. Fields omitted from the JSON file
// retain their defaults via the Get* accessors, so partial configs are
// safe.
type GateConfig struct {
	TickInterval     *string `json:"tick_interval,omitempty"`     // duration string like "33ms"
	HeartbeatTimeout *string `json:"heartbeat_timeout,omitempty"` // duration string like "500ms"

	WheelBase *float64 `json:"wheel_base,omitempty"` // m

	// Limit tables, all sharing the same speed breakpoints.
	ReferenceSpeedPoints []float64 `json:"reference_speed_points,omitempty"`
	LonAccLim            []float64 `json:"lon_acc_lim,omitempty"`
	LonJerkLim           []float64 `json:"lon_jerk_lim,omitempty"`
	LatAccLim            []float64 `json:"lat_acc_lim,omitempty"`
	LatJerkLim           []float64 `json:"lat_jerk_lim,omitempty"`
	ActualSteerDiffLim   []float64 `json:"actual_steer_diff_lim,omitempty"`

	// Watchdog stop policy.
	StopTimeout        *string  `json:"stop_timeout,omitempty"` // duration string like "30s"
	StopSpeedThreshold *float64 `json:"stop_speed_threshold,omitempty"`
	StopDeceleration   *float64 `json:"stop_deceleration,omitempty"`

	// Perception object filtering (collaborator surface).
	Objects *ObjectsConfig `json:"objects,omitempty"`
}

// ObjectsConfig configures the perception objects filter.
type ObjectsConfig struct {
	IgnoreVelocityThreshold *float64 `json:"ignore_velocity_threshold,omitempty"` // m/s
	CheckForwardDistance    *float64 `json:"check_forward_distance,omitempty"`    // m
	CheckBackwardDistance   *float64 `json:"check_backward_distance,omitempty"`   // m
	Classes                 []string `json:"classes,omitempty"`
	TimeHorizon             *float64 `json:"time_horizon,omitempty"`     // s
	TimeResolution          *float64 `json:"time_resolution,omitempty"`  // s
	MinSlowDownSpeed        *float64 `json:"min_slow_down_speed,omitempty"`
	EgoAcceleration         *float64 `json:"ego_acceleration,omitempty"`
}

// EmptyGateConfig returns a GateConfig with all fields unset.
func EmptyGateConfig() *GateConfig {
	return &GateConfig{}
}

// LoadGateConfig loads a GateConfig from a JSON file. The file must have a
// .json extension and stay under the max file size.
func LoadGateConfig(path string) (*GateConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyGateConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are well formed. The limit
// tables themselves are validated again when built; this catches the
// cheap-to-report problems with a config-file vocabulary.
func (c *GateConfig) Validate() error {
	for name, s := range map[string]*string{
		"tick_interval":     c.TickInterval,
		"heartbeat_timeout": c.HeartbeatTimeout,
		"stop_timeout":      c.StopTimeout,
	} {
		if s != nil && *s != "" {
			if _, err := time.ParseDuration(*s); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
			}
		}
	}

	if c.WheelBase != nil && *c.WheelBase <= 0 {
		return fmt.Errorf("wheel_base must be positive, got %v", *c.WheelBase)
	}
	if c.StopSpeedThreshold != nil && *c.StopSpeedThreshold < 0 {
		return fmt.Errorf("stop_speed_threshold must be non-negative, got %v", *c.StopSpeedThreshold)
	}
	if c.StopDeceleration != nil && *c.StopDeceleration <= 0 {
		return fmt.Errorf("stop_deceleration must be positive, got %v", *c.StopDeceleration)
	}

	points := c.GetReferenceSpeedPoints()
	for name, lims := range map[string][]float64{
		"lon_acc_lim":           c.GetLonAccLim(),
		"lon_jerk_lim":          c.GetLonJerkLim(),
		"lat_acc_lim":           c.GetLatAccLim(),
		"lat_jerk_lim":          c.GetLatJerkLim(),
		"actual_steer_diff_lim": c.GetActualSteerDiffLim(),
	} {
		if len(lims) != len(points) {
			return fmt.Errorf("%s has %d entries but reference_speed_points has %d", name, len(lims), len(points))
		}
	}

	return nil
}

// GetTickInterval parses and returns the tick interval.
func (c *GateConfig) GetTickInterval() time.Duration {
	return c.durationOr(c.TickInterval, defaultTickInterval)
}

// GetHeartbeatTimeout parses and returns the heartbeat timeout.
func (c *GateConfig) GetHeartbeatTimeout() time.Duration {
	return c.durationOr(c.HeartbeatTimeout, defaultHeartbeatLoss)
}

// GetStopTimeout parses and returns the MRM stop time bound.
func (c *GateConfig) GetStopTimeout() time.Duration {
	return c.durationOr(c.StopTimeout, defaultStopTimeout)
}

func (c *GateConfig) durationOr(s *string, def string) time.Duration {
	if s == nil || *s == "" {
		d, _ := time.ParseDuration(def)
		return d
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

// GetWheelBase returns the wheelbase or the default.
func (c *GateConfig) GetWheelBase() float64 {
	if c.WheelBase == nil {
		return defaultWheelBase
	}
	return *c.WheelBase
}

// GetStopSpeedThreshold returns the stationary threshold or the default.
func (c *GateConfig) GetStopSpeedThreshold() float64 {
	if c.StopSpeedThreshold == nil {
		return defaultStopSpeed
	}
	return *c.StopSpeedThreshold
}

// GetStopDeceleration returns the override deceleration or the default.
func (c *GateConfig) GetStopDeceleration() float64 {
	if c.StopDeceleration == nil {
		return defaultStopDecel
	}
	return *c.StopDeceleration
}

// GetReferenceSpeedPoints returns the shared speed breakpoints.
func (c *GateConfig) GetReferenceSpeedPoints() []float64 {
	if len(c.ReferenceSpeedPoints) == 0 {
		return defaultSpeedPoints
	}
	return c.ReferenceSpeedPoints
}

// GetLonAccLim returns the longitudinal acceleration limits.
func (c *GateConfig) GetLonAccLim() []float64 {
	if len(c.LonAccLim) == 0 {
		return defaultLonAccLim
	}
	return c.LonAccLim
}

// GetLonJerkLim returns the longitudinal jerk limits.
func (c *GateConfig) GetLonJerkLim() []float64 {
	if len(c.LonJerkLim) == 0 {
		return defaultLonJerkLim
	}
	return c.LonJerkLim
}

// GetLatAccLim returns the lateral acceleration limits.
func (c *GateConfig) GetLatAccLim() []float64 {
	if len(c.LatAccLim) == 0 {
		return defaultLatAccLim
	}
	return c.LatAccLim
}

// GetLatJerkLim returns the lateral jerk limits.
func (c *GateConfig) GetLatJerkLim() []float64 {
	if len(c.LatJerkLim) == 0 {
		return defaultLatJerkLim
	}
	return c.LatJerkLim
}

// GetActualSteerDiffLim returns the steering-rate limits.
func (c *GateConfig) GetActualSteerDiffLim() []float64 {
	if len(c.ActualSteerDiffLim) == 0 {
		return defaultSteerDiffLim
	}
	return c.ActualSteerDiffLim
}

// BuildFilterLimits constructs the five limit tables for the rate-limit
// filter. Table construction errors (too few points, non-increasing
// speeds) come back as errors so main can fail fast before any component
// is partially initialized.
func (c *GateConfig) BuildFilterLimits() (gate.FilterLimits, error) {
	points := c.GetReferenceSpeedPoints()

	var limits gate.FilterLimits
	var err error
	if limits.LonAcc, err = gate.NewLimitTable(points, c.GetLonAccLim()); err != nil {
		return gate.FilterLimits{}, fmt.Errorf("lon_acc_lim: %w", err)
	}
	if limits.LonJerk, err = gate.NewLimitTable(points, c.GetLonJerkLim()); err != nil {
		return gate.FilterLimits{}, fmt.Errorf("lon_jerk_lim: %w", err)
	}
	if limits.LatAcc, err = gate.NewLimitTable(points, c.GetLatAccLim()); err != nil {
		return gate.FilterLimits{}, fmt.Errorf("lat_acc_lim: %w", err)
	}
	if limits.LatJerk, err = gate.NewLimitTable(points, c.GetLatJerkLim()); err != nil {
		return gate.FilterLimits{}, fmt.Errorf("lat_jerk_lim: %w", err)
	}
	if limits.SteerDiff, err = gate.NewLimitTable(points, c.GetActualSteerDiffLim()); err != nil {
		return gate.FilterLimits{}, fmt.Errorf("actual_steer_diff_lim: %w", err)
	}
	limits.Wheelbase = c.GetWheelBase()
	if err := limits.Validate(); err != nil {
		return gate.FilterLimits{}, err
	}
	return limits, nil
}

// BuildWatchdogConfig assembles the watchdog stop policy.
func (c *GateConfig) BuildWatchdogConfig() gate.WatchdogConfig {
	return gate.WatchdogConfig{
		HeartbeatTimeout:   c.GetHeartbeatTimeout(),
		StopTimeout:        c.GetStopTimeout(),
		StopSpeedThreshold: c.GetStopSpeedThreshold(),
		StopDeceleration:   c.GetStopDeceleration(),
	}
}

// GetIgnoreVelocityThreshold returns the objects-filter velocity floor.
func (o *ObjectsConfig) GetIgnoreVelocityThreshold() float64 {
	if o == nil || o.IgnoreVelocityThreshold == nil {
		return 1.0
	}
	return *o.IgnoreVelocityThreshold
}

// GetCheckForwardDistance returns how far ahead objects are kept.
func (o *ObjectsConfig) GetCheckForwardDistance() float64 {
	if o == nil || o.CheckForwardDistance == nil {
		return 100.0
	}
	return *o.CheckForwardDistance
}

// GetCheckBackwardDistance returns how far behind objects are kept.
func (o *ObjectsConfig) GetCheckBackwardDistance() float64 {
	if o == nil || o.CheckBackwardDistance == nil {
		return 30.0
	}
	return *o.CheckBackwardDistance
}

// GetClasses returns the allowed object classes.
func (o *ObjectsConfig) GetClasses() []string {
	if o == nil || len(o.Classes) == 0 {
		return []string{"car", "truck", "bus", "motorcycle", "bicycle", "pedestrian"}
	}
	return o.Classes
}

// GetTimeHorizon returns the predicted-path horizon.
func (o *ObjectsConfig) GetTimeHorizon() float64 {
	if o == nil || o.TimeHorizon == nil {
		return 5.0
	}
	return *o.TimeHorizon
}

// GetTimeResolution returns the predicted-path sampling resolution.
func (o *ObjectsConfig) GetTimeResolution() float64 {
	if o == nil || o.TimeResolution == nil {
		return 0.5
	}
	return *o.TimeResolution
}

// GetMinSlowDownSpeed returns the floor for ego predicted speed.
func (o *ObjectsConfig) GetMinSlowDownSpeed() float64 {
	if o == nil || o.MinSlowDownSpeed == nil {
		return 1.0
	}
	return *o.MinSlowDownSpeed
}

// GetEgoAcceleration returns the ego predicted-path acceleration.
func (o *ObjectsConfig) GetEgoAcceleration() float64 {
	if o == nil || o.EgoAcceleration == nil {
		return -1.0
	}
	return *o.EgoAcceleration
}
