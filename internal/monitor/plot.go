package monitor

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vehicle.gate/internal/gate"
)

// SaveLimitProfiles renders each speed-dependent limit table as a line
// plot PNG under outputDir. Useful for reviewing a tuning change before
// deploying it.
func SaveLimitProfiles(limits gate.FilterLimits, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tables := []struct {
		name  string
		unit  string
		table *gate.LimitTable
	}{
		{"lon_acc", "m/s²", limits.LonAcc},
		{"lon_jerk", "m/s³", limits.LonJerk},
		{"lat_acc", "m/s²", limits.LatAcc},
		{"lat_jerk", "m/s³", limits.LatJerk},
		{"steer_diff", "rad/s", limits.SteerDiff},
	}

	for _, tb := range tables {
		if tb.table == nil {
			continue
		}
		if err := saveProfile(tb.name, tb.unit, tb.table, outputDir); err != nil {
			return err
		}
	}
	return nil
}

func saveProfile(name, unit string, table *gate.LimitTable, outputDir string) error {
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "speed (m/s)"
	p.Y.Label.Text = fmt.Sprintf("limit (%s)", unit)

	// Sample finely so the interpolation and clamping are visible, not
	// just the reference points.
	maxSpeed := table.MaxSpeed() * 1.2
	const samples = 200
	pts := make(plotter.XYs, samples+1)
	for i := 0; i <= samples; i++ {
		v := maxSpeed * float64(i) / samples
		pts[i].X = v
		pts[i].Y = table.Lookup(v)
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build %s line: %w", name, err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	outFile := filepath.Join(outputDir, name+".png")
	if err := p.Save(10*vg.Inch, 5*vg.Inch, outFile); err != nil {
		return fmt.Errorf("failed to save %s plot: %w", name, err)
	}
	return nil
}
