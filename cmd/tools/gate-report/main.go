// Command gate-report renders plots from a gate audit database: emitted
// speed, acceleration, and steering against the raw candidates, for
// post-drive review.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/vehicle.gate/internal/db"
)

var (
	dbFile    = flag.String("db", "gate.db", "Audit trail database file")
	outputDir = flag.String("out", "report", "Output directory for plots")
	limit     = flag.Int("limit", 100000, "Maximum ticks to load (newest first)")
)

func main() {
	flag.Parse()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	ticks, err := database.RecentTicks(*limit)
	if err != nil {
		log.Fatalf("failed to load ticks: %v", err)
	}
	if len(ticks) == 0 {
		log.Fatal("no ticks recorded")
	}

	// RecentTicks is newest first; plots read better in time order.
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	plots := []struct {
		name string
		unit string
		raw  func(db.TickRecord) float64
		out  func(db.TickRecord) float64
	}{
		{"steering", "rad",
			func(t db.TickRecord) float64 { return t.RawSteering },
			func(t db.TickRecord) float64 { return t.OutSteering }},
		{"speed", "m/s",
			func(t db.TickRecord) float64 { return t.RawSpeed },
			func(t db.TickRecord) float64 { return t.OutSpeed }},
		{"acceleration", "m/s²",
			func(t db.TickRecord) float64 { return t.RawAccel },
			func(t db.TickRecord) float64 { return t.OutAccel }},
	}

	for _, pl := range plots {
		if err := savePlot(ticks, pl.name, pl.unit, pl.raw, pl.out); err != nil {
			log.Fatalf("failed to plot %s: %v", pl.name, err)
		}
		printSummary(ticks, pl.name, pl.unit, pl.raw, pl.out)
	}

	log.Printf("report written to %s (%d ticks)", *outputDir, len(ticks))
}

func printSummary(ticks []db.TickRecord, name, unit string, raw, out func(db.TickRecord) float64) {
	rawVals := make([]float64, len(ticks))
	outVals := make([]float64, len(ticks))
	deltas := make([]float64, len(ticks))
	for i, t := range ticks {
		rawVals[i] = raw(t)
		outVals[i] = out(t)
		deltas[i] = out(t) - raw(t)
	}
	rawMean, rawStd := stat.MeanStdDev(rawVals, nil)
	outMean, outStd := stat.MeanStdDev(outVals, nil)
	deltaMean, _ := stat.MeanStdDev(deltas, nil)
	log.Printf("%s: raw mean %.3f std %.3f, emitted mean %.3f std %.3f, mean delta %.3f %s",
		name, rawMean, rawStd, outMean, outStd, deltaMean, unit)
}

func savePlot(ticks []db.TickRecord, name, unit string, raw, out func(db.TickRecord) float64) error {
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = "tick"
	p.Y.Label.Text = unit

	rawPts := make(plotter.XYs, len(ticks))
	outPts := make(plotter.XYs, len(ticks))
	for i, t := range ticks {
		rawPts[i].X = float64(t.Tick)
		rawPts[i].Y = raw(t)
		outPts[i].X = float64(t.Tick)
		outPts[i].Y = out(t)
	}

	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		return fmt.Errorf("raw line: %w", err)
	}
	rawLine.Width = vg.Points(1)
	rawLine.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}

	outLine, err := plotter.NewLine(outPts)
	if err != nil {
		return fmt.Errorf("emitted line: %w", err)
	}
	outLine.Width = vg.Points(1)

	p.Add(rawLine, outLine)
	p.Legend.Add("raw", rawLine)
	p.Legend.Add("emitted", outLine)

	outFile := filepath.Join(*outputDir, name+".png")
	return p.Save(14*vg.Inch, 6*vg.Inch, outFile)
}
