package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// NewAmplitudePlot creates new plot of dipole amplitude time courses.
// amps stores one dipole amplitude time course per row; times stores sample times.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * amps is nil
// * the number of amps columns does not match the number of times
// * gonum plot fails to be created
func NewAmplitudePlot(times []float64, amps *mat.Dense) (*plot.Plot, error) {
	if amps == nil {
		return nil, fmt.Errorf("invalid amplitudes supplied")
	}

	rows, cols := amps.Dims()
	if cols != len(times) {
		return nil, fmt.Errorf("invalid amplitude dimensions: %d samples, %d times", cols, len(times))
	}

	p := plot.New()

	p.Title.Text = "Dipole amplitudes"
	p.X.Label.Text = "Time [s]"
	p.Y.Label.Text = "Amplitude"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	for i := 0; i < rows; i++ {
		line, err := plotter.NewLine(makePoints(times, amps.RawRowView(i)))
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %w", err)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(1.5)

		p.Add(line)
		p.Legend.Add(fmt.Sprintf("dipole %d", i), line)
	}

	return p, nil
}

// NewDataPlot creates new butterfly plot of sensor data: one line per sensor.
// It returns error if the data is empty or the number of data columns does not match the number of times.
func NewDataPlot(ev *Evoked) (*plot.Plot, error) {
	rows, cols := ev.data.Dims()
	if cols == 0 || cols != len(ev.times) {
		return nil, fmt.Errorf("invalid data dimensions: %d samples, %d times", cols, len(ev.times))
	}

	p := plot.New()

	p.Title.Text = "Sensor data"
	p.X.Label.Text = "Time [s]"
	p.Y.Label.Text = "Potential"

	for i := 0; i < rows; i++ {
		line, err := plotter.NewLine(makePoints(ev.times, ev.data.RawRowView(i)))
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %w", err)
		}
		line.LineStyle.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}
		line.LineStyle.Width = vg.Points(0.5)
		p.Add(line)
	}

	// zero line
	zero, err := plotter.NewLine(plotter.XYs{{X: ev.times[0], Y: 0}, {X: ev.times[len(ev.times)-1], Y: 0}})
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %w", err)
	}
	zero.LineStyle.Color = color.Black
	zero.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	p.Add(zero)

	return p, nil
}

func makePoints(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}

	return pts
}
