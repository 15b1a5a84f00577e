package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series is a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

const (
	defaultPlotHeight = 10
	minPlotWidth      = 10
	fallbackWidth     = 80
	axisSeparator     = " │ "
	colorReset        = "\x1b[0m"
)

var axisLabels = [3]string{"max", "mid", "min"}

var palette = []string{"\x1b[36m", "\x1b[35m", "\x1b[33m", "\x1b[32m", "\x1b[34m"}

// braille dot bits indexed by [x%2][y%4].
var dotBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// canvas holds one braille layer per series so each keeps its color.
type canvas struct {
	width, height int
	layers        [][]uint8
}

func newCanvas(width, height, layers int) *canvas {
	c := &canvas{width: width, height: height, layers: make([][]uint8, layers)}
	for i := range c.layers {
		c.layers[i] = make([]uint8, width*height)
	}
	return c
}

func (c *canvas) set(layer, x, y int) {
	cx, cy := x/2, y/4
	if x < 0 || y < 0 || cx >= c.width || cy >= c.height {
		return
	}
	c.layers[layer][cy*c.width+cx] |= dotBits[x%2][y%4]
}

// line draws with Bresenham between two dot coordinates.
func (c *canvas) line(layer, x0, y0, x1, y1 int) {
	dx, sx := abs(x1-x0), sign(x1-x0)
	dy, sy := -abs(y1-y0), sign(y1-y0)
	e := dx + dy
	for {
		c.set(layer, x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// cell merges all layers and reports the first layer that drew there.
func (c *canvas) cell(x, y int) (rune, int) {
	var mask uint8
	owner := -1
	for i, layer := range c.layers {
		if m := layer[y*c.width+x]; m != 0 {
			mask |= m
			if owner < 0 {
				owner = i
			}
		}
	}
	return rune(0x2800 + int(mask)), owner
}

// Plot renders series scaled independently onto a shared braille grid.
func Plot(w io.Writer, title string, series []Series, width, height int, forceColor bool) error {
	kept := series[:0:0]
	for _, s := range series {
		if len(s.Values) > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	if height <= 0 {
		height = defaultPlotHeight
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth())
	}
	width = max(width, minPlotWidth)

	c := newCanvas(width, height, len(kept))
	ranges := make([][2]float64, len(kept))
	dotsHigh := height * 4
	for i, s := range kept {
		values := resample(s.Values, width)
		lo, hi := minMax(values)
		if math.Abs(hi-lo) < 1e-9 {
			lo, hi = lo-1, hi+1
		}
		ranges[i] = [2]float64{lo, hi}
		px, py := -1, -1
		for x, v := range values {
			y := int(math.Round((1 - (v-lo)/(hi-lo)) * float64(dotsHigh-1)))
			y = max(0, min(y, dotsHigh-1))
			if px >= 0 {
				c.line(i, px, py, x*2, y)
			} else {
				c.set(i, x*2, y)
			}
			px, py = x*2, y
		}
	}

	color := useColor(w, forceColor)
	labelWidth := len(axisLabels[0])
	lines := []string{title}
	for i, s := range kept {
		lines = append(lines, fmt.Sprintf("%s: min=%.2f max=%.2f", s.Name, ranges[i][0], ranges[i][1]))
	}
	for y := 0; y < height; y++ {
		var b strings.Builder
		fmt.Fprintf(&b, "%*s%s", labelWidth, rowLabel(y, height), axisSeparator)
		for x := 0; x < width; x++ {
			ch, owner := c.cell(x, y)
			if color && owner >= 0 {
				b.WriteString(palette[owner%len(palette)])
				b.WriteRune(ch)
				b.WriteString(colorReset)
				continue
			}
			b.WriteRune(ch)
		}
		lines = append(lines, b.String())
	}
	lines = append(lines, legend(kept, color), "")
	if title == "" {
		lines = lines[1:]
	}
	return writeLines(w, lines)
}

func rowLabel(y, height int) string {
	switch {
	case y == 0:
		return axisLabels[0]
	case y == height-1:
		return axisLabels[2]
	case height > 2 && y == height/2:
		return axisLabels[1]
	}
	return ""
}

func legend(series []Series, color bool) string {
	parts := make([]string, len(series))
	for i, s := range series {
		label := "⠁ " + s.Name
		if color {
			label = palette[i%len(palette)] + label + colorReset
		}
		parts[i] = label
	}
	return "Legend: " + strings.Join(parts, "  ")
}

// PlotWidthFor computes a plot width that fits within the total width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	axis := len(axisLabels[0]) + runewidth.StringWidth(axisSeparator)
	return max(totalWidth-axis, minPlotWidth)
}

// resample stretches or averages values into exactly width points.
func resample(values []float64, width int) []float64 {
	out := make([]float64, width)
	n := len(values)
	switch {
	case n == width:
		copy(out, values)
	case n > width:
		for i := range out {
			start := i * n / width
			end := max((i+1)*n/width, start+1)
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	case n == 1 || width == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		for i := range out {
			pos := float64(i) * float64(n-1) / float64(width-1)
			idx := int(pos)
			if idx >= n-1 {
				out[i] = values[n-1]
				continue
			}
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return width
}

func useColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
