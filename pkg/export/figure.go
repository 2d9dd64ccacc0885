package export

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/breathwork/pkg/model"
)

// FigureOptions controls timeline figure export.
type FigureOptions struct {
	Path    string // Output path; format inferred from extension when Format empty
	Format  string // "svg" or "png" (case-insensitive)
	Title   string
	Width   int // pixels, default 1000
	Session *model.Session
	Cycles  []model.CycleSpan // drawn as brackets under the current lane
}

// SaveTimelineFigure draws the original and current timelines as coloured
// bands on a shared time axis.
func SaveTimelineFigure(opts FigureOptions) error {
	if opts.Session == nil {
		return fmt.Errorf("no session to draw")
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".png":
			format = "png"
		case ".svg":
			format = "svg"
		default:
			format = "svg"
			if filepath.Ext(opts.Path) == "" {
				opts.Path += ".svg"
			}
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	layout := buildFigure(opts)
	if format == "png" {
		return renderFigurePNG(opts.Path, layout)
	}
	f, err := os.Create(opts.Path)
	if err != nil {
		return err
	}
	if err := RenderTimelineSVG(f, layout); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// --- layout ----------------------------------------------------------------

type band struct {
	X, Y, W, H float64
	Type       model.EventType
	ID         int
}

type lane struct {
	Label string
	Y     float64
	Bands []band
}

type tick struct {
	X     float64
	Label string
}

type bracket struct {
	X1, X2, Y float64
	Label     string
}

// Figure is a laid-out timeline, ready for either renderer.
type Figure struct {
	Width, Height int
	Title         string
	Subtitle      string
	Lanes         []lane
	Ticks         []tick
	Brackets      []bracket
	AxisY         float64
	Left, Right   float64
}

const (
	figPadding    = 24.0
	figHeader     = 64.0
	figLabelWidth = 80.0
	figLaneHeight = 44.0
	figLaneGap    = 36.0
)

// BuildFigure lays out opts without rendering it.
func BuildFigure(opts FigureOptions) Figure {
	return buildFigure(opts)
}

func buildFigure(opts FigureOptions) Figure {
	sess := opts.Session
	width := opts.Width
	if width <= 0 {
		width = 1000
	}
	duration := sess.Duration
	for _, evs := range [][]model.Event{sess.Events, sess.OriginalEvents} {
		if n := len(evs); n > 0 && evs[n-1].End > duration {
			duration = evs[n-1].End
		}
	}
	if duration <= 0 {
		duration = 1
	}

	fig := Figure{
		Width:    width,
		Title:    opts.Title,
		Subtitle: fmt.Sprintf("%s  %.1f s  %d events (%d original)", sess.AudioFilename, duration, len(sess.Events), len(sess.OriginalEvents)),
		Left:     figPadding + figLabelWidth,
		Right:    float64(width) - figPadding,
	}
	if fig.Title == "" {
		fig.Title = "Respiratory timeline"
	}
	scale := (fig.Right - fig.Left) / duration
	x := func(t float64) float64 { return fig.Left + t*scale }

	y := figHeader + figPadding
	for _, l := range []struct {
		label  string
		events []model.Event
	}{{"original", sess.OriginalEvents}, {"current", sess.Events}} {
		ln := lane{Label: l.label, Y: y}
		for _, e := range l.events {
			ln.Bands = append(ln.Bands, band{
				X: x(e.Start), Y: y, W: math.Max(1, x(e.End)-x(e.Start)), H: figLaneHeight,
				Type: e.Type, ID: e.ID,
			})
		}
		fig.Lanes = append(fig.Lanes, ln)
		y += figLaneHeight + figLaneGap
	}

	// Cycle brackets hang in the gap under the current lane.
	cur := fig.Lanes[len(fig.Lanes)-1]
	for _, c := range opts.Cycles {
		fig.Brackets = append(fig.Brackets, bracket{
			X1: x(c.Start), X2: x(c.End), Y: cur.Y + figLaneHeight + 8,
			Label: fmt.Sprintf("%d", c.Cycle),
		})
	}

	fig.AxisY = y
	step := tickStep(duration)
	for t := 0.0; t <= duration+1e-9; t += step {
		fig.Ticks = append(fig.Ticks, tick{X: x(t), Label: fmt.Sprintf("%gs", t)})
	}
	fig.Height = int(y + 30 + figPadding)
	return fig
}

// tickStep picks a round step giving at most ten ticks.
func tickStep(duration float64) float64 {
	for _, s := range []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120, 300, 600, 1800} {
		if duration/s <= 10 {
			return s
		}
	}
	return math.Ceil(duration / 10)
}

// --- colours ---------------------------------------------------------------

var (
	colorInhale   = color.RGBA{0x64, 0xb5, 0xf6, 0xff}
	colorExhale   = color.RGBA{0x81, 0xc7, 0x84, 0xff}
	colorApnea    = color.RGBA{0xe5, 0x73, 0x73, 0xff}
	colorStroke   = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorText     = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle   = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorLaneBG   = color.RGBA{0xee, 0xee, 0xee, 0xff}
)

func typeColor(t model.EventType) color.RGBA {
	switch t {
	case model.Inhalation:
		return colorInhale
	case model.Exhalation:
		return colorExhale
	default:
		return colorApnea
	}
}

var legend = []model.EventType{model.Inhalation, model.Exhalation, model.Apnea}

// --- renderers -------------------------------------------------------------

func renderFigurePNG(path string, fig Figure) error {
	dc := gg.NewContext(fig.Width, fig.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetColor(colorText)
	dc.DrawStringAnchored(fig.Title, figPadding, figPadding+8, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(fig.Subtitle, figPadding, figPadding+28, 0, 0.5)

	lx := fig.Right - 3*110
	for i, t := range legend {
		x := lx + float64(i)*110
		dc.SetColor(typeColor(t))
		dc.DrawRectangle(x, figPadding, 14, 14)
		dc.Fill()
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(string(t), x+20, figPadding+7, 0, 0.5)
	}

	for _, ln := range fig.Lanes {
		dc.SetColor(colorLaneBG)
		dc.DrawRectangle(fig.Left, ln.Y, fig.Right-fig.Left, figLaneHeight)
		dc.Fill()
		dc.SetColor(colorText)
		dc.DrawStringAnchored(ln.Label, figPadding, ln.Y+figLaneHeight/2, 0, 0.5)
		for _, b := range ln.Bands {
			dc.SetColor(typeColor(b.Type))
			dc.DrawRectangle(b.X, b.Y, b.W, b.H)
			dc.Fill()
			dc.SetColor(colorStroke)
			dc.SetLineWidth(0.8)
			dc.DrawRectangle(b.X, b.Y, b.W, b.H)
			dc.Stroke()
			if b.W > 16 {
				dc.DrawStringAnchored(fmt.Sprintf("%d", b.ID), b.X+b.W/2, b.Y+b.H/2, 0.5, 0.5)
			}
		}
	}

	dc.SetColor(colorSubtle)
	dc.SetLineWidth(1)
	for _, br := range fig.Brackets {
		dc.DrawLine(br.X1, br.Y, br.X2, br.Y)
		dc.DrawLine(br.X1, br.Y-4, br.X1, br.Y)
		dc.DrawLine(br.X2, br.Y-4, br.X2, br.Y)
		dc.Stroke()
		dc.DrawStringAnchored(br.Label, (br.X1+br.X2)/2, br.Y+9, 0.5, 0.5)
	}

	dc.SetColor(colorStroke)
	dc.DrawLine(fig.Left, fig.AxisY, fig.Right, fig.AxisY)
	dc.Stroke()
	for _, tk := range fig.Ticks {
		dc.DrawLine(tk.X, fig.AxisY, tk.X, fig.AxisY+5)
		dc.Stroke()
		dc.DrawStringAnchored(tk.Label, tk.X, fig.AxisY+16, 0.5, 0.5)
	}

	return dc.SavePNG(path)
}

// RenderTimelineSVG writes fig as SVG.
func RenderTimelineSVG(w io.Writer, fig Figure) error {
	canvas := svg.New(w)
	canvas.Start(fig.Width, fig.Height)
	canvas.Rect(0, 0, fig.Width, fig.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))

	canvas.Text(int(figPadding), int(figPadding+12), fig.Title,
		fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(int(figPadding), int(figPadding+32), fig.Subtitle,
		fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))

	lx := int(fig.Right) - 3*110
	for i, t := range legend {
		x := lx + i*110
		canvas.Rect(x, int(figPadding), 14, 14, fmt.Sprintf("fill:%s", css(typeColor(t))))
		canvas.Text(x+20, int(figPadding+12), string(t),
			fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))
	}

	for _, ln := range fig.Lanes {
		canvas.Group(fmt.Sprintf(`id="lane-%s"`, ln.Label))
		canvas.Rect(int(fig.Left), int(ln.Y), int(fig.Right-fig.Left), int(figLaneHeight),
			fmt.Sprintf("fill:%s", css(colorLaneBG)))
		canvas.Text(int(figPadding), int(ln.Y+figLaneHeight/2+4), ln.Label,
			fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorText)))
		for _, b := range ln.Bands {
			canvas.Rect(int(math.Round(b.X)), int(b.Y), int(math.Max(1, math.Round(b.W))), int(b.H),
				fmt.Sprintf(`class="event %s" fill="%s" stroke="%s" stroke-width="0.8"`, b.Type, css(typeColor(b.Type)), css(colorStroke)))
			if b.W > 16 {
				canvas.Text(int(b.X+b.W/2), int(b.Y+b.H/2+4), fmt.Sprintf("%d", b.ID),
					fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace;text-anchor:middle", css(colorText)))
			}
		}
		canvas.Gend()
	}

	for _, br := range fig.Brackets {
		x1, x2, y := int(br.X1), int(br.X2), int(br.Y)
		canvas.Polyline([]int{x1, x1, x2, x2}, []int{y - 4, y, y, y - 4},
			fmt.Sprintf("fill:none;stroke:%s;stroke-width:1", css(colorSubtle)))
		canvas.Text((x1+x2)/2, y+12, br.Label,
			fmt.Sprintf("fill:%s;font-size:10px;font-family:monospace;text-anchor:middle", css(colorSubtle)))
	}

	axisY := int(fig.AxisY)
	canvas.Line(int(fig.Left), axisY, int(fig.Right), axisY, fmt.Sprintf("stroke:%s;stroke-width:1", css(colorStroke)))
	for _, tk := range fig.Ticks {
		canvas.Line(int(tk.X), axisY, int(tk.X), axisY+5, fmt.Sprintf("stroke:%s;stroke-width:1", css(colorStroke)))
		canvas.Text(int(tk.X), axisY+18, tk.Label,
			fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace;text-anchor:middle", css(colorSubtle)))
	}

	canvas.End()
	return nil
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
