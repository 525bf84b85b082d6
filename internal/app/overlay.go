package app

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/landmark"
	"github.com/ayusman/nayana/internal/record"
)

// GazeHistoryLen is the number of recent gaze points drawn as a trail.
const GazeHistoryLen = 30

var (
	colorLandmark  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	colorGazeLine  = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	colorGazePoint = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	colorBlink     = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	colorGesture   = color.RGBA{R: 255, G: 0, B: 255, A: 0}
	colorEAR       = color.RGBA{R: 0, G: 255, B: 255, A: 0}
	colorText      = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	colorPanel     = color.RGBA{R: 0, G: 0, B: 0, A: 0}
)

const overlayFont = gocv.FontHersheySimplex

// overlay draws the tracking state onto preview frames and keeps the recent
// gaze trail. In mask-only mode the camera image is replaced by black.
type overlay struct {
	mu       sync.Mutex
	maskOnly bool
	history  []eye.Gaze
}

func newOverlay(maskOnly bool) *overlay {
	return &overlay{
		maskOnly: maskOnly,
		history:  make([]eye.Gaze, 0, GazeHistoryLen),
	}
}

// track appends the record's combined gaze to the trail.
func (o *overlay) track(rec record.FrameRecord) {
	g, ok := rec.CombinedGaze.Get()
	if !ok {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.history) == GazeHistoryLen {
		copy(o.history, o.history[1:])
		o.history = o.history[:GazeHistoryLen-1]
	}
	o.history = append(o.history, g)
}

func (o *overlay) reset() {
	o.mu.Lock()
	o.history = o.history[:0]
	o.mu.Unlock()
}

func (o *overlay) trail() []eye.Gaze {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]eye.Gaze, len(o.history))
	copy(out, o.history)
	return out
}

// render returns a new Mat with the overlay drawn over mat. The caller closes
// it. mat is not modified.
func (o *overlay) render(mat *gocv.Mat, frame landmark.Frame, rec record.FrameRecord) (gocv.Mat, error) {
	var out gocv.Mat
	if o.maskOnly {
		out = gocv.Zeros(mat.Rows(), mat.Cols(), mat.Type())
	} else {
		out = mat.Clone()
	}

	c := &canvas{mat: &out, w: out.Cols(), h: out.Rows()}
	if !rec.HasFace() {
		c.text("No face detected", image.Pt(c.w/2-100, c.h/2), 0.9, colorText, 2)
		c.text(fmt.Sprintf("FPS: %.1f", rec.FPS), image.Pt(20, 35), 0.5, colorBlink, 1)
	} else {
		c.landmarks(frame)
		c.gaze(rec.CombinedGaze)
		c.trail(o.trail())
		c.blink(rec.IsBlinking)
		c.gesture(rec.Gesture)
		c.metrics(rec, o.maskOnly)
	}

	if c.err != nil {
		out.Close()
		return gocv.Mat{}, c.err
	}
	return out, nil
}

// canvas wraps the drawing calls and keeps the first error.
type canvas struct {
	mat  *gocv.Mat
	w, h int
	err  error
}

func (c *canvas) pixel(x, y float64) (image.Point, bool) {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return image.Point{}, false
	}
	return image.Pt(int(x*float64(c.w)), int(y*float64(c.h))), true
}

func (c *canvas) circle(p image.Point, radius int, col color.RGBA, thickness int) {
	if c.err == nil {
		c.err = gocv.Circle(c.mat, p, radius, col, thickness)
	}
}

func (c *canvas) line(a, b image.Point, col color.RGBA, thickness int) {
	if c.err == nil {
		c.err = gocv.Line(c.mat, a, b, col, thickness)
	}
}

func (c *canvas) rect(r image.Rectangle, col color.RGBA, thickness int) {
	if c.err == nil {
		c.err = gocv.Rectangle(c.mat, r, col, thickness)
	}
}

func (c *canvas) text(s string, org image.Point, scale float64, col color.RGBA, thickness int) {
	if c.err == nil {
		c.err = gocv.PutText(c.mat, s, org, overlayFont, scale, col, thickness)
	}
}

func (c *canvas) landmarks(frame landmark.Frame) {
	for _, idx := range []landmark.EyeIndices{landmark.LeftEye, landmark.RightEye} {
		if !frame.Has(idx.Max()) {
			continue
		}
		contour := idx.Contour()
		for _, i := range append(contour[:], idx.Iris) {
			p, ok := c.pixel(frame.Points[i].X, frame.Points[i].Y)
			if !ok {
				continue
			}
			c.circle(p, 2, colorLandmark, -1)
			c.circle(p, 3, colorText, 1)
		}
	}
}

func (c *canvas) gaze(g eye.Optional[eye.Gaze]) {
	v, ok := g.Get()
	if !ok {
		return
	}
	p, ok := c.pixel(v.X, v.Y)
	if !ok {
		return
	}
	c.circle(p, 25, colorGazeLine, 2)
	c.line(image.Pt(p.X-30, p.Y), image.Pt(p.X+30, p.Y), colorGazeLine, 3)
	c.line(image.Pt(p.X, p.Y-30), image.Pt(p.X, p.Y+30), colorGazeLine, 3)
	c.circle(p, 8, colorGazePoint, -1)
	c.circle(p, 5, colorText, -1)
	c.text(fmt.Sprintf("(%.2f, %.2f)", v.X, v.Y), image.Pt(p.X+35, p.Y-10), 0.5, colorText, 1)
}

// trail joins consecutive gaze points. Older segments are thinner.
func (c *canvas) trail(history []eye.Gaze) {
	for i := 1; i < len(history); i++ {
		a, okA := c.pixel(history[i-1].X, history[i-1].Y)
		b, okB := c.pixel(history[i].X, history[i].Y)
		if !okA || !okB {
			continue
		}
		thickness := max(1, 3*i/len(history))
		c.line(a, b, colorGazeLine, thickness)
	}
}

func (c *canvas) blink(blinking bool) {
	if !blinking {
		return
	}
	c.circle(image.Pt(c.w-50, 100), 35, colorBlink, -1)
	c.text("BLINK", image.Pt(c.w-80, 110), 0.6, colorText, 2)
}

func (c *canvas) gesture(label gesture.Label) {
	if label == gesture.None || label == "" {
		return
	}
	s := "GESTURE: " + strings.ToUpper(string(label))
	size := gocv.GetTextSize(s, overlayFont, 0.6, 2)
	x, y := c.w-size.X-20, 50
	c.rect(image.Rect(x-10, y-size.Y-10, x+size.X+10, y+10), colorGesture, -1)
	c.text(s, image.Pt(x, y), 0.6, colorText, 2)
}

// metrics draws the text panel in the top-left corner. Over a camera image
// the panel is translucent.
func (c *canvas) metrics(rec record.FrameRecord, solid bool) {
	panel := image.Rect(10, 10, 290, 200)
	if solid {
		c.rect(panel, colorPanel, -1)
	} else if c.err == nil {
		shade := c.mat.Clone()
		c.err = gocv.Rectangle(&shade, panel, colorPanel, -1)
		if c.err == nil {
			c.err = gocv.AddWeighted(shade, 0.8, *c.mat, 0.2, 0, c.mat)
		}
		shade.Close()
	}

	c.text("Eye Tracking Metrics", image.Pt(20, 35), 0.7, colorText, 2)

	gaze := "-"
	if g, ok := rec.CombinedGaze.Get(); ok {
		gaze = fmt.Sprintf("(%.3f, %.3f)", g.X, g.Y)
	}
	blinking := "No"
	if rec.IsBlinking {
		blinking = "Yes"
	}
	lines := []struct {
		text  string
		scale float64
		col   color.RGBA
	}{
		{fmt.Sprintf("FPS: %.1f", rec.FPS), 0.5, colorBlink},
		{"Left EAR: " + earText(rec.LeftEAR), 0.4, colorEAR},
		{"Right EAR: " + earText(rec.RightEAR), 0.4, colorEAR},
		{"Gaze: " + gaze, 0.4, colorText},
		{"Blinking: " + blinking, 0.4, colorText},
		{"Gesture: " + gestureTitle(rec.Gesture), 0.4, colorText},
	}
	for i, l := range lines {
		c.text(l.text, image.Pt(20, 55+25*i), l.scale, l.col, 1)
	}
}

func earText(o eye.Optional[float64]) string {
	v, ok := o.Get()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

// gestureTitle turns "left_wink" into "Left Wink".
func gestureTitle(label gesture.Label) string {
	words := strings.Split(string(label), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
