package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/nayana/internal/capture"
	"github.com/ayusman/nayana/internal/eye"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/landmark"
	"github.com/ayusman/nayana/internal/record"
)

func gazeRecord(x, y float64) record.FrameRecord {
	return record.FrameRecord{
		LeftEAR:      eye.Some(0.3),
		RightEAR:     eye.Some(0.3),
		CombinedGaze: eye.Some(eye.Gaze{X: x, Y: y}),
		Gesture:      gesture.None,
		FPS:          30,
	}
}

func render(t *testing.T, o *overlay, src *gocv.Mat, frame landmark.Frame, rec record.FrameRecord) gocv.Mat {
	t.Helper()
	out, err := o.render(src, frame, rec)
	require.NoError(t, err)
	t.Cleanup(func() { out.Close() })
	return out
}

func bgr(m *gocv.Mat, row, col int) [3]uint8 {
	v := m.GetVecbAt(row, col)
	return [3]uint8{v[0], v[1], v[2]}
}

func TestOverlay_TrailIsBounded(t *testing.T) {
	o := newOverlay(false)

	for i := 0; i < GazeHistoryLen+10; i++ {
		o.track(gazeRecord(float64(i)/100, 0.5))
	}
	o.track(record.FrameRecord{Gesture: gesture.None})

	trail := o.trail()
	require.Len(t, trail, GazeHistoryLen)
	assert.InDelta(t, 0.10, trail[0].X, 1e-9)
	assert.InDelta(t, float64(GazeHistoryLen+9)/100, trail[len(trail)-1].X, 1e-9)

	o.reset()
	assert.Empty(t, o.trail())
}

func TestOverlay_RenderLeavesSourceUntouched(t *testing.T) {
	src := gocv.Zeros(480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()
	o := newOverlay(false)
	rec := gazeRecord(0.5, 0.5)
	o.track(rec)

	out := render(t, o, &src, landmark.OpenEyesFrame(), rec)

	assert.Equal(t, [3]uint8{255, 255, 255}, bgr(&out, 240, 320), "gaze point center")
	assert.Equal(t, [3]uint8{0, 0, 0}, bgr(&src, 240, 320))
}

func TestOverlay_DrawsLandmarks(t *testing.T) {
	src := gocv.Zeros(480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()
	frame := landmark.OpenEyesFrame()

	out := render(t, newOverlay(false), &src, frame, gazeRecord(0.5, 0.5))

	corner := frame.Points[landmark.RightEye.P1]
	row, col := int(corner.Y*480), int(corner.X*640)
	assert.Equal(t, [3]uint8{0, 255, 0}, bgr(&out, row, col))
}

func TestOverlay_DrawsGazeTrail(t *testing.T) {
	src := gocv.Zeros(480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()
	o := newOverlay(false)
	o.track(gazeRecord(0.1, 0.9))
	last := gazeRecord(0.3, 0.9)
	o.track(last)

	out := render(t, o, &src, landmark.NoFace(), last)

	// Halfway between (64, 432) and (192, 432).
	assert.Equal(t, [3]uint8{255, 0, 0}, bgr(&out, 432, 128))
}

func TestOverlay_Indicators(t *testing.T) {
	src := gocv.Zeros(480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()
	rec := gazeRecord(0.5, 0.5)
	rec.IsBlinking = true
	rec.Gesture = gesture.DoubleBlink

	out := render(t, newOverlay(false), &src, landmark.ClosedEyesFrame(), rec)

	assert.Equal(t, [3]uint8{0, 255, 255}, bgr(&out, 75, 590), "blink indicator")
	assert.Equal(t, [3]uint8{255, 0, 255}, bgr(&out, 58, 625), "gesture indicator")
}

func TestOverlay_NoFaceBanner(t *testing.T) {
	src := gocv.Zeros(480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()

	out := render(t, newOverlay(false), &src, landmark.NoFace(), record.FrameRecord{Gesture: gesture.None})

	var lit bool
	for row := 215; row <= 245 && !lit; row++ {
		for col := 220; col <= 470; col++ {
			if bgr(&out, row, col) == [3]uint8{255, 255, 255} {
				lit = true
				break
			}
		}
	}
	assert.True(t, lit, "expected banner text around the frame center")
}

func TestOverlay_MaskOnly(t *testing.T) {
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer src.Close()
	rec := record.FrameRecord{Gesture: gesture.None}

	masked := render(t, newOverlay(true), &src, landmark.NoFace(), rec)
	plain := render(t, newOverlay(false), &src, landmark.NoFace(), rec)

	assert.Equal(t, [3]uint8{0, 0, 0}, bgr(&masked, 470, 630))
	assert.Equal(t, [3]uint8{128, 128, 128}, bgr(&plain, 470, 630))
	assert.Equal(t, src.Rows(), masked.Rows())
	assert.Equal(t, src.Cols(), masked.Cols())
}

func TestGestureTitle(t *testing.T) {
	tests := []struct {
		label gesture.Label
		want  string
	}{
		{gesture.LeftWink, "Left Wink"},
		{gesture.DoubleBlink, "Double Blink"},
		{gesture.None, "None"},
	}
	for _, tt := range tests {
		if got := gestureTitle(tt.label); got != tt.want {
			t.Errorf("gestureTitle(%q): expected %q, got %q", tt.label, tt.want, got)
		}
	}
}

func TestApp_PreviewOverlay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tests := []struct {
		name     string
		mask     bool
		wantDark bool
	}{
		{"camera image", false, false},
		{"mask only", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), 480, 640, gocv.MatTypeCV8UC3)
			defer mat.Close()
			cam := capture.NewMockCamera([]*gocv.Mat{&mat}, true)

			det := landmark.NewMockDetector()
			det.SetFrame(landmark.OpenEyesFrame())

			app := New(Config{Camera: cam, Detector: det, PreviewMask: tt.mask})
			frames, unsubscribe := app.Preview()
			defer unsubscribe()

			require.NoError(t, app.Start())
			defer app.Stop()

			var jpeg []byte
			select {
			case jpeg = <-frames:
			case <-time.After(2 * time.Second):
				t.Fatal("no preview frame received")
			}

			img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
			require.NoError(t, err)
			defer img.Close()
			require.Equal(t, 480, img.Rows())

			center := bgr(&img, 240, 320)
			assert.Greater(t, center[0], uint8(200), "gaze point is drawn over the frame")

			corner := bgr(&img, 470, 630)
			if tt.wantDark {
				assert.Less(t, corner[0], uint8(40))
			} else {
				assert.Greater(t, corner[0], uint8(100))
			}
		})
	}
}
