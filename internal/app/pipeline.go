package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/nayana/internal/capture"
	"github.com/ayusman/nayana/internal/export"
	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/landmark"
	"github.com/ayusman/nayana/internal/logging"
	"github.com/ayusman/nayana/internal/plugin"
	"github.com/ayusman/nayana/internal/record"
	"github.com/ayusman/nayana/internal/store"
)

// session is one run of the capture loop, from Start until Stop or the end
// of the source.
type session struct {
	id      string
	started time.Time
	stop    chan struct{}
	done    chan struct{}
	stopped bool
	err     error

	buffer      *store.RecordBuffer
	csv         *export.CSVWriter
	csvPath     string
	summaryPath string
}

// Start opens the capture source and begins a new session.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	sess := &session{
		id:      uuid.NewString(),
		started: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if st := a.config.Store; st != nil {
		err := st.Sessions().Create(&store.Session{
			ID:           sess.id,
			StartedAt:    sess.started,
			Source:       a.camera.Source(),
			EARThreshold: a.threshold,
		})
		if err != nil {
			a.camera.Close()
			return fmt.Errorf("failed to create session: %w", err)
		}
		sess.buffer = store.NewRecordBuffer(st.Records(), a.config.BufferSize)
	}

	if a.config.ExportCSV {
		sess.csvPath, sess.summaryPath = export.Paths(a.config.ExportDir, sess.id)
		csv, err := export.CreateCSV(sess.csvPath, a.config.FlushEvery)
		if err != nil {
			a.camera.Close()
			return err
		}
		sess.csv = csv
	}

	a.pmu.Lock()
	a.pipeline.Reset(sess.id, sess.started)
	a.fps.Reset()
	a.pmu.Unlock()
	a.overlay.reset()

	a.lastGesture = gesture.None
	a.sess = sess
	go a.run(sess)

	logging.Info(logging.Fields{"session": sess.id, "source": a.camera.Source()}, "session started")
	return nil
}

// Stop ends the running session and waits until its records, summary and
// pending actions are written.
func (a *App) Stop() error {
	a.mu.Lock()
	sess := a.sess
	if sess == nil {
		a.mu.Unlock()
		return nil
	}
	if !sess.stopped {
		close(sess.stop)
		sess.stopped = true
	}
	a.mu.Unlock()

	<-sess.done
	return sess.err
}

// Wait blocks until the running session ends, e.g. at the end of a video
// file. It returns immediately when no session is running.
func (a *App) Wait() error {
	a.mu.RLock()
	sess := a.sess
	a.mu.RUnlock()
	if sess == nil {
		return nil
	}
	<-sess.done
	return sess.err
}

// run is the capture loop. Frames are paced at the source frame rate.
func (a *App) run(sess *session) {
	defer close(sess.done)
	defer func() { sess.err = a.finish(sess) }()

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-sess.stop:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			if err := a.step(sess); err != nil {
				if errors.Is(err, capture.ErrEndOfStream) || errors.Is(err, capture.ErrCameraNotOpen) {
					logging.Info(logging.Fields{"session": sess.id, "reason": err.Error()}, "capture ended")
					return
				}
				logging.Debug(logging.Fields{"error": err.Error()}, "frame skipped")
			}
		}
	}
}

// step reads one frame and runs it through the pipeline.
func (a *App) step(sess *session) error {
	mat, err := a.camera.ReadFrame()
	if err != nil {
		return err
	}
	defer mat.Close()

	now := time.Now()
	at := now.Sub(sess.started)
	if p, ok := a.camera.(capture.Positioner); ok {
		at = p.Position()
	}

	frame, err := a.detector.Detect(mat)
	if err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "landmark detection failed")
		frame = landmark.NoFace()
	}

	threshold := a.Threshold()

	a.pmu.Lock()
	fps := a.fps.Tick(now)
	rec := a.pipeline.Process(frame, at, threshold, fps)
	a.pmu.Unlock()

	a.overlay.track(rec)
	a.publishPreview(mat, frame, rec)

	a.emit(sess, rec)
	return nil
}

// emit fans a record out to the session sinks, listeners and actions.
func (a *App) emit(sess *session, rec record.FrameRecord) {
	if sess.buffer != nil {
		if err := sess.buffer.Write(rec); err != nil {
			logging.Error(logging.Fields{"session": sess.id, "error": err.Error()}, "failed to store records")
		}
	}
	if sess.csv != nil {
		if err := sess.csv.Write(rec); err != nil {
			logging.Error(logging.Fields{"path": sess.csvPath, "error": err.Error()}, "failed to write csv")
		}
	}

	a.mu.Lock()
	onset := gesture.Onset(a.lastGesture, rec.Gesture)
	a.lastGesture = rec.Gesture
	listeners := a.listeners
	a.mu.Unlock()

	if onset {
		logging.Info(logging.Fields{
			"session":  sess.id,
			"frame":    rec.FrameNumber,
			"gesture":  rec.Gesture,
			"duration": rec.GestureDuration,
		}, "gesture detected")
		a.triggerActions(rec)
	}

	for _, fn := range listeners {
		fn(rec)
	}
}

// triggerActions runs every enabled action bound to the record's gesture.
// Plugins run in the background; Stop waits for them.
func (a *App) triggerActions(rec record.FrameRecord) {
	if a.config.Store == nil {
		return
	}

	bindings, err := a.config.Store.Actions().ListByGesture(rec.Gesture)
	if err != nil {
		logging.Error(logging.Fields{"gesture": rec.Gesture, "error": err.Error()}, "failed to load actions")
		return
	}

	for _, binding := range bindings {
		p, err := a.pluginMgr.Get(binding.PluginName)
		if err != nil {
			logging.Warn(logging.Fields{"plugin": binding.PluginName, "action": binding.ID}, "bound plugin not found")
			continue
		}
		if !p.Supports(binding.ActionName) {
			logging.Warn(logging.Fields{"plugin": binding.PluginName, "action": binding.ActionName}, "plugin does not support action")
			continue
		}

		req := &plugin.Request{
			Action:    binding.ActionName,
			Gesture:   string(rec.Gesture),
			Duration:  rec.GestureDuration,
			SessionID: rec.SessionID,
			Timestamp: rec.Timestamp.Format(record.TimeFormat),
			Config:    binding.Config,
		}

		a.actions.Add(1)
		go func(p *plugin.Plugin, req *plugin.Request) {
			defer a.actions.Done()
			a.execute(p, req)
		}(p, req)
	}
}

func (a *App) execute(p *plugin.Plugin, req *plugin.Request) {
	fields := logging.Fields{"plugin": p.Manifest.Name, "action": req.Action, "gesture": req.Gesture}

	resp, err := a.pluginExec.Execute(context.Background(), p, req)
	if err != nil {
		fields["error"] = err.Error()
		logging.Error(fields, "plugin action failed")
		return
	}
	if !resp.Success {
		fields["error"] = resp.Error
		logging.Warn(fields, "plugin reported failure")
		return
	}
	logging.Info(fields, "plugin action executed")
}

// finish flushes the session sinks, persists the summary and closes the
// capture source.
func (a *App) finish(sess *session) error {
	var errs []error

	a.actions.Wait()

	if sess.buffer != nil {
		if err := sess.buffer.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if sess.csv != nil {
		if err := sess.csv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close csv: %w", err))
		}
	}

	a.pmu.Lock()
	sum := a.pipeline.Summary()
	a.pmu.Unlock()

	if st := a.config.Store; st != nil {
		if err := st.Sessions().End(sess.id, time.Now(), sum); err != nil {
			errs = append(errs, fmt.Errorf("failed to end session: %w", err))
		}
	}
	if sess.summaryPath != "" {
		if err := export.SaveSummary(sess.summaryPath, sum, sess.started, sess.csvPath); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.camera.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close camera: %w", err))
	}

	a.mu.Lock()
	if a.sess == sess {
		a.sess = nil
	}
	a.mu.Unlock()

	logging.Info(logging.Fields{
		"session": sess.id,
		"frames":  sum.TotalFrames,
		"blinks":  sum.Blinks,
		"avg_fps": sum.AvgFPS,
	}, "session ended")
	return errors.Join(errs...)
}

// publishPreview draws the overlay and encodes the frame for preview
// subscribers, if any.
func (a *App) publishPreview(mat *gocv.Mat, frame landmark.Frame, rec record.FrameRecord) {
	if !a.preview.active() {
		return
	}
	out, err := a.overlay.render(mat, frame, rec)
	if err != nil {
		logging.Debug(logging.Fields{"error": err.Error()}, "preview overlay failed")
		return
	}
	defer out.Close()

	buf, err := gocv.IMEncode(".jpg", out)
	if err != nil {
		logging.Debug(logging.Fields{"error": err.Error()}, "preview encode failed")
		return
	}
	defer buf.Close()
	a.preview.publish(buf.GetBytes())
}
