package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/nayana/internal/gesture"
	"github.com/ayusman/nayana/internal/tracker"
)

// Paths returns the record and summary file paths for a session under dir.
func Paths(dir, sessionID string) (csvPath, summaryPath string) {
	return filepath.Join(dir, "eye_tracking_session_"+sessionID+".csv"),
		filepath.Join(dir, "session_summary_"+sessionID+".txt")
}

// WriteSummary writes a human-readable session summary.
func WriteSummary(w io.Writer, sum tracker.Summary, date time.Time, dataFile string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "Eye Tracking Session Summary")
	fmt.Fprintf(bw, "Session ID: %s\n", sum.SessionID)
	fmt.Fprintf(bw, "Date: %s\n", date.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "Total Frames: %d\n", sum.TotalFrames)
	fmt.Fprintf(bw, "Frames With Face: %d\n", sum.FramesWithFace)
	fmt.Fprintf(bw, "Total Blinks: %d\n", sum.Blinks)
	fmt.Fprintf(bw, "Average FPS: %.2f\n", sum.AvgFPS)
	fmt.Fprintf(bw, "Mean EAR: %.3f (stddev %.3f)\n", sum.MeanEAR, sum.StdDevEAR)
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Gesture Counts:")
	for _, label := range gesture.Labels() {
		if label == gesture.None {
			continue
		}
		fmt.Fprintf(bw, "  %s: %d\n", label, sum.GestureCounts[label])
	}
	if dataFile != "" {
		fmt.Fprintf(bw, "\nData File: %s\n", dataFile)
	}

	return bw.Flush()
}

// SaveSummary writes the summary to path.
func SaveSummary(path string, sum tracker.Summary, date time.Time, dataFile string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteSummary(f, sum, date, dataFile); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
