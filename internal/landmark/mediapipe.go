package landmark

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/nayana/internal/logging"
)

// idleShutdown is how long the face mesh process may sit unused before it is stopped.
const idleShutdown = 30 * time.Second

const scriptName = "face_mesh_service.py"

// MediaPipeDetector implements Detector using a Python MediaPipe face mesh subprocess.
//
// Wire format: each request is a 4-byte big-endian length followed by a JPEG
// image; each response is one JSON line {"faces":[{"points":[{x,y,z},...]}]}.
type MediaPipeDetector struct {
	config    Config
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe face mesh detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := config.ScriptPath
	if script == "" {
		script = findFaceMeshScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}

	return &MediaPipeDetector{
		config: config,
		script: script,
	}, nil
}

// Detect encodes the frame, sends it to the face mesh service and decodes the
// landmarks of the first face.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return NoFace(), nil
	}

	if err := d.ensureStarted(); err != nil {
		return NoFace(), err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return NoFace(), fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		return NoFace(), fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		return NoFace(), fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		return NoFace(), fmt.Errorf("read response: %w", err)
	}

	result, err := decodeResponse([]byte(line))
	if err != nil {
		return NoFace(), err
	}

	d.resetIdleTimer()
	return result, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.script,
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', 2, 64),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start face mesh service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	logging.Info(logging.Fields{"script": d.script, "python": pythonPath}, "face mesh service started")
	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.shutdown(); err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "face mesh service exited with error")
		}
	})
}

func findFaceMeshScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".nayana", "scripts", scriptName),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".nayana/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonFace represents one face in the service response.
type jsonFace struct {
	Points []Point `json:"points"`
}

// decodeResponse parses one service response line. Only the first face is kept.
func decodeResponse(line []byte) (Frame, error) {
	var response struct {
		Faces []jsonFace `json:"faces"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return NoFace(), fmt.Errorf("parse response: %w", err)
	}

	if len(response.Faces) == 0 || len(response.Faces[0].Points) == 0 {
		return NoFace(), nil
	}

	points := make([]Point, len(response.Faces[0].Points))
	copy(points, response.Faces[0].Points)

	return Frame{Points: points, Valid: true}, nil
}
