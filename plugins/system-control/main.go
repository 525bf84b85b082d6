// Package main is a macOS action plugin for nayana. It maps eye gestures to
// volume, brightness, media keys and keystrokes via AppleScript.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Request mirrors the executor's request.
type Request struct {
	Action    string          `json:"action"`
	Gesture   string          `json:"gesture"`
	Duration  float64         `json:"duration"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Config    json.RawMessage `json:"config"`
	Params    json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeystrokeParams configures the keystroke action.
type KeystrokeParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// keyScripts maps simple actions to their AppleScript.
var keyScripts = map[string]string{
	"volume-up":        `set volume output volume ((output volume of (get volume settings)) + 10)`,
	"volume-down":      `set volume output volume ((output volume of (get volume settings)) - 10)`,
	"volume-mute":      `set volume output muted (not (output muted of (get volume settings)))`,
	"brightness-up":    keyCode(144),
	"brightness-down":  keyCode(145),
	"media-play-pause": keyCode(100),
	"media-next":       keyCode(101),
	"media-prev":       keyCode(98),
}

func keyCode(code int) string {
	return fmt.Sprintf("tell application \"System Events\"\n\tkey code %d\nend tell", code)
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	script, err := scriptFor(req)
	if err != nil {
		writeResponse(Response{Error: err.Error()})
		return
	}
	if err := runAppleScript(script); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)})
		return
	}

	data, _ := json.Marshal(map[string]any{"gesture": req.Gesture, "action": req.Action})
	writeResponse(Response{Success: true, Data: data})
}

// scriptFor resolves the AppleScript for req. Keystroke parameters come from
// Params, falling back to the binding's Config.
func scriptFor(req Request) (string, error) {
	if script, ok := keyScripts[req.Action]; ok {
		return script, nil
	}
	if req.Action != "keystroke" && req.Action != "shortcut" {
		return "", fmt.Errorf("unknown action: %s", req.Action)
	}

	raw := req.Params
	if len(raw) == 0 || string(raw) == "null" {
		raw = req.Config
	}
	var p KeystrokeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("failed to parse params: %w", err)
	}
	if p.Key == "" {
		return "", fmt.Errorf("key is required")
	}
	return buildKeystrokeScript(p.Key, p.Modifiers), nil
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(key string, modifiers []string) string {
	var appleModifiers []string
	for _, mod := range modifiers {
		if appleMod, ok := modifierMap[strings.ToLower(mod)]; ok {
			appleModifiers = append(appleModifiers, appleMod)
		}
	}

	if len(appleModifiers) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, key, strings.Join(appleModifiers, ", "))
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}

func runAppleScript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
