package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestPlugin_SystemControl_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	if runtime.GOOS != "darwin" {
		t.Skip("system-control plugin only works on macOS")
	}

	// Find the built plugin
	pluginDir := findPluginDir("system-control")
	if pluginDir == "" {
		t.Skip("system-control plugin not built")
	}

	mgr := NewManager(filepath.Dir(pluginDir))
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plug, err := mgr.Get("system-control")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := os.Stat(plug.Executable); err != nil {
		t.Skip("system-control plugin not built")
	}

	executor := NewExecutor(5 * time.Second)

	// Actions with side effects are avoided; an empty keystroke must fail
	req := &Request{
		Action:   "keystroke",
		Gesture:  "left_wink",
		Duration: 0.3,
		Params:   json.RawMessage(`{"key": ""}`),
	}

	resp, err := executor.Execute(context.Background(), plug, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if resp.Success {
		t.Error("expected failure for empty key")
	}
}

func findPluginDir(name string) string {
	candidates := []string{
		filepath.Join("../../plugins", name),
		filepath.Join("../../../plugins", name),
	}

	for _, dir := range candidates {
		manifest := filepath.Join(dir, "plugin.json")
		if _, err := os.Stat(manifest); err == nil {
			return dir
		}
	}
	return ""
}
