// Package tray provides a system tray interface for the Nayana eye tracking
// system.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/nayana/internal/app"
	"github.com/ayusman/nayana/internal/gesture"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle   func(enabled bool)
	onSettings func()
	onReset    func()
	onQuit     func()
	enabled    bool
	status     app.Status
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuSession     *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuBlinks      *systray.MenuItem
}

// New creates a new Tray instance with the given enabled state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
		status:  app.Status{Enabled: enabled, LastGesture: gesture.None},
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnReset sets the callback function to be called when the reset menu item is clicked.
func (t *Tray) OnReset(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReset = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and returns from Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Nayana")
	systray.SetTooltip("Nayana Eye Tracking")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle eye tracking")
	systray.AddSeparator()

	t.menuSession = systray.AddMenuItem(sessionTitle(t.status), "Current session")
	t.menuSession.Disable()
	t.menuLastGesture = systray.AddMenuItem(lastGestureTitle(t.status.LastGesture), "Last detected gesture")
	t.menuLastGesture.Disable()
	t.menuBlinks = systray.AddMenuItem(blinksTitle(t.status.Blinks), "Blinks in this session")
	t.menuBlinks.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuReset := systray.AddMenuItem("Reset Counters", "Reset blink and gesture counters")
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Nayana")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuReset.ClickedCh:
				t.handle(func() func() { return t.onReset })
			case <-menuSettings.ClickedCh:
				t.handle(func() func() { return t.onSettings })
			case <-menuQuit.ClickedCh:
				t.handle(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle flips the enabled state and notifies the toggle callback.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handle runs the callback returned by pick, read under the lock.
func (t *Tray) handle(pick func() func()) {
	t.mu.RLock()
	callback := pick()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// Update refreshes the menu from an application status snapshot.
func (t *Tray) Update(status app.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	t.enabled = status.Enabled

	if t.menuToggle == nil {
		return
	}
	t.menuToggle.SetTitle(toggleTitle(status.Enabled))
	t.menuSession.SetTitle(sessionTitle(status))
	t.menuLastGesture.SetTitle(lastGestureTitle(status.LastGesture))
	t.menuBlinks.SetTitle(blinksTitle(status.Blinks))
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Status returns the last status passed to Update.
func (t *Tray) Status() app.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func sessionTitle(s app.Status) string {
	if !s.Running {
		return "Session: idle"
	}
	return fmt.Sprintf("Session: %d frames, %.1f fps", s.TotalFrames, s.FPS)
}

func lastGestureTitle(label gesture.Label) string {
	if label == "" || label == gesture.None {
		return "Last: none"
	}
	return "Last: " + label.String()
}

func blinksTitle(n int) string {
	return fmt.Sprintf("Blinks: %d", n)
}
