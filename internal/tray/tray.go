// Package tray provides a system tray menu for controlling repcoach monitoring.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool) error
	onFinish func()
	onOpen   func()
	onQuit   func()
	exercise string
	enabled  bool
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
	menuFinish *systray.MenuItem
}

// New creates a Tray for the given default exercise. Monitoring starts disabled.
func New(exercise string) *Tray {
	return &Tray{exercise: exercise}
}

// OnToggle sets the callback run when monitoring is started or stopped. An error
// leaves the menu in its previous state.
func (t *Tray) OnToggle(fn func(enabled bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnFinish sets the callback run when the finish item is clicked.
func (t *Tray) OnFinish(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFinish = fn
}

// OnOpen sets the callback run when the open-in-browser item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run when the quit item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("repcoach")
	systray.SetTooltip("repcoach: " + t.exercise)

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(false), "Start or stop monitoring "+t.exercise)
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(StatusLine(0, ""), "Current session")
	t.menuStatus.Disable()
	t.menuFinish = systray.AddMenuItem("Finish session", "Finish and save the current session")
	t.menuFinish.Disable()
	systray.AddSeparator()
	t.mu.Unlock()

	menuOpen := systray.AddMenuItem("Open in browser", "Open the coaching view")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit repcoach")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuFinish.ClickedCh:
				t.handleFinish()
			case <-menuOpen.ClickedCh:
				t.call(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// Quit ends the tray event loop without running the quit callback.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onExit() {}

func (t *Tray) handleToggle() {
	t.mu.RLock()
	next := !t.enabled
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(next); err != nil {
			t.SetStatus(0, "error: "+err.Error())
			return
		}
	}
	t.setEnabled(next)
}

func (t *Tray) handleFinish() {
	t.call(func() func() { return t.onFinish })
	t.setEnabled(false)
}

func (t *Tray) handleQuit() {
	t.call(func() func() { return t.onQuit })
	systray.Quit()
}

func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) setEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle == nil {
		return
	}
	t.menuToggle.SetTitle(toggleTitle(enabled))
	if enabled {
		t.menuFinish.Enable()
	} else {
		t.menuFinish.Disable()
		t.menuStatus.SetTitle(StatusLine(0, ""))
	}
}

// SetStatus updates the status line in the menu.
func (t *Tray) SetStatus(reps int, phase string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle(StatusLine(reps, phase))
	}
}

// IsEnabled returns whether monitoring is running.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// StatusLine formats the tray status item.
func StatusLine(reps int, phase string) string {
	if phase == "" {
		phase = "idle"
	}
	return fmt.Sprintf("Reps: %d · %s", reps, phase)
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "■ Stop monitoring"
	}
	return "▶ Start monitoring"
}
