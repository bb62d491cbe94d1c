// Package ui is the system tray shown while a batch runs in interactive mode.
package ui

import (
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/heimdex/heimdex-render/internal/batch"
)

type Tray struct {
	progress *batch.Progress
	logger   *slog.Logger
	refresh  time.Duration

	statusItem *systray.MenuItem
	cancelItem *systray.MenuItem

	mu   sync.Mutex
	last string
	stop chan struct{}
	once sync.Once

	onCancel func()
	onQuit   func()
}

type TrayConfig struct {
	Progress *batch.Progress
	Logger   *slog.Logger
	Refresh  time.Duration // status refresh interval, default 1s
	OnCancel func()
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	if cfg.Refresh <= 0 {
		cfg.Refresh = time.Second
	}
	return &Tray{
		progress: cfg.Progress,
		logger:   cfg.Logger,
		refresh:  cfg.Refresh,
		stop:     make(chan struct{}),
		onCancel: cfg.OnCancel,
		onQuit:   cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("Heimdex Render")
	systray.SetTooltip("Heimdex Render")

	t.statusItem = systray.AddMenuItem("Status: "+t.progress.Snapshot().Label(), "Current batch status")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.cancelItem = systray.AddMenuItem("Cancel batch", "Stop the batch and skip the remaining files")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Cancel the batch and quit")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.cancelItem.ClickedCh:
				t.logger.Info("batch cancel requested from tray")
				t.cancelItem.Disable()
				if t.onCancel != nil {
					t.onCancel()
				}
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				t.Quit()
				return
			case <-t.stop:
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) refreshLoop() {
	ticker := time.NewTicker(t.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := t.progress.Snapshot()
			t.UpdateStatus(snap.Label())
			if snap.State != batch.StateRendering {
				t.cancelItem.Disable()
			}
		case <-t.stop:
			return
		}
	}
}

// UpdateStatus sets the status line; unchanged titles are not re-sent.
func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.statusItem == nil || status == t.last {
		return
	}
	t.last = status
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) Quit() {
	t.once.Do(func() {
		close(t.stop)
		systray.Quit()
	})
}
