// Package ui runs the system tray menu for the local agent.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/clipdesk/clipdesk/internal/controller"
)

// Workflow is the controller surface the tray reads and drives.
type Workflow interface {
	View() controller.View
	Subscribe(fn func(controller.Event)) func()
	DownloadSelected(ctx context.Context, dir string) (*controller.DownloadResult, error)
}

type Tray struct {
	workflow     Workflow
	downloadsDir string
	logger       *slog.Logger

	statusItem    *systray.MenuItem
	selectionItem *systray.MenuItem
	downloadItem  *systray.MenuItem

	mu          sync.Mutex
	unsubscribe func()

	onOpenDownloads func() error
	onQuit          func()
}

type TrayConfig struct {
	Workflow        Workflow
	DownloadsDir    string
	Logger          *slog.Logger
	OnOpenDownloads func() error
	OnQuit          func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		workflow:        cfg.Workflow,
		downloadsDir:    cfg.DownloadsDir,
		logger:          cfg.Logger,
		onOpenDownloads: cfg.OnOpenDownloads,
		onQuit:          cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("clipdesk")
	systray.SetTooltip("clipdesk agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current session status")
	t.statusItem.Disable()

	t.selectionItem = systray.AddMenuItem("Selected: 0", "Selected clips")
	t.selectionItem.Disable()

	systray.AddSeparator()

	t.downloadItem = systray.AddMenuItem("Download Selected", "Download the selected clips as a zip")
	openItem := systray.AddMenuItem("Open Downloads", "Open the downloads folder")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit clipdesk")

	t.refresh()
	t.mu.Lock()
	t.unsubscribe = t.workflow.Subscribe(t.handleEvent)
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.downloadItem.ClickedCh:
				t.handleDownload()
			case <-openItem.ClickedCh:
				t.handleOpenDownloads()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.mu.Lock()
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	t.mu.Unlock()
	t.logger.Info("system tray exiting")
}

func (t *Tray) handleEvent(ev controller.Event) {
	switch ev.Type {
	case controller.EventUploadProgress, controller.EventUploaded,
		controller.EventProcessingStarted, controller.EventProgress, controller.EventProcessingFinished,
		controller.EventBoardRendered, controller.EventSelectionChanged,
		controller.EventDownloadStarted, controller.EventDownloadFinished:
		t.refresh()
	}
}

// refresh redraws every menu line from the current view.
func (t *Tray) refresh() {
	v := t.workflow.View()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusItem.SetTitle("Status: " + StatusLine(v))
	t.selectionItem.SetTitle(SelectionLine(v))
	if DownloadAllowed(v) {
		t.downloadItem.Enable()
	} else {
		t.downloadItem.Disable()
	}
}

func (t *Tray) handleDownload() {
	res, err := t.workflow.DownloadSelected(context.Background(), t.downloadsDir)
	if err != nil {
		// The controller has already raised the alert.
		t.logger.Error("tray download failed", "error", err)
		return
	}
	t.logger.Info("tray download finished", "path", res.Path, "clips", res.ClipCount)
}

func (t *Tray) handleOpenDownloads() {
	if t.onOpenDownloads != nil {
		if err := t.onOpenDownloads(); err != nil {
			t.logger.Error("failed to open downloads folder", "error", err)
		}
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}

// StatusLine summarizes the workflow stage for the tray.
func StatusLine(v controller.View) string {
	switch {
	case v.Uploading:
		return fmt.Sprintf("Uploading %.0f%%", v.UploadPercent)
	case v.Processing:
		for _, p := range v.Progress {
			if p.State == "processing" {
				return fmt.Sprintf("Processing %s %.0f%%", p.Step, p.Progress)
			}
		}
		return "Processing"
	case v.Downloading:
		return "Downloading"
	case v.ClipCount > 0:
		return fmt.Sprintf("%d clips ready", v.ClipCount)
	case v.VideoID != "":
		return "Uploaded " + v.Filename
	default:
		return "Idle"
	}
}

func SelectionLine(v controller.View) string {
	return fmt.Sprintf("Selected: %d of %d", v.SelectedCount, v.ClipCount)
}

// DownloadAllowed mirrors the download button rule: at least one selected
// clip and no download already running.
func DownloadAllowed(v controller.View) bool {
	return v.DownloadEnabled && !v.Downloading
}
