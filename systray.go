package main

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"fyne.io/systray"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/nfc-reader-bridge/buildinfo"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

var trayLogger = log.WithField("component", "systray")

// SystrayApp manages the system tray interface for the bridge.
type SystrayApp struct {
	agent *Agent

	mStatus     *systray.MenuItem
	mDevice     *systray.MenuItem
	mSession    *systray.MenuItem
	mLastTag    *systray.MenuItem
	mBridgeURL  *systray.MenuItem
	mCopyURL    *systray.MenuItem
	mCopyCAURL  *systray.MenuItem
	mCancel     *systray.MenuItem
	mDeviceMenu *systray.MenuItem
	mRefresh    *systray.MenuItem
	mStart      *systray.MenuItem
	mStop       *systray.MenuItem
	mQuit       *systray.MenuItem

	devices map[string]*systray.MenuItem
}

func NewSystrayApp(agent *Agent) *SystrayApp {
	return &SystrayApp{
		agent:   agent,
		devices: make(map[string]*systray.MenuItem),
	}
}

// Run blocks until the tray exits.
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

func (s *SystrayApp) onReady() {
	s.setupUI()
	go s.autoStart()
	go s.pollStatus()
	go s.handleMenuEvents()
}

func (s *SystrayApp) onExit() {
	s.agent.Stop()
}

func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTooltip(buildinfo.DisplayName)

	s.mStatus = systray.AddMenuItem("Starting...", "Bridge status")
	s.mStatus.Disable()
	s.mDevice = systray.AddMenuItem("Reader: Not connected", "Reader status")
	s.mDevice.Disable()

	systray.AddSeparator()

	s.mSession = systray.AddMenuItem("Session: Idle", "Current read session")
	s.mSession.Disable()
	s.mLastTag = systray.AddMenuItem("Last tag: None", "Most recent read")
	s.mLastTag.Disable()
	s.mCancel = systray.AddMenuItem("Cancel session", "Cancel the read in progress")
	s.mCancel.Disable()

	systray.AddSeparator()

	s.mBridgeURL = systray.AddMenuItem("Bridge: Not running", "WebSocket URL for scripted clients")
	s.mBridgeURL.Disable()
	s.mCopyURL = systray.AddMenuItem("Copy bridge URL", "Copy the WebSocket URL to the clipboard")
	s.mCopyCAURL = systray.AddMenuItem("Copy CA certificate URL", "Copy the CA download URL to the clipboard")
	if s.agent.CACertURL() == "" {
		s.mCopyCAURL.Hide()
	}

	systray.AddSeparator()

	s.mDeviceMenu = systray.AddMenuItem("Device", "Select NFC device")
	s.mRefresh = s.mDeviceMenu.AddSubMenuItem("Refresh Devices", "Refresh device list")

	systray.AddSeparator()

	s.mStart = systray.AddMenuItem("Start Bridge", "Start the reader bridge")
	s.mStop = systray.AddMenuItem("Stop Bridge", "Stop the reader bridge")
	s.mStart.Disable()
	s.mStop.Disable()

	systray.AddSeparator()
	s.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

func (s *SystrayApp) autoStart() {
	s.start()
	s.updateDeviceList()
}

func (s *SystrayApp) start() {
	if err := s.agent.Start(); err != nil {
		trayLogger.WithError(err).Error("Failed to start bridge")
		s.updateStatus(statusFailed)
		s.mStart.Enable()
		return
	}
	s.updateStatus(statusRunning)
	s.mBridgeURL.SetTitle("Bridge: " + s.agent.BridgeURL())
	s.mStart.Disable()
	s.mStop.Enable()

	go func(done <-chan error) {
		if err := <-done; err != nil {
			trayLogger.WithError(err).Error("Bridge server exited")
			s.agent.Stop()
			s.updateStatus(statusFailed)
			s.mStop.Disable()
			s.mStart.Enable()
		}
	}(s.agent.Done())
}

func (s *SystrayApp) stop() {
	s.agent.Stop()
	s.updateStatus(statusStopped)
	s.mBridgeURL.SetTitle("Bridge: Not running")
	s.mStop.Disable()
	s.mStart.Enable()
}

// pollStatus mirrors reader state into the menu. The reader's status
// channel belongs to the server, so the tray samples instead.
func (s *SystrayApp) pollStatus() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastDevice, lastSession, lastTag string
	for range ticker.C {
		device, session, tag := "Reader: Not running", "Session: Idle", lastTag
		active := false
		if reader := s.agent.Reader(); reader != nil {
			status := reader.GetDeviceStatus()
			device = "Reader: " + status.Message
			active = status.SessionActive
			if active {
				session = "Session: Waiting for a card"
			}
			if result := reader.LastResult(); result != nil {
				tag = lastTagTitle(result)
			}
		}

		if device != lastDevice {
			s.mDevice.SetTitle(device)
			lastDevice = device
		}
		if session != lastSession {
			s.mSession.SetTitle(session)
			if active {
				s.mCancel.Enable()
			} else {
				s.mCancel.Disable()
			}
			lastSession = session
		}
		if tag != lastTag && tag != "" {
			s.mLastTag.SetTitle(tag)
			lastTag = tag
		}
	}
}

func lastTagTitle(result *protocol.ReadResult) string {
	if result.Cancelled {
		return "Last tag: Cancelled"
	}
	if result.ID == "" {
		return "Last tag: None"
	}
	return fmt.Sprintf("Last tag: %s %s", result.Type, result.ID)
}

func (s *SystrayApp) handleMenuEvents() {
	for {
		select {
		case <-s.mStart.ClickedCh:
			s.start()
		case <-s.mStop.ClickedCh:
			s.stop()
		case <-s.mCancel.ClickedCh:
			if reader := s.agent.Reader(); reader != nil && reader.Cancel() {
				trayLogger.Info("Session cancelled from tray")
			}
		case <-s.mRefresh.ClickedCh:
			s.updateDeviceList()
		case <-s.mCopyURL.ClickedCh:
			s.copy("bridge URL", s.agent.BridgeURL())
		case <-s.mCopyCAURL.ClickedCh:
			s.copy("CA certificate URL", s.agent.CACertURL())
		case <-s.mQuit.ClickedCh:
			systray.Quit()
			return
		}

		s.handleDeviceSelection()
	}
}

func (s *SystrayApp) copy(what, text string) {
	if text == "" {
		return
	}
	if err := copyToClipboard(text); err != nil {
		trayLogger.WithError(err).Warn("Failed to copy to clipboard")
		return
	}
	trayLogger.Infof("Copied %s to clipboard", what)
}

func (s *SystrayApp) handleDeviceSelection() {
	for name, item := range s.devices {
		select {
		case <-item.ClickedCh:
			if s.agent.Config.Device != name {
				s.switchDevice(name)
			}
		default:
		}
	}
}

func (s *SystrayApp) switchDevice(name string) {
	for device, item := range s.devices {
		if device == name {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	if err := s.agent.SwitchDevice(name); err != nil {
		trayLogger.WithError(err).WithField("device", name).Error("Failed to switch device")
		s.updateStatus(statusFailed)
		s.mStop.Disable()
		s.mStart.Enable()
		return
	}
	if s.agent.Running() {
		s.updateStatus(statusRunning)
	}
}

func (s *SystrayApp) updateDeviceList() {
	for _, item := range s.devices {
		item.Hide()
	}
	s.devices = make(map[string]*systray.MenuItem)

	devices, err := s.agent.Manager.ListDevices()
	if err != nil {
		trayLogger.WithError(err).Warn("Error listing devices")
		return
	}
	for _, device := range devices {
		checked := s.agent.Config.Device == device
		s.devices[device] = s.mDeviceMenu.AddSubMenuItemCheckbox(device, "Use this device", checked)
	}
}

const (
	statusRunning = "Running"
	statusStopped = "Stopped"
	statusFailed  = "Failed to Start"
)

func (s *SystrayApp) updateStatus(status string) {
	s.mStatus.SetTitle(status)
	switch status {
	case statusRunning:
		systray.SetIcon(iconDataConnected)
	case statusFailed:
		systray.SetIcon(iconDataError)
	case statusStopped:
		systray.SetIcon(iconDataStopped)
	default:
		systray.SetIcon(iconData)
	}
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := stdin.Write([]byte(text)); err != nil {
		return err
	}
	stdin.Close()
	return cmd.Wait()
}
