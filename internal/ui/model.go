// internal/ui/model.go
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/backend"
	"github.com/bigyan313/OBGC-V19/internal/clicker"
	"github.com/bigyan313/OBGC-V19/internal/export"
	"github.com/bigyan313/OBGC-V19/internal/notify"
	"github.com/bigyan313/OBGC-V19/internal/remote"
	"github.com/bigyan313/OBGC-V19/internal/store"
	"github.com/bigyan313/OBGC-V19/internal/submit"
	"github.com/bigyan313/OBGC-V19/internal/tokenbalance"
)

const (
	// pollInterval drives the background snapshot and balance refresh. The
	// reader and balance service apply their own fetch gates on top.
	pollInterval = 5 * time.Second

	// maxVisibleNotifications bounds the notification feed on screen.
	maxVisibleNotifications = 3

	submitTimeout  = 90 * time.Second
	refreshTimeout = 30 * time.Second
)

// Engine bundles the components the screen drives.
type Engine struct {
	Accumulator *clicker.Accumulator
	Coordinator *submit.Coordinator
	Reader      *remote.Reader
	Balances    *tokenbalance.Service
	Exporter    *export.BatchExporter
	Store       *store.Store
	Events      *notify.ChannelSink
	ExportDir   string
	// PollInterval overrides the background refresh cadence when positive.
	PollInterval time.Duration
	Logger       *zap.Logger
}

type (
	tickMsg         time.Time
	notificationMsg notify.Notification
	snapshotMsg     backend.Snapshot
	balanceMsg      tokenbalance.Balance

	submitDoneMsg struct {
		receipt *backend.Receipt
		err     error
	}
	checkpointDoneMsg struct {
		result clicker.CheckpointResult
		err    error
	}
	exportDoneMsg struct {
		path string
		err  error
	}
)

// Model is the Bubble Tea model for the clicker screen.
type Model struct {
	ctx    context.Context
	engine Engine
	keys   KeyMap
	styles Styles
	logger *zap.Logger

	spinner spinner.Model

	snapshot      backend.Snapshot
	balance       tokenbalance.Balance
	notifications []notify.Notification

	width      int
	height     int
	submitting bool
	quitting   bool
}

// NewModel creates the clicker screen model.
func NewModel(ctx context.Context, engine Engine) (*Model, error) {
	if engine.Accumulator == nil || engine.Coordinator == nil || engine.Reader == nil {
		return nil, fmt.Errorf("accumulator, coordinator and reader are required")
	}
	if engine.Logger == nil {
		engine.Logger = zap.NewNop()
	}
	if engine.ExportDir == "" {
		engine.ExportDir = "exports"
	}
	if engine.PollInterval <= 0 {
		engine.PollInterval = pollInterval
	}

	styles := NewStyles(DefaultPalette())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Info

	return &Model{
		ctx:     ctx,
		engine:  engine,
		keys:    DefaultKeyMap(),
		styles:  styles,
		logger:  engine.Logger.Named("ui"),
		spinner: sp,
	}, nil
}

// Init starts the background loops.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.spinner.Tick,
		m.refreshCmd(false),
		m.balanceCmd(),
		m.listenCmd(),
		m.tickCmd(),
	)
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(false), m.balanceCmd(), m.tickCmd())

	case snapshotMsg:
		m.snapshot = backend.Snapshot(msg)
		return m, nil

	case balanceMsg:
		m.balance = tokenbalance.Balance(msg)
		return m, nil

	case notificationMsg:
		m.pushNotification(notify.Notification(msg))
		return m, m.listenCmd()

	case submitDoneMsg:
		m.submitting = false
		if msg.err != nil {
			m.logger.Debug("Submission ended with error", zap.Error(msg.err))
		}
		return m, m.refreshCmd(false)

	case checkpointDoneMsg:
		switch msg.result {
		case clicker.CheckpointPassed:
			m.pushNotification(notify.Notification{
				Level: notify.LevelSuccess, Title: "Checkpoint passed",
				Message: "Keep clicking", At: time.Now(),
			})
		case clicker.CheckpointCancelled:
			m.pushNotification(notify.Notification{
				Level: notify.LevelWarning, Title: "Checkpoint dismissed",
				Message: "Your recorded clicks are kept", At: time.Now(),
			})
		case clicker.CheckpointExhausted:
			m.pushNotification(notify.Notification{
				Level: notify.LevelWarning, Title: "Verification attempts exhausted",
				Message: "Input unfrozen, clicks are kept", At: time.Now(),
			})
		}
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.pushNotification(notify.Notification{
				Level: notify.LevelError, Title: "Export failed",
				Message: msg.err.Error(), At: time.Now(),
			})
		} else {
			m.pushNotification(notify.Notification{
				Level: notify.LevelSuccess, Title: "History exported",
				Message: msg.path, At: time.Now(),
			})
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Click):
		outcome := m.engine.Accumulator.AddClick()
		if outcome.Checkpoint {
			m.pushNotification(notify.Notification{
				Level: notify.LevelWarning, Title: "Checkpoint reached",
				Message: fmt.Sprintf("%d clicks recorded, press v to verify", outcome.Cumulative),
				At:      time.Now(),
			})
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.submitting {
			return m, nil
		}
		m.submitting = true
		return m, tea.Batch(m.spinner.Tick, m.submitCmd())

	case key.Matches(msg, m.keys.Refresh):
		return m, tea.Batch(m.refreshCmd(true), m.balanceCmd())

	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()

	case key.Matches(msg, m.keys.Checkpoint):
		if !m.engine.Accumulator.Frozen() {
			return m, nil
		}
		return m, m.checkpointCmd()
	}

	return m, nil
}

func (m *Model) pushNotification(n notify.Notification) {
	m.notifications = append(m.notifications, n)
	if len(m.notifications) > maxVisibleNotifications {
		m.notifications = m.notifications[len(m.notifications)-maxVisibleNotifications:]
	}
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.engine.PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// listenCmd waits for the next engine notification.
func (m *Model) listenCmd() tea.Cmd {
	if m.engine.Events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case n := <-m.engine.Events.C():
			return notificationMsg(n)
		}
	}
}

func (m *Model) refreshCmd(force bool) tea.Cmd {
	wallet := m.engine.Accumulator.Wallet()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, refreshTimeout)
		defer cancel()
		return snapshotMsg(m.engine.Reader.Refresh(ctx, wallet, force))
	}
}

func (m *Model) balanceCmd() tea.Cmd {
	wallet := m.engine.Accumulator.Wallet()
	if m.engine.Balances == nil || wallet == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, refreshTimeout)
		defer cancel()
		bal, err := m.engine.Balances.Get(ctx, wallet)
		if err != nil {
			return nil
		}
		return balanceMsg(bal)
	}
}

func (m *Model) submitCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, submitTimeout)
		defer cancel()
		receipt, err := m.engine.Coordinator.Submit(ctx)
		return submitDoneMsg{receipt: receipt, err: err}
	}
}

func (m *Model) checkpointCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := m.engine.Accumulator.ResolveCheckpoint(m.ctx)
		return checkpointDoneMsg{result: result, err: err}
	}
}

func (m *Model) exportCmd() tea.Cmd {
	wallet := m.engine.Accumulator.Wallet()
	if wallet == "" || m.engine.Exporter == nil || m.engine.Store == nil {
		return func() tea.Msg {
			return exportDoneMsg{err: fmt.Errorf("connect a wallet first")}
		}
	}
	records := m.engine.Store.Transactions(wallet)
	return func() tea.Msg {
		path, err := m.engine.Exporter.ExportBatches(wallet, records, export.ExportOptions{
			Format:    export.FormatCSV,
			OutputDir: m.engine.ExportDir,
		})
		return exportDoneMsg{path: path, err: err}
	}
}
