// Package tui is the interactive terminal dashboard: a menu tree over the
// API client that shows summary statistics, the equipment table, a type
// distribution chart and upload history.
package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/chemviz/internal/client"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// RequestTimeout bounds each API call made from the UI.
var RequestTimeout = 2 * time.Minute

// API is the subset of *client.Client the dashboard uses.
type API interface {
	LoadDashboard(ctx context.Context, sess client.Session) (client.Dashboard, error)
	History(ctx context.Context, sess client.Session) ([]core.Session, error)
	UploadCSV(ctx context.Context, sess client.Session, path string) (client.UploadResult, error)
	DownloadReport(ctx context.Context, sess client.Session, sessionID *int64, w io.Writer) (string, error)
	Logout(ctx context.Context, sess client.Session) error
}

// Options configures a Model.
type Options struct {
	// ReportDir is where downloaded PDFs are written. Defaults to ".".
	ReportDir string
	// OnLogout runs after the server revokes the token, typically to
	// remove the stored session file.
	OnLogout func() error
}

type view int

const (
	viewSummary view = iota
	viewEquipment
	viewChart
	viewHistory
)

/* ----------------------------------------
	MESSAGES
---------------------------------------- */

type (
	dashboardMsg struct{ dash client.Dashboard }
	historyMsg   struct{ sessions []core.Session }
	uploadedMsg  struct{ res client.UploadResult }
	doneMsg      string
	errMsg       struct{ err error }
	loggedOutMsg struct{}
)

// Model is the bubbletea model. It is used by pointer so menu actions can
// update it in place.
type Model struct {
	api  API
	sess client.Session
	opts Options

	root   *Menu
	menu   *Menu
	cursor int

	view    view
	dash    client.Dashboard
	history []core.Session

	input     textinput.Model
	prompting bool

	busy     bool
	status   string
	err      error
	width    int
	quitting bool
}

// NewModel builds the dashboard for sess.
func NewModel(api API, sess client.Session, opts Options) *Model {
	if opts.ReportDir == "" {
		opts.ReportDir = "."
	}

	in := textinput.New()
	in.Placeholder = "path/to/equipment.csv"
	in.Prompt = "CSV file: "
	in.CharLimit = 4096

	m := &Model{api: api, sess: sess, opts: opts, input: in}
	m.root = buildMenuTree(m)
	m.menu = m.root
	return m
}

// Run starts the dashboard in the alternate screen and blocks until quit.
func Run(api API, sess client.Session, opts Options) error {
	_, err := tea.NewProgram(NewModel(api, sess, opts), tea.WithAltScreen()).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.loadDashboard()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.updateMenu(msg)

	case dashboardMsg:
		m.busy = false
		m.dash = msg.dash
		m.setStatus(fmt.Sprintf("Loaded %d equipment rows.", len(msg.dash.Equipment)))
		return m, nil

	case historyMsg:
		m.busy = false
		m.history = msg.sessions
		m.view = viewHistory
		m.setStatus(fmt.Sprintf("%d sessions in history.", len(msg.sessions)))
		return m, nil

	case uploadedMsg:
		m.busy = false
		m.view = viewSummary
		m.setStatus(fmt.Sprintf("Uploaded session #%d: %d records, %d dropped.",
			msg.res.SessionID, msg.res.RecordCount, msg.res.DroppedCount))
		return m, m.loadDashboard()

	case doneMsg:
		m.busy = false
		m.setStatus(string(msg))
		return m, nil

	case errMsg:
		m.busy = false
		m.status = ""
		m.err = msg.err
		return m, nil

	case loggedOutMsg:
		m.busy = false
		m.setStatus("Logged out.")
		m.quitting = true
		return m, tea.Quit
	}

	if m.prompting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.menu.Items)-1 {
			m.cursor++
		}

	case "esc", "backspace":
		if m.menu.Parent != nil {
			m.enter(m.menu.Parent)
		}

	case "enter":
		item := m.menu.Items[m.cursor]
		if item.Label == "Back" {
			if item.Submenu != nil {
				m.enter(item.Submenu)
			}
			return m, nil
		}
		if item.Submenu != nil {
			m.enter(item.Submenu)
			return m, nil
		}
		if item.Action != nil {
			return m, item.Action()
		}
	}
	return m, nil
}

func (m *Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		m.stopPrompt()
		m.setStatus("Upload cancelled.")
		return m, nil

	case tea.KeyEnter:
		path := strings.TrimSpace(m.input.Value())
		m.stopPrompt()
		if path == "" {
			m.setStatus("Upload cancelled.")
			return m, nil
		}
		return m, m.upload(path)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) enter(menu *Menu) {
	m.menu = menu
	m.cursor = 0
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.err = nil
}

func (m *Model) stopPrompt() {
	m.prompting = false
	m.input.Blur()
	m.input.Reset()
}

/* ----------------------------------------
	ACTIONS
---------------------------------------- */

func (m *Model) show(v view) func() tea.Cmd {
	return func() tea.Cmd {
		m.view = v
		return nil
	}
}

// request runs fn off the update loop with a bounded context.
func (m *Model) request(status string, fn func(ctx context.Context) tea.Msg) tea.Cmd {
	m.busy = true
	m.setStatus(status)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), RequestTimeout)
		defer cancel()
		return fn(ctx)
	}
}

func (m *Model) loadDashboard() tea.Cmd {
	api, sess := m.api, m.sess
	return m.request("Loading dashboard...", func(ctx context.Context) tea.Msg {
		dash, err := api.LoadDashboard(ctx, sess)
		if err != nil {
			return errMsg{fmt.Errorf("load dashboard: %w", err)}
		}
		return dashboardMsg{dash}
	})
}

func (m *Model) loadHistory() tea.Cmd {
	api, sess := m.api, m.sess
	return m.request("Loading history...", func(ctx context.Context) tea.Msg {
		sessions, err := api.History(ctx, sess)
		if err != nil {
			return errMsg{fmt.Errorf("load history: %w", err)}
		}
		return historyMsg{sessions}
	})
}

func (m *Model) promptUpload() tea.Cmd {
	m.prompting = true
	m.err = nil
	return m.input.Focus()
}

func (m *Model) upload(path string) tea.Cmd {
	api, sess := m.api, m.sess
	return m.request("Uploading "+filepath.Base(path)+"...", func(ctx context.Context) tea.Msg {
		res, err := api.UploadCSV(ctx, sess, path)
		if err != nil {
			return errMsg{fmt.Errorf("upload: %w", err)}
		}
		return uploadedMsg{res}
	})
}

func (m *Model) downloadReport() tea.Cmd {
	api, sess, dir := m.api, m.sess, m.opts.ReportDir
	return m.request("Generating report...", func(ctx context.Context) tea.Msg {
		var buf bytes.Buffer
		name, err := api.DownloadReport(ctx, sess, nil, &buf)
		if err != nil {
			return errMsg{fmt.Errorf("report: %w", err)}
		}
		path := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return errMsg{fmt.Errorf("save report: %w", err)}
		}
		return doneMsg("Report saved to " + path)
	})
}

func (m *Model) logout() tea.Cmd {
	api, sess, onLogout := m.api, m.sess, m.opts.OnLogout
	return m.request("Logging out...", func(ctx context.Context) tea.Msg {
		var apiErr *client.APIError
		if err := api.Logout(ctx, sess); err != nil && !(errors.As(err, &apiErr) && apiErr.Unauthorized()) {
			return errMsg{fmt.Errorf("logout: %w", err)}
		}
		if onLogout != nil {
			if err := onLogout(); err != nil {
				return errMsg{err}
			}
		}
		return loggedOutMsg{}
	})
}

/* ----------------------------------------
	VIEW
---------------------------------------- */

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Chemical Equipment Visualizer"))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Signed in as " + m.sess.User.Username))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(m.menu.Title))
	b.WriteString("\n")
	for i, item := range m.menu.Items {
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + item.Label))
		} else {
			b.WriteString(itemStyle.Render(item.Label))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.prompting {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("enter upload • esc cancel"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(panelStyle.Render(m.content()))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + errorText(m.err)))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("↑/↓ move • enter select • esc back • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) content() string {
	switch m.view {
	case viewEquipment:
		return renderEquipment(m.dash.Equipment, equipmentRowLimit)
	case viewChart:
		return renderChart(m.dash.Summary.TypeDistribution, m.chartWidth())
	case viewHistory:
		return renderHistory(m.history)
	default:
		return renderSummary(m.dash.Summary)
	}
}

func (m *Model) chartWidth() int {
	if m.width <= 0 {
		return chartWidth
	}
	return max(10, min(chartWidth, m.width-30))
}

// errorText adds a hint for expired sessions.
func errorText(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Unauthorized() {
		return "session expired, log in again"
	}
	return err.Error()
}
