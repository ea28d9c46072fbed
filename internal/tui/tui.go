package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chemviz/chemviz/internal/apiclient"
	"github.com/chemviz/chemviz/internal/chart"
	"github.com/chemviz/chemviz/internal/session"
	"github.com/chemviz/chemviz/internal/workspace"
	"github.com/chemviz/chemviz/pkg/models"
)

// Session is the part of the session store the UI drives
type Session interface {
	State() session.State
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password string) error
	Logout() error
	Subscribe(fn func(session.State))
}

// Workspace is the part of the workspace the UI drives
type Workspace interface {
	FetchHistory(ctx context.Context) []models.UploadRecord
	Upload(ctx context.Context, path string) (*models.Summary, error)
	FetchSummary(ctx context.Context, id int64) (*models.Summary, error)
	LoadRecordTable(ctx context.Context, rec models.UploadRecord) (models.Table, error)
	DownloadReport(ctx context.Context, id int64, dir string) (string, error)
	Snapshot() workspace.Snapshot
	Reset()
}

// Options configures the UI
type Options struct {
	Context     context.Context
	Session     Session
	Workspace   Workspace
	DownloadDir string
	BaseURL     string
}

type viewMode int

const (
	authView viewMode = iota
	workspaceView
)

type focusArea int

const (
	focusHistory focusArea = iota
	focusTable
)

const historyPanelHeight = 9

const sessionExpiredMessage = "Session expired, log in again"

type model struct {
	ctx         context.Context
	session     Session
	workspace   Workspace
	downloadDir string
	baseURL     string

	mode   viewMode
	form   authForm
	focus  focusArea
	cursor int

	snapshot workspace.Snapshot
	tableID  int64

	historySeq uint64
	summarySeq uint64
	tableSeq   uint64

	prompting bool
	prompt    textinput.Model
	alert     string
	status    string

	loading  *LoadingIndicator
	ticking  bool
	viewport viewport.Model
	ready    bool
	width    int
	height   int
}

func initialModel(opts Options) model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	prompt := textinput.New()
	prompt.Prompt = "CSV file: "
	prompt.Placeholder = "path/to/equipment.csv"

	m := model{
		ctx:         ctx,
		session:     opts.Session,
		workspace:   opts.Workspace,
		downloadDir: opts.DownloadDir,
		baseURL:     opts.BaseURL,
		form:        newAuthForm(),
		prompt:      prompt,
		loading:     NewLoadingIndicator(),
		mode:        authView,
	}
	if opts.Session.State() == session.Authenticated {
		m.mode = workspaceView
		// Init cannot change the model, so the first fetch is set up here
		m.historySeq = 1
		m.loading.Start("Loading history")
		m.ticking = true
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.mode == workspaceView {
		return tea.Batch(fetchHistoryCmd(m.ctx, m.workspace, m.historySeq), tickCmd())
	}
	return textinput.Blink
}

// refreshHistory must be called on the model that Update returns
func (m *model) refreshHistory() tea.Cmd {
	m.historySeq++
	return m.startLoading("Loading history", fetchHistoryCmd(m.ctx, m.workspace, m.historySeq))
}

func (m *model) startLoading(label string, cmd tea.Cmd) tea.Cmd {
	m.loading.Start(label)
	if m.ticking {
		return cmd
	}
	m.ticking = true
	return tea.Batch(cmd, tickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		tableHeight := max(msg.Height-historyPanelHeight-4, 3)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, tableHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = tableHeight
		}
		m.updateViewport()
		return m, nil

	case TickMsg:
		if !m.loading.Busy() {
			m.ticking = false
			return m, nil
		}
		m.loading.Tick()
		return m, tickCmd()

	case SessionStateMsg:
		// the store is the source of truth; the message only says it changed
		if m.session.State() == session.Authenticated {
			return m, m.enterWorkspace()
		}
		m.leaveWorkspace("")
		return m, nil

	case AuthDoneMsg:
		m.loading.Stop("Signing in")
		m.form.busy = false
		if msg.Error != nil {
			m.form.message = authMessage(msg.Error)
			return m, nil
		}
		return m, m.enterWorkspace()

	case HistoryLoadedMsg:
		m.loading.Stop("Loading history")
		if msg.Seq != m.historySeq {
			return m, nil
		}
		m.refreshSnapshot()
		return m, nil

	case UploadDoneMsg:
		m.loading.Stop("Uploading")
		if msg.Seq != m.summarySeq {
			return m, nil
		}
		if msg.Error != nil {
			return m, m.actionFailed(msg.Error)
		}
		m.status = "Uploaded " + msg.Name
		m.refreshSnapshot()
		return m, nil

	case SummaryLoadedMsg:
		m.loading.Stop("Loading summary")
		if msg.Seq != m.summarySeq {
			return m, nil
		}
		if msg.Error != nil {
			return m, m.actionFailed(msg.Error)
		}
		m.status = fmt.Sprintf("Summary of #%d loaded", msg.ID)
		m.refreshSnapshot()
		return m, nil

	case TableLoadedMsg:
		m.loading.Stop("Loading table")
		if msg.Seq != m.tableSeq {
			return m, nil
		}
		if errors.Is(msg.Error, workspace.ErrCSVUnavailable) {
			m.alert = "CSV URL missing"
			return m, nil
		}
		m.tableID = msg.ID
		m.status = fmt.Sprintf("Loaded %d rows of #%d", len(msg.Table.Rows), msg.ID)
		m.refreshSnapshot()
		m.viewport.GotoTop()
		return m, nil

	case ReportSavedMsg:
		m.loading.Stop("Downloading")
		if m.mode != workspaceView {
			return m, nil
		}
		if msg.Error != nil {
			return m, m.actionFailed(msg.Error)
		}
		m.status = "Saved " + msg.Path
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.mode == authView {
			return m.updateAuth(msg)
		}
		return m.updateWorkspace(msg)
	}

	return m, nil
}

func (m model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form.busy {
		return m, nil
	}
	cmd, submit := m.form.update(msg)
	if !submit {
		return m, cmd
	}

	m.form.busy = true
	m.form.message = ""
	login := loginCmd(m.ctx, m.session, m.form.register, m.form.username.Value(), m.form.password.Value())
	return m, m.startLoading("Signing in", login)
}

func (m model) updateWorkspace(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// an alert blocks until it is dismissed
	if m.alert != "" {
		m.alert = ""
		return m, nil
	}

	if m.prompting {
		switch msg.String() {
		case "esc":
			m.prompting = false
			m.prompt.Blur()
			return m, nil
		case "enter":
			path := strings.TrimSpace(m.prompt.Value())
			m.prompting = false
			m.prompt.Blur()
			m.prompt.SetValue("")
			if path == "" {
				m.alert = "Choose a CSV file first"
				return m, nil
			}
			m.summarySeq++
			return m, m.startLoading("Uploading", uploadCmd(m.ctx, m.workspace, m.summarySeq, path))
		}
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "tab":
		if m.focus == focusHistory {
			m.focus = focusTable
		} else {
			m.focus = focusHistory
		}
		return m, nil

	case "u":
		m.prompting = true
		return m, m.prompt.Focus()

	case "r":
		return m, m.refreshHistory()

	case "L":
		// the session ends even if the stored token could not be removed
		message := ""
		if err := m.session.Logout(); err != nil {
			message = err.Error()
		}
		m.leaveWorkspace(message)
		return m, nil
	}

	if m.focus == focusTable {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	history := m.snapshot.History
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(history)-1 {
			m.cursor++
		}
	case "enter", "t":
		rec, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.tableSeq++
		return m, m.startLoading("Loading table", loadTableCmd(m.ctx, m.workspace, m.tableSeq, rec))
	case "s":
		rec, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.summarySeq++
		return m, m.startLoading("Loading summary", fetchSummaryCmd(m.ctx, m.workspace, m.summarySeq, rec.ID))
	case "d":
		rec, ok := m.selected()
		if !ok {
			m.alert = "No id provided"
			return m, nil
		}
		return m, m.startLoading("Downloading", downloadCmd(m.ctx, m.workspace, rec.ID, m.downloadDir))
	}
	return m, nil
}

func (m *model) enterWorkspace() tea.Cmd {
	if m.mode == workspaceView {
		return nil
	}
	m.mode = workspaceView
	m.focus = focusHistory
	m.cursor = 0
	m.form.reset()
	return m.refreshHistory()
}

// leaveWorkspace returns to the auth form and forgets everything the last
// session showed. Results still in flight become stale.
func (m *model) leaveWorkspace(message string) {
	if m.mode == authView {
		return
	}
	m.workspace.Reset()

	m.mode = authView
	m.snapshot = workspace.Snapshot{}
	m.tableID = 0
	m.cursor = 0
	m.focus = focusHistory
	m.historySeq++
	m.summarySeq++
	m.tableSeq++
	m.prompting = false
	m.prompt.Blur()
	m.prompt.SetValue("")
	m.alert = ""
	m.status = ""
	m.loading.Reset()
	m.form.reset()
	m.form.message = message
	m.updateViewport()
}

// actionFailed reports a failed upload, summary or download. A rejected token
// ends the session; a record the backend no longer knows refreshes the list.
func (m *model) actionFailed(err error) tea.Cmd {
	var httpErr *apiclient.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Unauthorized():
			message := sessionExpiredMessage
			if logoutErr := m.session.Logout(); logoutErr != nil {
				message += " (" + logoutErr.Error() + ")"
			}
			m.leaveWorkspace(message)
			return nil
		case httpErr.NotFound():
			m.alert = err.Error()
			return m.refreshHistory()
		}
	}
	m.alert = err.Error()
	return nil
}

func (m *model) refreshSnapshot() {
	m.snapshot = m.workspace.Snapshot()
	if m.cursor >= len(m.snapshot.History) {
		m.cursor = max(len(m.snapshot.History)-1, 0)
	}
	m.updateViewport()
}

func (m *model) updateViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderTable(m.snapshot.Table, m.viewport.Width))
}

func (m model) selected() (models.UploadRecord, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snapshot.History) {
		return models.UploadRecord{}, false
	}
	return m.snapshot.History[m.cursor], true
}

func authMessage(err error) string {
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return err.Error()
}

func (m model) View() string {
	if m.mode == authView {
		header := m.renderHeader("Chemical Equipment Visualizer")
		return fmt.Sprintf("%s\n\n%s\n%s", header, m.form.view(m.width), m.loading.View())
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	header := m.renderHeader("Chemical Equipment Visualizer - Workspace")
	historyWidth := max(m.width/2-1, 20)
	summaryWidth := max(m.width-historyWidth-1, 20)

	top := lipgloss.JoinHorizontal(
		lipgloss.Top,
		lipgloss.NewStyle().Width(historyWidth).Height(historyPanelHeight).Render(m.renderHistory(historyWidth)),
		lipgloss.NewStyle().Width(summaryWidth).Height(historyPanelHeight).Render(m.renderSummary(summaryWidth)),
	)

	tableTitle := "Table"
	if m.tableID != 0 {
		tableTitle = fmt.Sprintf("Table (#%d)", m.tableID)
	}
	tableHeader := sectionStyle(m.focus == focusTable).Render(tableTitle)

	body := fmt.Sprintf("%s\n%s\n%s\n%s\n%s", header, top, tableHeader, m.viewport.View(), m.renderFooter())
	if m.alert != "" {
		return m.renderAlert(body)
	}
	return body
}

func sectionStyle(focused bool) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	if focused {
		style = style.Foreground(lipgloss.Color("212"))
	}
	return style
}

func (m model) renderHeader(title string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("63"))
	if m.baseURL != "" {
		title += " @ " + m.baseURL
	}
	return style.Render(title)
}

func (m model) renderHistory(width int) string {
	var s strings.Builder
	s.WriteString(sectionStyle(m.focus == focusHistory).Render("History (latest 5)") + "\n")

	if len(m.snapshot.History) == 0 {
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).Render("No uploads yet"))
		return s.String()
	}

	for i, rec := range m.snapshot.History {
		cursor := "  "
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		if i == m.cursor {
			cursor = "> "
			style = style.Foreground(lipgloss.Color("212")).Bold(true)
		}
		csv := ""
		if !rec.HasCSV() {
			csv = " (no csv)"
		}
		line := fmt.Sprintf("%s#%d %s - %s%s",
			cursor,
			rec.ID,
			rec.Name,
			rec.UploadedAt.Local().Format("2006-01-02 15:04"),
			csv)
		s.WriteString(style.Render(truncate(line, width)) + "\n")
	}
	return s.String()
}

func (m model) renderSummary(width int) string {
	var s strings.Builder
	s.WriteString(sectionStyle(false).Render("Summary") + "\n")

	summary := m.snapshot.Summary
	if summary == nil {
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).Render("Upload a file or press s on a record"))
		return s.String()
	}
	fmt.Fprintf(&s, "Total equipment: %d\n", summary.Total)
	s.WriteString(chart.TypeDistributionText(summary, width) + "\n")
	s.WriteString(chart.AveragesText(summary, width))
	return s.String()
}

// renderTable lays the rows out in fixed width columns. Missing cells are blank.
func renderTable(table models.Table, width int) string {
	if len(table.Headers) == 0 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).Render("Select a record and press enter to load its CSV")
	}

	const maxColumn = 24
	widths := make([]int, len(table.Headers))
	for i, h := range table.Headers {
		widths[i] = min(lipgloss.Width(h), maxColumn)
	}
	for _, row := range table.Rows {
		for i, h := range table.Headers {
			widths[i] = min(max(widths[i], lipgloss.Width(row[h])), maxColumn)
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = padCell(truncate(c, widths[i]), widths[i])
		}
		return truncate(strings.Join(parts, " │ "), max(width, 10))
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	var s strings.Builder
	s.WriteString(headerStyle.Render(line(table.Headers)) + "\n")
	for i, row := range table.Rows {
		cells := make([]string, len(table.Headers))
		for j, h := range table.Headers {
			cells[j] = row[h]
		}
		s.WriteString(line(cells))
		if i < len(table.Rows)-1 {
			s.WriteString("\n")
		}
	}
	return s.String()
}

func (m model) renderFooter() string {
	info := "↑/↓: navigate • enter: table • s: summary • d: pdf • u: upload • r: refresh • tab: focus • L: logout • q: quit"
	if m.prompting {
		return m.prompt.View() + "  " + lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("enter: upload • esc: cancel")
	}

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	var parts []string
	if busy := m.loading.View(); busy != "" {
		parts = append(parts, busy)
	}
	if m.status != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render(m.status))
	}
	parts = append(parts, style.Render(info))
	return strings.Join(parts, "  ")
}

func (m model) renderAlert(background string) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("196")).
		Padding(1, 3).
		Render(m.alert + "\n\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("press any key"))
	if m.width == 0 || m.height == 0 {
		return background + "\n" + box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func truncate(s string, maxLen int) string {
	if maxLen <= 3 || lipgloss.Width(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) > maxLen-3 {
		runes = runes[:maxLen-3]
	}
	return string(runes) + "..."
}

func padCell(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// sessionListener forwards session transitions into the program. Send is
// called off the caller's goroutine because Logout runs inside Update.
func sessionListener(send func(tea.Msg)) func(session.State) {
	return func(state session.State) {
		go send(SessionStateMsg{State: state})
	}
}

// Run shows the UI until the user quits
func Run(opts Options) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := tea.NewProgram(
		initialModel(opts),
		tea.WithAltScreen(),
		tea.WithContext(opts.Context),
	)
	opts.Session.Subscribe(sessionListener(p.Send))
	_, err := p.Run()
	return err
}
