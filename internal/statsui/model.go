// Package statsui provides the Bubble Tea journal browser.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/stats"
)

const (
	tabOverview = iota
	tabGames
	tabSigns
	tabSignCurves
)

const (
	plotHeight  = 8
	curveSigns  = 5
	dateLayout  = "2006-01-02"
	stampLayout = "2006-01-02 15:04"
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
)

// Model implements the Bubble Tea stats UI.
type Model struct {
	src stats.Source
	cfg model.StatsConfig

	report stats.Report
	errMsg string

	tabs      []string
	activeTab int
	viewports map[int]*viewport.Model
	tables    map[int]*table.Model

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string
}

// NewModel constructs a stats UI model.
func NewModel(src stats.Source, cfg model.StatsConfig) *Model {
	if cfg.CurveWindow < 1 {
		cfg.CurveWindow = 1
	}
	overview, curves := viewport.New(0, 0), viewport.New(0, 0)
	games, signs := newTable(gameColumns()), newTable(signColumns())
	m := &Model{
		src:       src,
		cfg:       cfg,
		tabs:      []string{"Overview", "Games", "Signs", "Sign Curves"},
		viewports: map[int]*viewport.Model{tabOverview: &overview, tabSignCurves: &curves},
		tables:    map[int]*table.Model{tabGames: &games, tabSigns: &signs},
		filterInputs: []textinput.Model{
			newInput("Since (YYYY-MM-DD): "),
			newInput("Last: "),
			newInput("Curve window: "),
		},
	}
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (!m.filterMode && msg.String() == "q") {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow++
			m.refreshReport()
			return m, nil
		case "-":
			m.cfg.CurveWindow = max(1, m.cfg.CurveWindow-1)
			m.refreshReport()
			return m, nil
		case "/":
			m.filterMode = true
			m.filterError = ""
			m.setInputsFromConfig()
			return m, m.focusInput(0)
		}
		var cmd tea.Cmd
		if t, ok := m.tables[m.activeTab]; ok {
			*t, cmd = t.Update(msg)
			return m, cmd
		}
		vp := m.viewports[m.activeTab]
		*vp, cmd = vp.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	header := m.renderTabs() + "\n" + headerStyle.Render(m.filterSummary())
	footer := headerStyle.Render("Nav: left/right  Scroll: up/down  Window: -/=  Filter: /  Quit: q")
	if m.filterMode {
		footer = headerStyle.Render("tab: next field  enter: apply  esc: cancel")
	} else if m.errMsg != "" {
		footer += "\n" + errorStyle.Render(m.errMsg)
	}
	body := m.renderBody()
	bodyHeight := max(1, m.height-lipgloss.Height(header)-lipgloss.Height(footer))
	return lipgloss.JoinVertical(lipgloss.Left, header, fitLines(body, m.width, bodyHeight), footer)
}

func (m *Model) renderBody() string {
	if m.filterMode {
		lines := []string{"Filter (enter to apply, esc to cancel)"}
		for _, in := range m.filterInputs {
			lines = append(lines, in.View())
		}
		if m.filterError != "" {
			lines = append(lines, errorStyle.Render(m.filterError))
		}
		return strings.Join(lines, "\n")
	}
	if t, ok := m.tables[m.activeTab]; ok {
		if len(m.report.Games) == 0 {
			return "No games found."
		}
		return t.View()
	}
	return m.viewports[m.activeTab].View()
}

func (m *Model) bodyHeight() int {
	return max(1, m.height-4-1)
}

func (m *Model) updateLayout() {
	h := m.bodyHeight()
	for _, vp := range m.viewports {
		vp.Width, vp.Height = m.width, h
	}
	for _, t := range m.tables {
		t.SetWidth(m.width)
		t.SetHeight(h)
	}
}

func (m *Model) moveTab(delta int) {
	n := len(m.tabs)
	m.activeTab = ((m.activeTab+delta)%n + n) % n
	for tab, t := range m.tables {
		if tab == m.activeTab {
			t.Focus()
		} else {
			t.Blur()
		}
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, len(m.tabs))
	for i, tab := range m.tabs {
		style := inactiveNavStyle
		if i == m.activeTab {
			style = activeNavStyle
		}
		parts[i] = style.Render(tab)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) filterSummary() string {
	since, last := "any", "all"
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format(dateLayout)
	}
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	student := "any"
	if m.cfg.Student > 0 {
		student = strconv.Itoa(m.cfg.Student)
	}
	return fmt.Sprintf("Filter: student=%s  since=%s  last=%s  window=%d", student, since, last, m.cfg.CurveWindow)
}

func (m *Model) refreshReport() {
	ctx := context.Background()
	report, err := stats.BuildReport(ctx, m.src, m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.errMsg = ""
	m.report = report
	m.tables[tabGames].SetRows(gameRows(report.Games))
	m.tables[tabSigns].SetRows(signRows(report.SignAggsWindow))
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(m.renderOverview(width))
	m.viewports[tabSignCurves].SetContent(m.renderSignCurves(width))
}

func (m *Model) renderOverview(width int) string {
	games := m.report.Games
	if len(games) == 0 {
		return "No games found."
	}
	var acc, resp float64
	completed := 0
	for _, g := range games {
		a, r := stats.GameMetrics(g)
		acc += a
		resp += r
		if g.Completed {
			completed++
		}
	}
	n := float64(len(games))
	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		metricCard("Games", strconv.Itoa(len(games))),
		metricCard("Completed", strconv.Itoa(completed)),
		metricCard("Avg Acc", fmt.Sprintf("%.1f%%", acc/n*100)),
		metricCard("Avg Response", fmt.Sprintf("%.2fs", resp/n)),
		metricCard("Last Tier", games[len(games)-1].FinalTier.String()),
	)
	var buf bytes.Buffer
	if err := stats.RenderCurves(&buf, games, m.cfg.CurveWindow, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render curves: %v", err)
	}
	return strings.TrimRight(cards+"\n\n"+buf.String(), "\n")
}

func (m *Model) renderSignCurves(width int) string {
	if len(m.report.Games) == 0 {
		return "No games found."
	}
	signs := stats.TopSignsByFrequency(m.report.SignAggsAll, curveSigns)
	perGame, err := m.src.ListSignStatsForGames(context.Background(), gameIDs(m.report.Games), signs)
	if err != nil {
		return fmt.Sprintf("Failed to load sign curves: %v", err)
	}
	var buf bytes.Buffer
	if err := stats.RenderSignCurves(&buf, m.report.Games, perGame, signs, m.cfg.CurveWindow, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render sign curves: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.refreshReport()
		return m, nil
	case tea.KeyTab:
		return m, m.focusInput(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.focusInput(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) focusInput(idx int) tea.Cmd {
	n := len(m.filterInputs)
	m.filterIndex = (idx%n + n) % n
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) setInputsFromConfig() {
	since, last := "", ""
	if m.cfg.Since != nil {
		since = m.cfg.Since.Format(dateLayout)
	}
	if m.cfg.Last > 0 {
		last = strconv.Itoa(m.cfg.Last)
	}
	m.filterInputs[0].SetValue(since)
	m.filterInputs[1].SetValue(last)
	m.filterInputs[2].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) applyFilter() error {
	cfg := m.cfg
	cfg.Since = nil
	if v := strings.TrimSpace(m.filterInputs[0].Value()); v != "" {
		parsed, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			return fmt.Errorf("invalid since date (expected YYYY-MM-DD)")
		}
		cfg.Since = &parsed
	}
	cfg.Last = 0
	if v := strings.TrimSpace(m.filterInputs[1].Value()); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid last value (use 0 or positive integer)")
		}
		cfg.Last = n
	}
	if v := strings.TrimSpace(m.filterInputs[2].Value()); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		cfg.CurveWindow = n
	}
	m.cfg = cfg
	return nil
}

func newInput(prompt string) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	return in
}

func newTable(cols []table.Column) table.Model {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Bold(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#F0F0F0")).Background(lipgloss.NoColor{})
	return table.New(table.WithColumns(cols), table.WithStyles(styles), table.WithHeight(1))
}

func gameColumns() []table.Column {
	return []table.Column{
		{Title: "Ended", Width: 16},
		{Title: "Accuracy", Width: 9},
		{Title: "Resp (s)", Width: 8},
		{Title: "Zones", Width: 5},
		{Title: "Tier", Width: 6},
		{Title: "Done", Width: 4},
	}
}

func signColumns() []table.Column {
	return []table.Column{
		{Title: "Sign", Width: 28},
		{Title: "Accuracy", Width: 9},
		{Title: "Resp (s)", Width: 8},
		{Title: "Correct", Width: 7},
		{Title: "Wrong", Width: 5},
		{Title: "Timeouts", Width: 8},
	}
}

// gameRows lists games newest first.
func gameRows(games []model.GameAggregate) []table.Row {
	rows := make([]table.Row, 0, len(games))
	for i := len(games) - 1; i >= 0; i-- {
		g := games[i]
		acc, resp := stats.GameMetrics(g)
		done := "no"
		if g.Completed {
			done = "yes"
		}
		rows = append(rows, table.Row{
			g.EndedAt.Local().Format(stampLayout),
			fmt.Sprintf("%.1f%%", acc*100),
			fmt.Sprintf("%.2f", resp),
			strconv.Itoa(g.ZonesCompleted),
			g.FinalTier.String(),
			done,
		})
	}
	return rows
}

func signRows(aggs []model.SignAggregate) []table.Row {
	rows := make([]table.Row, 0, len(aggs))
	for _, a := range aggs {
		rows = append(rows, table.Row{
			a.Sign,
			fmt.Sprintf("%.1f%%", a.Accuracy()*100),
			fmt.Sprintf("%.2f", a.MeanResponse()),
			strconv.Itoa(a.Correct),
			strconv.Itoa(a.Incorrect),
			strconv.Itoa(a.Timeouts),
		})
	}
	return rows
}

func metricCard(label, value string) string {
	return cardStyle.Render(cardTitleStyle.Render(label) + "\n" + cardValueStyle.Render(value))
}

func gameIDs(games []model.GameAggregate) []string {
	ids := make([]string, len(games))
	for i, g := range games {
		ids[i] = g.GameID
	}
	return ids
}

func fitLines(s string, width, height int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, line := range lines {
		if w := lipgloss.Width(line); w < width {
			lines[i] = line + strings.Repeat(" ", width-w)
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", max(0, width)))
	}
	return strings.Join(lines, "\n")
}
