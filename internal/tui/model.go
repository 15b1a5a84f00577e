// Package tui provides the Bubble Tea game interface.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/learnsignals/internal/dispatch"
	"github.com/verte-zerg/learnsignals/internal/game"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/mistakes"
	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/performance"
)

const tickInterval = 100 * time.Millisecond

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	correctStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	wrongStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#40A9FF")).Italic(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	feedbackStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// Journal stores finished games.
type Journal interface {
	InsertGame(ctx context.Context, game model.GameStats, signs []model.SignStats) (string, error)
}

// Options wire the interface to a game.
type Options struct {
	Game        *game.Game
	Queue       *dispatch.Queue
	Performance *performance.Tracker
	Mistakes    *mistakes.Tracker
	Journal     Journal
	// Online reports backend connectivity for the footer.
	Online func() bool
	// WeakSigns reloads the weak-sign set before each game. Optional.
	WeakSigns func() map[string]struct{}
	Logger    *logging.Logger
	Now       func() time.Time
}

type tickMsg time.Time

// Model implements the Bubble Tea game UI.
type Model struct {
	game     *game.Game
	queue    *dispatch.Queue
	perf     *performance.Tracker
	mistakes *mistakes.Tracker
	journal  Journal
	online   func() bool
	weak     func() map[string]struct{}
	log      *logging.Logger
	now      func() time.Time

	width  int
	height int

	shownAt   time.Time
	shownSlot int
	last      *game.Outcome
	feedback  string
	notice    string
	saved     bool
	played    bool
}

// NewModel constructs a game TUI model.
func NewModel(opts Options) *Model {
	m := &Model{
		game:      opts.Game,
		queue:     opts.Queue,
		perf:      opts.Performance,
		mistakes:  opts.Mistakes,
		journal:   opts.Journal,
		online:    opts.Online,
		weak:      opts.WeakSigns,
		log:       opts.Logger.Named("tui"),
		now:       opts.Now,
		shownSlot: -1,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.online == nil {
		m.online = func() bool { return false }
	}
	m.mistakes.FeedbackReady().Subscribe(func(r mistakes.FeedbackResult) {
		if m.last != nil && m.last.Mistake == r.Record {
			m.feedback = r.Feedback.FullMessage
		}
	})
	m.game.StateChanged().Subscribe(m.onState)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tickMsg:
		m.step()
		return m, tick()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// step runs queued completions and expires the current challenge.
func (m *Model) step() {
	if m.queue != nil {
		m.queue.Drain()
	}
	if m.game.State() != game.RoundActive {
		return
	}
	m.markShown()
	limit := m.game.Round().Config.TimeLimitDuration()
	if m.now().Sub(m.shownAt) < limit {
		return
	}
	out, err := m.game.Timeout(context.Background())
	if err != nil {
		m.log.Warn("timeout rejected", "error", err)
		return
	}
	m.setOutcome(out)
}

// markShown starts the clock when a new challenge appears.
func (m *Model) markShown() {
	r := m.game.Round()
	slot := r.Number*1000 + r.Current
	if slot != m.shownSlot {
		m.shownSlot = slot
		m.shownAt = m.now()
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	if msg.Type == tea.KeyCtrlC {
		m.quitGame()
		return m, tea.Quit
	}
	key := msg.String()
	state := m.game.State()
	if key == "esc" {
		if state == game.MainMenu {
			return m, tea.Quit
		}
		m.quitGame()
		return m, nil
	}
	switch state {
	case game.MainMenu:
		switch key {
		case "q":
			return m, tea.Quit
		case "enter", " ":
			m.startGame(ctx)
		}
	case game.ZoneIntro:
		if key == "enter" || key == " " {
			m.begin()
		}
	case game.RoundActive:
		n, err := strconv.Atoi(key)
		ch, ok := m.game.Round().Challenge()
		if err != nil || !ok || n < 1 || n > len(ch.Choices) {
			return m, nil
		}
		m.markShown()
		rt := m.now().Sub(m.shownAt).Seconds()
		out, err := m.game.Answer(ctx, ch.Choices[n-1], rt)
		if err != nil {
			m.log.Warn("answer rejected", "error", err)
			return m, nil
		}
		m.setOutcome(out)
	case game.RoundEvaluating:
		if key == "enter" || key == " " {
			if err := m.game.Advance(ctx); err != nil {
				m.log.Warn("advance rejected", "error", err)
			}
		}
	case game.ZoneComplete:
		if key == "enter" || key == " " {
			if err := m.game.NextZone(); err != nil {
				m.log.Warn("next zone rejected", "error", err)
			}
		}
	case game.GameComplete:
		switch key {
		case "q":
			m.game.Quit()
			return m, tea.Quit
		case "enter", " ":
			m.game.Quit()
		}
	}
	return m, nil
}

func (m *Model) startGame(ctx context.Context) {
	if m.weak != nil {
		m.game.SetWeakSigns(m.weak())
	}
	m.last, m.feedback, m.notice = nil, "", ""
	m.saved, m.played = false, false
	if err := m.game.Start(ctx); err != nil {
		m.notice = err.Error()
	}
}

func (m *Model) begin() {
	if err := m.game.BeginRound(); err != nil {
		m.log.Warn("round not started", "error", err)
	}
}

func (m *Model) setOutcome(out game.Outcome) {
	m.played = true
	m.last = &out
	m.feedback = ""
	if out.Mistake != nil && out.Mistake.FeedbackText != "" {
		m.feedback = out.Mistake.FeedbackText
	}
}

func (m *Model) quitGame() {
	if m.game.State() == game.MainMenu {
		return
	}
	m.game.Quit()
}

// onState saves the game when it completes or is abandoned after play.
func (m *Model) onState(s game.State) {
	switch s {
	case game.GameComplete:
		m.save()
	case game.MainMenu:
		if m.played {
			m.save()
		}
	case game.RoundActive:
		m.last, m.feedback = nil, ""
		m.shownSlot = -1
	}
}

func (m *Model) save() {
	if m.saved || m.journal == nil {
		return
	}
	m.saved = true
	stats, signs := m.game.Summary()
	if _, err := m.journal.InsertGame(context.Background(), stats, signs); err != nil {
		m.log.Error("failed to save game", "error", err)
		m.notice = "Could not save the game to the journal."
		return
	}
	m.log.Info("game saved", "correct", stats.Correct, "incorrect", stats.Incorrect, "completed", stats.Completed)
}

// View implements tea.Model.
func (m *Model) View() string {
	width := m.contentWidth()
	var body []string
	switch m.game.State() {
	case game.MainMenu:
		body = m.viewMenu()
	case game.ZoneIntro:
		body = m.viewZoneIntro(width)
	case game.RoundActive:
		body = m.viewChallenge(width)
	case game.RoundEvaluating, game.RoundEnd:
		body = m.viewRoundResult(width)
	case game.ZoneComplete:
		z := m.game.Zone()
		body = []string{
			titleStyle.Render("Zona completada: " + z.Name),
			"",
			mutedStyle.Render("enter: siguiente zona  esc: salir"),
		}
	case game.GameComplete:
		body = m.viewGameComplete()
	}
	if m.notice != "" {
		body = append(body, "", wrongStyle.Render(m.notice))
	}
	content := lipgloss.NewStyle().Width(width).Render(strings.Join(body, "\n"))
	if m.width == 0 || m.height == 0 {
		return content + "\n" + m.renderFooter()
	}
	if m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	main := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	return main + "\n" + lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, m.renderFooter())
}

func (m *Model) contentWidth() int {
	if m.width <= 0 {
		return 60
	}
	return max(20, int(float64(m.width)*0.70))
}

func (m *Model) viewMenu() []string {
	return []string{
		titleStyle.Render("LearnSignals"),
		mutedStyle.Render("Reconoce las señales de tránsito antes de que se acabe el tiempo."),
		"",
		textStyle.Render(fmt.Sprintf("%d zonas", m.game.ZoneCount())),
		"",
		mutedStyle.Render("enter: jugar  q: salir"),
	}
}

func (m *Model) viewZoneIntro(width int) []string {
	z := m.game.Zone()
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Zona %d/%d: %s", m.game.ZoneIndex()+1, m.game.ZoneCount(), z.Name)),
	}
	for _, l := range wrapText(z.Description, width) {
		lines = append(lines, textStyle.Render(l))
	}
	return append(lines, "", mutedStyle.Render("enter: comenzar  esc: salir"))
}

func (m *Model) viewChallenge(width int) []string {
	r := m.game.Round()
	ch, ok := r.Challenge()
	if !ok {
		return nil
	}
	lines := []string{
		mutedStyle.Render(fmt.Sprintf("Ronda %d  ·  Señal %d/%d  ·  %s", r.Number+1, r.Current+1, len(r.Challenges), r.Tier)),
	}
	lines = append(lines, m.outcomeLines()...)
	lines = append(lines, "")
	for _, l := range wrapText(ch.Sign.Description, width) {
		lines = append(lines, textStyle.Render(l))
	}
	if r.Config.ShowVisualAid && ch.Sign.Hint != "" {
		for _, l := range wrapText("Pista: "+ch.Sign.Hint, width) {
			lines = append(lines, hintStyle.Render(l))
		}
	}
	lines = append(lines, "")
	for i, c := range ch.Choices {
		lines = append(lines, textStyle.Render(fmt.Sprintf("%d. %s", i+1, c)))
	}
	limit := r.Config.TimeLimit
	remaining := limit
	if !m.shownAt.IsZero() {
		remaining = limit - m.now().Sub(m.shownAt).Seconds()
	}
	lines = append(lines, "",
		mutedStyle.Render(fmt.Sprintf("%s %4.1fs", countdownBar(remaining, limit, min(30, width-7)), max(0, remaining))),
		mutedStyle.Render("1-"+strconv.Itoa(len(ch.Choices))+": responder  esc: salir"),
	)
	return lines
}

func (m *Model) viewRoundResult(width int) []string {
	r := m.game.Round()
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Ronda %d terminada", r.Number+1)),
		textStyle.Render(fmt.Sprintf("Aciertos %d  ·  Errores %d", r.Correct, r.Incorrect)),
	}
	lines = append(lines, m.outcomeLines()...)
	if m.feedback != "" {
		fb := wrapText(m.feedback, width-4)
		lines = append(lines, "", feedbackStyle.Width(width).Render(strings.Join(fb, "\n")))
	}
	if m.game.State() == game.RoundEnd {
		return append(lines, "", mutedStyle.Render("Ajustando la dificultad..."))
	}
	return append(lines, "", mutedStyle.Render("enter: continuar  esc: salir"))
}

func (m *Model) outcomeLines() []string {
	if m.last == nil {
		return nil
	}
	o := m.last
	switch {
	case o.Correct:
		return []string{correctStyle.Render("✓ " + o.Sign)}
	case o.Answer == nil:
		return []string{wrongStyle.Render("⏱ Tiempo agotado: era " + o.Sign)}
	default:
		return []string{wrongStyle.Render(fmt.Sprintf("✗ %s (era %s)", *o.Answer, o.Sign))}
	}
}

func (m *Model) viewGameComplete() []string {
	stats, _ := m.game.Summary()
	total := stats.Correct + stats.Incorrect
	acc := 0.0
	if total > 0 {
		acc = float64(stats.Correct) / float64(total) * 100
	}
	return []string{
		titleStyle.Render("¡Juego completado!"),
		textStyle.Render(fmt.Sprintf("Zonas %d  ·  Precisión %.1f%%  ·  Respuesta media %.2fs", stats.ZonesCompleted, acc, stats.MeanResponse)),
		textStyle.Render("Dificultad final: " + stats.FinalTier.String()),
		"",
		mutedStyle.Render("enter: menú  q: salir"),
	}
}

func (m *Model) renderFooter() string {
	status := "offline"
	if m.online() {
		status = "online"
	}
	segments := []string{status}
	if m.game.State() != game.MainMenu {
		segments = append(segments, fmt.Sprintf("Zona %d/%d", m.game.ZoneIndex()+1, m.game.ZoneCount()))
		if m.perf != nil {
			recent := m.perf.RecentMetrics()
			segments = append(segments, fmt.Sprintf("Reciente %.0f%%", recent.DisplayAccuracy()*100))
			gm := m.perf.GameMetrics()
			segments = append(segments, fmt.Sprintf("Total %d/%d", gm.Correct, gm.Attempts))
		}
		if m.mistakes != nil {
			segments = append(segments, fmt.Sprintf("Errores %d", m.mistakes.SessionErrorCount()))
		}
	}
	return footerStyle.Render(strings.Join(segments, "  ·  "))
}
