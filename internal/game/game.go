// Package game runs the zone and round flow on top of the performance,
// mistakes, difficulty and metrics components.
//
// A Game is owned by the logical thread. Asynchronous completions reach it
// through the dispatcher the components were built with.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verte-zerg/learnsignals/internal/catalog"
	"github.com/verte-zerg/learnsignals/internal/difficulty"
	"github.com/verte-zerg/learnsignals/internal/event"
	"github.com/verte-zerg/learnsignals/internal/generator"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/metrics"
	"github.com/verte-zerg/learnsignals/internal/mistakes"
	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/performance"
)

// State is the game flow state.
type State int

// Game states.
const (
	MainMenu State = iota
	ZoneIntro
	RoundActive
	RoundEvaluating
	RoundEnd
	ZoneComplete
	GameComplete
)

func (s State) String() string {
	switch s {
	case MainMenu:
		return "MainMenu"
	case ZoneIntro:
		return "ZoneIntro"
	case RoundActive:
		return "RoundActive"
	case RoundEvaluating:
		return "RoundEvaluating"
	case RoundEnd:
		return "RoundEnd"
	case ZoneComplete:
		return "ZoneComplete"
	case GameComplete:
		return "GameComplete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrWrongState is returned when an action does not apply to the current
// state.
var ErrWrongState = errors.New("action not allowed in current state")

// Session is the part of the metrics service the game drives.
type Session interface {
	StartSession(ctx context.Context, initial model.Tier) error
	RecordAttempt(metrics.AttemptWrite)
	FinalizeSession(final model.MetricsSnapshot, zonesCompleted, maxZone int, completed bool) error
	State() metrics.State
	SessionID() int
	Tunables() model.Tunables
}

// Options wire a Game. Session may be nil for offline play, in which case
// Tunables applies.
type Options struct {
	Catalog     *catalog.Catalog
	Performance *performance.Tracker
	Mistakes    *mistakes.Tracker
	Policy      *difficulty.Policy
	Session     Session
	Generator   *generator.Generator
	InitialTier model.Tier
	Tunables    model.Tunables
	Student     int
	WeakSigns   map[string]struct{}
	WeakFactor  float64
	Logger      *logging.Logger
	Now         func() time.Time
}

// Challenge is one sign of a round with its answer choices.
type Challenge struct {
	Sign    model.Sign
	Choices []string
}

// Round is a snapshot of the round in progress.
type Round struct {
	Number     int
	Tier       model.Tier
	Config     model.TierConfig
	Challenges []Challenge
	Current    int
	Correct    int
	Incorrect  int
}

// Done reports whether every challenge has been answered.
func (r Round) Done() bool { return r.Current >= len(r.Challenges) }

// Challenge returns the challenge awaiting an answer.
func (r Round) Challenge() (Challenge, bool) {
	if r.Done() {
		return Challenge{}, false
	}
	return r.Challenges[r.Current], true
}

// Outcome describes one answered or timed-out challenge.
type Outcome struct {
	Sign         string
	Answer       *string
	Correct      bool
	ResponseTime float64
	Mistake      *model.ErrorRecord
	RoundDone    bool
}

// Game is the round and zone state machine.
type Game struct {
	catalog  *catalog.Catalog
	perf     *performance.Tracker
	mistakes *mistakes.Tracker
	policy   *difficulty.Policy
	session  Session
	gen      *generator.Generator
	log      *logging.Logger
	now      func() time.Time

	initial    model.Tier
	tunables   model.Tunables
	student    int
	weak       map[string]struct{}
	weakFactor float64

	state          State
	zone           int
	round          int
	current        Round
	zonesCompleted int
	startedAt      time.Time
	endedAt        time.Time
	completed      bool
	remoteSession  int
	signs          map[string]*model.SignStats
	signOrder      []string

	changed  event.Feed[State]
	answered event.Feed[Outcome]
}

// New validates opts and returns a Game in MainMenu.
func New(opts Options) (*Game, error) {
	switch {
	case opts.Catalog == nil || opts.Catalog.Len() == 0:
		return nil, errors.New("game needs a catalog with at least one zone")
	case opts.Performance == nil:
		return nil, errors.New("game needs a performance tracker")
	case opts.Mistakes == nil:
		return nil, errors.New("game needs a mistakes tracker")
	case opts.Policy == nil:
		return nil, errors.New("game needs a difficulty policy")
	}
	gen := opts.Generator
	if gen == nil {
		gen = generator.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tunables := opts.Tunables
	if tunables == (model.Tunables{}) {
		tunables = model.DefaultTunables()
	}
	initial := opts.InitialTier
	if !initial.Valid() {
		initial = model.TierLow
	}
	factor := opts.WeakFactor
	if factor <= 0 {
		factor = 2
	}
	return &Game{
		catalog:       opts.Catalog,
		perf:          opts.Performance,
		mistakes:      opts.Mistakes,
		policy:        opts.Policy,
		session:       opts.Session,
		gen:           gen,
		log:           opts.Logger.Named("game"),
		now:           now,
		initial:       initial,
		tunables:      tunables,
		student:       opts.Student,
		weak:          opts.WeakSigns,
		weakFactor:    factor,
		remoteSession: metrics.NoSessionID,
	}, nil
}

// SetInitialTier changes the tier the next game starts at. Invalid tiers
// are ignored.
func (g *Game) SetInitialTier(t model.Tier) {
	if !t.Valid() || t == g.initial {
		return
	}
	g.initial = t
	g.log.Info("initial tier changed", "tier", t.String())
}

// InitialTier returns the tier new games start at.
func (g *Game) InitialTier() model.Tier { return g.initial }

// StateChanged fires on every state transition.
func (g *Game) StateChanged() *event.Feed[State] { return &g.changed }

// Answered fires after every answer or timeout.
func (g *Game) Answered() *event.Feed[Outcome] { return &g.answered }

// State returns the flow state.
func (g *Game) State() State { return g.state }

// ZoneIndex returns the active zone index.
func (g *Game) ZoneIndex() int { return g.zone }

// Zone returns the active zone.
func (g *Game) Zone() model.Zone {
	z, _ := g.catalog.Zone(g.zone)
	return z
}

// ZoneCount returns the number of zones in the game.
func (g *Game) ZoneCount() int { return g.catalog.Len() }

// RoundNumber returns the number of rounds finished in the zone.
func (g *Game) RoundNumber() int { return g.round }

// Round returns the round in progress.
func (g *Game) Round() Round { return g.current }

// ZonesCompleted returns the zones finished in this game.
func (g *Game) ZonesCompleted() int { return g.zonesCompleted }

// Tunables returns the global parameters in effect, remote when loaded.
func (g *Game) Tunables() model.Tunables {
	if g.session != nil {
		return g.session.Tunables()
	}
	return g.tunables
}

// SetWeakSigns biases sign selection toward the given lowercase names.
func (g *Game) SetWeakSigns(weak map[string]struct{}) { g.weak = weak }

func (g *Game) setState(s State) {
	if g.state == s {
		return
	}
	g.log.Debug("state changed", "from", g.state.String(), "to", s.String(), "zone", g.zone, "round", g.round)
	g.state = s
	g.changed.Emit(s)
}

// Start resets per-game state, starts a metrics session without waiting
// for it and enters the first zone.
func (g *Game) Start(ctx context.Context) error {
	if g.state != MainMenu && g.state != GameComplete {
		return fmt.Errorf("start: %w (state %s)", ErrWrongState, g.state)
	}
	g.perf.ResetGame()
	g.mistakes.ResetSession()
	g.policy.SetTier(g.initial)
	g.zonesCompleted = 0
	g.startedAt = g.now()
	g.endedAt = time.Time{}
	g.completed = false
	g.remoteSession = metrics.NoSessionID
	g.signs = make(map[string]*model.SignStats)
	g.signOrder = nil
	if g.session != nil {
		if err := g.session.StartSession(ctx, g.initial); err != nil {
			g.log.Warn("metrics session not started", "error", err)
		}
	}
	g.enterZone(0)
	return nil
}

func (g *Game) enterZone(i int) {
	g.zone = i
	g.round = 0
	g.current = Round{}
	g.perf.SetZone(i)
	g.policy.ClampToZone(g.Zone().Bounds)
	g.log.Info("zone entered", "zone", i, "name", g.Zone().Name, "tier", g.policy.Tier().String())
	g.setState(ZoneIntro)
}

// BeginRound starts the next round, or completes the zone when its
// criteria are met.
func (g *Game) BeginRound() error {
	if g.state != ZoneIntro && g.state != RoundEnd {
		return fmt.Errorf("begin round: %w (state %s)", ErrWrongState, g.state)
	}
	if g.zoneDone() {
		g.completeZone()
		return nil
	}
	cfg := g.policy.CurrentConfig()
	tier := g.policy.Tier()
	pool := g.Zone().Signs
	var signs []model.Sign
	if len(g.weak) > 0 {
		signs = g.gen.PrepareRoundWeighted(pool, cfg.SignCount, cfg.AllowRepetition, g.weak, g.weakFactor)
	} else {
		signs = g.gen.PrepareRound(pool, cfg.SignCount, cfg.AllowRepetition)
	}
	n := generator.ChoiceCount(tier)
	challenges := make([]Challenge, 0, len(signs))
	for _, s := range signs {
		challenges = append(challenges, Challenge{Sign: s, Choices: g.gen.Choices(s, pool, n, cfg.IncludeDistractors)})
	}
	g.current = Round{Number: g.round, Tier: tier, Config: cfg, Challenges: challenges}
	g.log.Info("round started", "zone", g.zone, "round", g.round+1, "tier", tier.String(),
		"signs", len(challenges), "time_limit", cfg.TimeLimit)
	g.setState(RoundActive)
	return nil
}

func (g *Game) zoneDone() bool {
	t := g.Tunables()
	if g.round < t.MinRoundsToComplete {
		return false
	}
	if g.perf.RecentMetrics().AccuracyRate >= t.PassThreshold {
		g.log.Info("zone passed", "zone", g.zone, "rounds", g.round)
		return true
	}
	if g.round >= t.RoundsPerZone {
		g.log.Info("zone finished by round limit", "zone", g.zone, "rounds", g.round)
		return true
	}
	return false
}

func (g *Game) completeZone() {
	g.zonesCompleted++
	g.setState(ZoneComplete)
	if g.zone+1 < g.catalog.Len() {
		return
	}
	g.finalize(g.zone+1, g.zone, true)
	g.setState(GameComplete)
}

// Answer resolves the current challenge with the chosen name.
func (g *Game) Answer(ctx context.Context, choice string, responseTime float64) (Outcome, error) {
	if g.state != RoundActive {
		return Outcome{}, fmt.Errorf("answer: %w (state %s)", ErrWrongState, g.state)
	}
	ch, _ := g.current.Challenge()
	answer := choice
	return g.resolve(ctx, ch, &answer, strings.EqualFold(choice, ch.Sign.Name), responseTime), nil
}

// Timeout resolves the current challenge as a timeout. The response time
// is the round time limit.
func (g *Game) Timeout(ctx context.Context) (Outcome, error) {
	if g.state != RoundActive {
		return Outcome{}, fmt.Errorf("timeout: %w (state %s)", ErrWrongState, g.state)
	}
	ch, _ := g.current.Challenge()
	return g.resolve(ctx, ch, nil, false, g.current.Config.TimeLimit), nil
}

func (g *Game) resolve(ctx context.Context, ch Challenge, answer *string, correct bool, rt float64) Outcome {
	sign := ch.Sign.Name
	tier := g.policy.Tier()
	out := Outcome{Sign: sign, Answer: answer, Correct: correct, ResponseTime: rt}

	if correct {
		g.current.Correct++
		g.mistakes.MarkCorrected(sign)
	} else {
		g.current.Incorrect++
		out.Mistake = g.mistakes.RecordError(ctx, mistakes.ErrorInput{
			Sign:         sign,
			Answer:       answer,
			ResponseTime: rt,
			Tier:         tier,
			Zone:         g.zone,
		})
	}
	g.perf.RecordAttempt(sign, correct, rt, tier)
	if g.session != nil {
		g.session.RecordAttempt(metrics.AttemptWrite{
			Sign:         sign,
			Answer:       answer,
			Correct:      correct,
			ResponseTime: rt,
			Zone:         g.zone,
			Round:        g.round,
			Tier:         tier,
		})
	}
	g.countSign(sign, correct, answer == nil, rt)

	g.current.Current++
	out.RoundDone = g.current.Done()
	g.answered.Emit(out)
	if out.RoundDone {
		g.log.Info("round finished", "zone", g.zone, "round", g.round+1,
			"correct", g.current.Correct, "total", len(g.current.Challenges))
		g.setState(RoundEvaluating)
	}
	return out
}

func (g *Game) countSign(sign string, correct, timedOut bool, rt float64) {
	s, ok := g.signs[sign]
	if !ok {
		s = &model.SignStats{Sign: sign}
		g.signs[sign] = s
		g.signOrder = append(g.signOrder, sign)
	}
	if correct {
		s.Correct++
	} else {
		s.Incorrect++
	}
	if timedOut {
		s.Timeouts++
	}
	if rt > 0 {
		s.ResponseSum += rt
		s.ResponseSeen++
	}
}

// Advance closes the evaluated round and asks the policy for the next
// tier. The next round starts only once the evaluation has resolved, so
// it always uses the resulting config.
func (g *Game) Advance(ctx context.Context) error {
	if g.state != RoundEvaluating {
		return fmt.Errorf("advance: %w (state %s)", ErrWrongState, g.state)
	}
	g.setState(RoundEnd)
	g.round++
	recent := g.perf.RecentMetrics()
	g.policy.EvaluateAndAdjust(ctx, recent, g.round, func() {
		if g.state != RoundEnd {
			return
		}
		if err := g.BeginRound(); err != nil {
			g.log.Warn("next round not started", "error", err)
		}
	})
	return nil
}

// NextZone moves from a completed zone to the next one.
func (g *Game) NextZone() error {
	if g.state != ZoneComplete {
		return fmt.Errorf("next zone: %w (state %s)", ErrWrongState, g.state)
	}
	g.perf.ResetZoneMetrics()
	g.enterZone(g.zone + 1)
	return nil
}

// Quit abandons the game and returns to MainMenu. An active metrics
// session is finalized as not completed.
func (g *Game) Quit() {
	if g.state == MainMenu {
		return
	}
	if g.state != GameComplete {
		g.finalize(g.zonesCompleted, g.zone, false)
	}
	g.mistakes.ResetSession()
	g.current = Round{}
	g.round = 0
	g.setState(MainMenu)
}

func (g *Game) finalize(zonesCompleted, maxZone int, completed bool) {
	g.endedAt = g.now()
	g.completed = completed
	if g.session == nil {
		return
	}
	if g.session.State() == metrics.Active {
		g.remoteSession = g.session.SessionID()
	}
	if err := g.session.FinalizeSession(g.perf.GameMetrics(), zonesCompleted, maxZone, completed); err != nil {
		g.log.Warn("failed to finalize metrics session", "state", g.session.State().String(), "error", err)
	}
}

// Summary returns the game record and per-sign stats for the journal.
func (g *Game) Summary() (model.GameStats, []model.SignStats) {
	ended := g.endedAt
	if ended.IsZero() {
		ended = g.now()
	}
	gm := g.perf.GameMetrics()
	stats := model.GameStats{
		StartedAt:      g.startedAt,
		EndedAt:        ended,
		Student:        g.student,
		RemoteSession:  g.remoteSession,
		Correct:        gm.Correct,
		Incorrect:      gm.Incorrect,
		MeanResponse:   gm.MeanResponseTime,
		ZonesCompleted: g.zonesCompleted,
		MaxZone:        g.zone,
		FinalTier:      g.policy.Tier(),
		Completed:      g.completed,
	}
	signs := make([]model.SignStats, 0, len(g.signOrder))
	for _, name := range g.signOrder {
		signs = append(signs, *g.signs[name])
	}
	return stats, signs
}
