// Package difficulty holds the current tier, the per-tier round
// configuration and the rules for changing tier.
package difficulty

import (
	"context"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/dispatch"
	"github.com/verte-zerg/learnsignals/internal/event"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/metrics"
	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/predict"
)

// Predictor recommends a tier from recent performance.
type Predictor interface {
	Connected() bool
	PredictDifficulty(ctx context.Context, req predict.PredictRequest) (predict.Prediction, error)
}

// AdjustmentRecorder persists tier changes.
type AdjustmentRecorder interface {
	RecordAdjustment(metrics.AdjustmentWrite)
}

// Options configure a Policy. Zero Configs means the defaults.
type Options struct {
	Initial   model.Tier
	Configs   model.TierConfigs
	Predictor Predictor
	Recorder  AdjustmentRecorder
	Poster    dispatch.Poster
	Logger    *logging.Logger
}

// Policy is owned by the logical thread.
type Policy struct {
	tier    model.Tier
	configs model.TierConfigs
	bounds  model.ZoneBounds

	predictor Predictor
	useModel  bool
	recorder  AdjustmentRecorder
	poster    dispatch.Poster
	log       *logging.Logger

	lastMessage string
	changed     event.Feed[model.Tier]
}

// New returns a Policy at opts.Initial.
func New(opts Options) *Policy {
	cfgs := opts.Configs
	if cfgs == (model.TierConfigs{}) {
		cfgs = model.DefaultTierConfigs()
	}
	poster := opts.Poster
	if poster == nil {
		poster = dispatch.Immediate{}
	}
	tier := opts.Initial
	if !tier.Valid() {
		tier = model.TierLow
	}
	return &Policy{
		tier:      tier,
		configs:   cfgs,
		bounds:    model.ZoneBounds{Min: model.TierLow, Max: model.TierHigh},
		predictor: opts.Predictor,
		useModel:  true,
		recorder:  opts.Recorder,
		poster:    poster,
		log:       opts.Logger.Named("difficulty"),
	}
}

// TierChanged fires with the new tier whenever it changes.
func (p *Policy) TierChanged() *event.Feed[model.Tier] { return &p.changed }

// Tier returns the current tier.
func (p *Policy) Tier() model.Tier { return p.tier }

// Bounds returns the bounds of the active zone.
func (p *Policy) Bounds() model.ZoneBounds { return p.bounds }

// CurrentConfig returns the config of the current tier.
func (p *Policy) CurrentConfig() model.TierConfig { return p.configs.For(p.tier) }

// ConfigFor returns the config of t.
func (p *Policy) ConfigFor(t model.Tier) model.TierConfig { return p.configs.For(t) }

// Configs returns every tier config.
func (p *Policy) Configs() model.TierConfigs { return p.configs }

// ApplyConfigs overwrites the tier configs after validating them.
func (p *Policy) ApplyConfigs(c model.TierConfigs) error {
	if err := c.Validate(); err != nil {
		return err
	}
	p.configs = c
	return nil
}

// SetRecorder sets where tier changes are persisted.
func (p *Policy) SetRecorder(r AdjustmentRecorder) { p.recorder = r }

// LastModelMessage returns the description of the last prediction.
func (p *Policy) LastModelMessage() string { return p.lastMessage }

// SetTier changes the tier. It is a no-op when t is already current.
func (p *Policy) SetTier(t model.Tier) {
	if t == p.tier || !t.Valid() {
		return
	}
	old := p.tier
	p.tier = t
	p.log.Info("tier changed", "old", old.String(), "new", t.String())
	p.changed.Emit(t)
}

// ClampToZone records the zone bounds and forces the tier into them with a
// single step.
func (p *Policy) ClampToZone(b model.ZoneBounds) {
	if !b.Valid() {
		p.log.Warn("invalid zone bounds ignored", "min", b.Min.String(), "max", b.Max.String())
		return
	}
	p.bounds = b
	p.SetTier(b.Clamp(p.tier))
}

// SetUseModel turns predictor-driven adjustment on or off. While off the
// tier only moves through zone clamping.
func (p *Policy) SetUseModel(on bool) {
	if on == p.useModel {
		return
	}
	p.useModel = on
	p.log.Info("model adjustment toggled", "enabled", on)
}

// UseModel reports whether predictor-driven adjustment is enabled.
func (p *Policy) UseModel() bool { return p.useModel }

// EvaluateAndAdjust asks the predictor for a tier based on recent and
// applies it. onDone runs exactly once on the logical thread after any tier
// change, immediately when the predictor is unavailable. Prediction errors
// leave the tier unchanged.
func (p *Policy) EvaluateAndAdjust(ctx context.Context, recent model.MetricsSnapshot, round int, onDone func()) {
	if onDone == nil {
		onDone = func() {}
	}
	if !p.useModel {
		p.log.Debug("model adjustment disabled, tier kept", "tier", p.tier.String())
		onDone()
		return
	}
	if p.predictor == nil || !p.predictor.Connected() {
		p.log.Debug("predictor unavailable, tier kept", "tier", p.tier.String())
		onDone()
		return
	}
	req := predict.PredictRequest{
		Zone:             recent.Zone,
		SignsShown:       recent.Attempts,
		Correct:          recent.Correct,
		Incorrect:        recent.Incorrect,
		MeanResponseTime: recent.MeanResponseTime,
	}
	go func() {
		pred, err := p.predictor.PredictDifficulty(ctx, req)
		p.poster.Post(func() {
			defer onDone()
			if err != nil {
				p.log.Warn("prediction failed, tier kept", "tier", p.tier.String(), "error", err)
				return
			}
			p.apply(pred, recent, round)
		})
	}()
}

func (p *Policy) apply(pred predict.Prediction, recent model.MetricsSnapshot, round int) {
	p.lastMessage = pred.Description
	old := p.tier
	p.SetTier(pred.Tier)
	if p.tier == old {
		return
	}
	if p.recorder == nil {
		return
	}
	p.recorder.RecordAdjustment(metrics.AdjustmentWrite{
		Old:              old,
		New:              p.tier,
		Reason:           api.AdjustmentReasonModel,
		AccuracyRate:     recent.AccuracyRate,
		MeanResponseTime: recent.MeanResponseTime,
		Zone:             recent.Zone,
		Round:            round,
	})
}
