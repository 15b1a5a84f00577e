package metrics

import (
	"context"
	"fmt"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/model"
)

// ConfigSink receives tier configurations pulled from the backend.
type ConfigSink interface {
	Configs() model.TierConfigs
	ApplyConfigs(model.TierConfigs) error
}

// RemoteConfig is the validated configuration served by the backend.
type RemoteConfig struct {
	Configs     model.TierConfigs
	Tunables    model.Tunables
	InitialTier model.Tier
	UseModel    bool
}

// Tunables returns the global game parameters, remote when loaded.
func (s *Service) Tunables() model.Tunables { return s.tunables }

// LoadRemoteConfiguration pulls tier configs and tunables and overwrites
// the local ones. It requires confirmed connectivity. Any failure leaves
// local values untouched. done runs on the logical thread and may be nil.
func (s *Service) LoadRemoteConfiguration(ctx context.Context, done func(error)) {
	if !s.connected {
		s.log.Debug("remote configuration skipped, backend not connected")
		finish(done, ErrNotConnected)
		return
	}
	var base model.TierConfigs
	if s.sink != nil {
		base = s.sink.Configs()
	} else {
		base = model.DefaultTierConfigs()
	}
	tunables := s.tunables
	go func() {
		var resp api.ConfigurationResponse
		err := s.client.Get(ctx, s.configTimeout, api.PathConfiguration, &resp)
		var rc RemoteConfig
		if err == nil {
			rc, err = buildRemoteConfig(resp, base, tunables)
		}
		s.poster.Post(func() {
			if err == nil {
				err = s.applyRemote(rc)
			}
			if err != nil {
				s.log.Warn("remote configuration not applied", "error", err)
			}
			finish(done, err)
		})
	}()
}

func (s *Service) applyRemote(rc RemoteConfig) error {
	if s.sink != nil {
		if err := s.sink.ApplyConfigs(rc.Configs); err != nil {
			return fmt.Errorf("failed to apply tier configs: %w", err)
		}
	}
	s.tunables = rc.Tunables
	s.log.Info("remote configuration applied",
		"rounds_per_zone", rc.Tunables.RoundsPerZone,
		"pass_threshold", rc.Tunables.PassThreshold,
		"initial_tier", rc.InitialTier.String(),
		"use_model", rc.UseModel)
	s.configLoaded.Emit(rc)
	return nil
}

func buildRemoteConfig(resp api.ConfigurationResponse, base model.TierConfigs, tunables model.Tunables) (RemoteConfig, error) {
	if err := model.ValidateStruct(resp); err != nil {
		return RemoteConfig{}, fmt.Errorf("invalid remote configuration: %w", err)
	}
	cfgs := base
	cfgs[model.TierLow].SignCount = resp.SenalesDificultadBaja
	cfgs[model.TierLow].TimeLimit = resp.TiempoDificultadBaja
	cfgs[model.TierMedium].SignCount = resp.SenalesDificultadMedia
	cfgs[model.TierMedium].TimeLimit = resp.TiempoDificultadMedia
	cfgs[model.TierHigh].SignCount = resp.SenalesDificultadAlta
	cfgs[model.TierHigh].TimeLimit = resp.TiempoDificultadAlta
	if resp.MostrarAyudaVisualBaja != nil {
		cfgs[model.TierLow].ShowVisualAid = *resp.MostrarAyudaVisualBaja
	}
	if resp.IncluirDistractoresMedia != nil {
		cfgs[model.TierMedium].IncludeDistractors = *resp.IncluirDistractoresMedia
	}
	if resp.IncluirDistractoresAlta != nil {
		cfgs[model.TierHigh].IncludeDistractors = *resp.IncluirDistractoresAlta
	}
	if err := cfgs.Validate(); err != nil {
		return RemoteConfig{}, err
	}

	tunables.RoundsPerZone = resp.RondasPorZona
	tunables.PassThreshold = resp.TasaAciertosMinima
	if resp.RondasMinimasParaCompletar != nil {
		tunables.MinRoundsToComplete = *resp.RondasMinimasParaCompletar
	}
	if tunables.MinRoundsToComplete > tunables.RoundsPerZone {
		tunables.MinRoundsToComplete = tunables.RoundsPerZone
	}
	if err := model.ValidateStruct(tunables); err != nil {
		return RemoteConfig{}, fmt.Errorf("invalid remote tunables: %w", err)
	}

	useModel := true
	if resp.UsarModeloML != nil {
		useModel = *resp.UsarModeloML
	}
	return RemoteConfig{
		Configs:     cfgs,
		Tunables:    tunables,
		InitialTier: model.TierFromWire(resp.DificultadInicial),
		UseModel:    useModel,
	}, nil
}
