package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/verte-zerg/learnsignals/internal/model"
)

// Environment overrides.
const (
	EnvServerURL = "LEARNSIGNALS_SERVER_URL"
	EnvStudentID = "LEARNSIGNALS_STUDENT_ID"
	EnvLogMode   = "LEARNSIGNALS_LOG_MODE"
)

// Defaults.
const (
	DefaultServerURL    = "http://127.0.0.1:8000"
	DefaultStudent      = 1
	DefaultRecentWindow = 5
	DefaultWeakTop      = 4
	DefaultWeakFactor   = 2.0
	DefaultWeakWindow   = 10
	DefaultLogMode      = "dev"
)

// Timeouts are the per-call network timeouts.
type Timeouts struct {
	Probe    time.Duration `validate:"gt=0"`
	Predict  time.Duration `validate:"gt=0"`
	Feedback time.Duration `validate:"gt=0"`
	Write    time.Duration `validate:"gt=0"`
	Session  time.Duration `validate:"gt=0"`
}

// Settings is the resolved configuration.
type Settings struct {
	Student      int        `validate:"gt=0"`
	InitialTier  model.Tier `validate:"gte=0,lte=2"`
	RecentWindow int        `validate:"gt=0"`
	Catalog      string
	Zones        int     `validate:"gte=0"`
	FocusWeak    bool
	WeakTop      int     `validate:"gte=0"`
	WeakFactor   float64 `validate:"gte=0"`
	WeakWindow   int     `validate:"gte=0"`

	// InitialTierSet is true when the config file chose InitialTier.
	InitialTierSet bool

	ServerURL    string `validate:"required,url"`
	PredictorURL string `validate:"omitempty,url"`
	Offline      bool

	Timeouts Timeouts
	Tiers    model.TierConfigs

	LogMode string `validate:"oneof=dev prod"`
	LogFile string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Student:      DefaultStudent,
		InitialTier:  model.TierLow,
		RecentWindow: DefaultRecentWindow,
		WeakTop:      DefaultWeakTop,
		WeakFactor:   DefaultWeakFactor,
		WeakWindow:   DefaultWeakWindow,
		ServerURL:    DefaultServerURL,
		Timeouts: Timeouts{
			Probe:    5 * time.Second,
			Predict:  10 * time.Second,
			Feedback: 30 * time.Second,
			Write:    5 * time.Second,
			Session:  10 * time.Second,
		},
		Tiers:   model.DefaultTierConfigs(),
		LogMode: DefaultLogMode,
	}
}

// PredictorBaseURL returns the predictor URL, the server URL when unset.
func (s Settings) PredictorBaseURL() string {
	if s.PredictorURL != "" {
		return s.PredictorURL
	}
	return s.ServerURL
}

// Validate checks field constraints and the tier configs.
func (s Settings) Validate() error {
	if err := model.ValidateStruct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := s.Tiers.Validate(); err != nil {
		return fmt.Errorf("invalid difficulty settings: %w", err)
	}
	return nil
}

// ApplyFile overlays values present in the config file.
func (s *Settings) ApplyFile(fc FileConfig) error {
	g := fc.Game
	setInt(&s.Student, g.Student)
	if g.InitialTier != nil {
		t, err := model.ParseTier(*g.InitialTier)
		if err != nil {
			return fmt.Errorf("game.initial-tier: %w", err)
		}
		s.InitialTier = t
		s.InitialTierSet = true
	}
	setInt(&s.RecentWindow, g.RecentWindow)
	setString(&s.Catalog, g.Catalog)
	setInt(&s.Zones, g.Zones)
	setBool(&s.FocusWeak, g.FocusWeak)
	setInt(&s.WeakTop, g.WeakTop)
	setFloat(&s.WeakFactor, g.WeakFactor)
	setInt(&s.WeakWindow, g.WeakWindow)

	setString(&s.ServerURL, fc.Server.URL)
	setString(&s.PredictorURL, fc.Server.PredictorURL)
	setBool(&s.Offline, fc.Server.Offline)

	setSeconds(&s.Timeouts.Probe, fc.Timeouts.Probe)
	setSeconds(&s.Timeouts.Predict, fc.Timeouts.Predict)
	setSeconds(&s.Timeouts.Feedback, fc.Timeouts.Feedback)
	setSeconds(&s.Timeouts.Write, fc.Timeouts.Write)
	setSeconds(&s.Timeouts.Session, fc.Timeouts.Session)

	applyTier(&s.Tiers[model.TierLow], fc.Difficulty.Low)
	applyTier(&s.Tiers[model.TierMedium], fc.Difficulty.Medium)
	applyTier(&s.Tiers[model.TierHigh], fc.Difficulty.High)

	setString(&s.LogMode, fc.Log.Mode)
	setString(&s.LogFile, fc.Log.File)
	return nil
}

func applyTier(c *model.TierConfig, f TierFileConfig) {
	setInt(&c.SignCount, f.Signs)
	setFloat(&c.TimeLimit, f.Time)
	setBool(&c.ShowVisualAid, f.VisualAid)
	setBool(&c.IncludeDistractors, f.Distractors)
	setBool(&c.AllowRepetition, f.Repetition)
}

// LoadEnv reads .env files into the process environment. Missing files are
// skipped and existing variables are not overwritten.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to stat env file: %w", err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides read through lookup.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvServerURL); ok && strings.TrimSpace(v) != "" {
		s.ServerURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvStudentID); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStudentID, err)
		}
		s.Student = id
	}
	if v, ok := lookup(EnvLogMode); ok && strings.TrimSpace(v) != "" {
		s.LogMode = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Load resolves defaults, the config file and the environment, in that
// order. Flags are applied by the caller afterwards.
func Load(path string) (Settings, error) {
	s := Defaults()
	fc, err := LoadConfig(path)
	if err != nil {
		return Settings{}, err
	}
	if err := s.ApplyFile(fc); err != nil {
		return Settings{}, err
	}
	if err := LoadEnv(".env", DefaultEnvPath()); err != nil {
		return Settings{}, err
	}
	if err := s.ApplyEnv(nil); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Template returns the commented config written by `learnsignals config`.
func Template() string {
	d := Defaults()
	low, med, high := d.Tiers[model.TierLow], d.Tiers[model.TierMedium], d.Tiers[model.TierHigh]
	return fmt.Sprintf(`# learnsignals configuration
# Uncomment a value to enable it. Environment variables and CLI flags
# override config values.

[game]
# student = %d             # Student id sent with each session
# initial-tier = "low"     # low, medium or high
# recent-window = %d       # Attempts in the rolling window
# catalog = ""             # YAML sign catalog (empty = built in)
# zones = 0                # Play only the first N zones (0 = all)
# focus-weak = false       # Bias rounds toward weak signs
# weak-top = %d            # Number of weak signs to focus on
# weak-factor = %.1f       # Weight factor for weak signs
# weak-window = %d         # Number of recent games to compute weak signs

[server]
# url = %q
# predictor-url = ""       # Defaults to url
# offline = false          # Never contact the backend

[timeouts]
# probe = %.0f
# predict = %.0f
# feedback = %.0f
# write = %.0f
# session = %.0f

[difficulty.low]
# signs = %d
# time = %.0f
# visual-aid = %t

[difficulty.medium]
# signs = %d
# time = %.0f
# distractors = %t

[difficulty.high]
# signs = %d
# time = %.0f
# distractors = %t
# repetition = %t

[log]
# mode = %q                # dev or prod
# file = ""                # Defaults to the XDG state dir while playing
`,
		d.Student, d.RecentWindow, d.WeakTop, d.WeakFactor, d.WeakWindow,
		d.ServerURL,
		d.Timeouts.Probe.Seconds(), d.Timeouts.Predict.Seconds(), d.Timeouts.Feedback.Seconds(),
		d.Timeouts.Write.Seconds(), d.Timeouts.Session.Seconds(),
		low.SignCount, low.TimeLimit, low.ShowVisualAid,
		med.SignCount, med.TimeLimit, med.IncludeDistractors,
		high.SignCount, high.TimeLimit, high.IncludeDistractors, high.AllowRepetition,
		d.LogMode,
	)
}

func setString(target, value *string) {
	if value != nil {
		*target = *value
	}
}

func setInt(target, value *int) {
	if value != nil {
		*target = *value
	}
}

func setFloat(target, value *float64) {
	if value != nil {
		*target = *value
	}
}

func setBool(target, value *bool) {
	if value != nil {
		*target = *value
	}
}

func setSeconds(target *time.Duration, value *float64) {
	if value != nil {
		*target = time.Duration(*value * float64(time.Second))
	}
}
