package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"routinepet/internal/domain"
)

// Config models routinepet.yml: the demo actor plus the stage and mission catalog.
type Config struct {
	Actor struct {
		ID string `yaml:"id"`
	} `yaml:"actor"`
	Stages   []StageConfig   `yaml:"stages"`
	Missions []MissionConfig `yaml:"missions"`
}

type StageConfig struct {
	ID           int64  `yaml:"id"`
	Name         string `yaml:"name"`
	MinTotalExp  int    `yaml:"min_total_exp"`
	AnimationKey string `yaml:"animation_key"`
	ImageURL     string `yaml:"image_url"`
}

type MissionConfig struct {
	ID             string `yaml:"id"`
	Title          string `yaml:"title"`
	Description    string `yaml:"description"`
	Type           string `yaml:"type"`
	RewardExp      int    `yaml:"reward_exp"`
	Period         string `yaml:"period"`
	ActiveFrom     string `yaml:"active_from"`
	ActiveTo       string `yaml:"active_to"`
	Active         *bool  `yaml:"active"`
	MaxCompletions int    `yaml:"max_completions"`
}

var missionTypes = map[string]bool{"check_in": true, "core": true, "event": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with rpet seed --init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return cfg, err
}

// Validate ensures the catalog is usable: a non-empty stage ladder starting
// at 0 with unique ids and thresholds, and well-formed missions.
func (c *Config) Validate() error {
	if c.Actor.ID == "" {
		return fmt.Errorf("config.actor.id is required")
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("config.stages must list at least one stage")
	}
	ids := map[int64]bool{}
	mins := map[int]string{}
	lowest := c.Stages[0].MinTotalExp
	for _, s := range c.Stages {
		if s.ID <= 0 {
			return fmt.Errorf("stage %q needs a positive id", s.Name)
		}
		if s.Name == "" {
			return fmt.Errorf("stage %d has empty name", s.ID)
		}
		if s.MinTotalExp < 0 {
			return fmt.Errorf("stage %s has negative min_total_exp", s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("stage id %d is duplicated", s.ID)
		}
		if other, ok := mins[s.MinTotalExp]; ok {
			return fmt.Errorf("stages %s and %s share min_total_exp %d", other, s.Name, s.MinTotalExp)
		}
		ids[s.ID] = true
		mins[s.MinTotalExp] = s.Name
		if s.MinTotalExp < lowest {
			lowest = s.MinTotalExp
		}
	}
	if lowest != 0 {
		return fmt.Errorf("the baseline stage must start at min_total_exp 0, got %d", lowest)
	}
	seen := map[string]bool{}
	for _, m := range c.Missions {
		if m.ID == "" {
			return fmt.Errorf("mission %q has empty id", m.Title)
		}
		if seen[m.ID] {
			return fmt.Errorf("mission id %s is duplicated", m.ID)
		}
		seen[m.ID] = true
		if m.Title == "" {
			return fmt.Errorf("mission %s has empty title", m.ID)
		}
		if m.Type != "" && !missionTypes[m.Type] {
			return fmt.Errorf("mission %s has unknown type %s", m.ID, m.Type)
		}
		if !domain.Period(m.Period).Valid() {
			return fmt.Errorf("mission %s period must be daily, once or event", m.ID)
		}
		if m.RewardExp < 0 {
			return fmt.Errorf("mission %s reward_exp must not be negative", m.ID)
		}
		if m.MaxCompletions < 0 {
			return fmt.Errorf("mission %s max_completions must be at least 1", m.ID)
		}
		from, err := time.Parse(domain.DateLayout, m.ActiveFrom)
		if err != nil {
			return fmt.Errorf("mission %s active_from: %w", m.ID, err)
		}
		to, err := time.Parse(domain.DateLayout, m.ActiveTo)
		if err != nil {
			return fmt.Errorf("mission %s active_to: %w", m.ID, err)
		}
		if to.Before(from) {
			return fmt.Errorf("mission %s window ends before it starts", m.ID)
		}
	}
	return nil
}

// DomainStages converts the stage catalog.
func (c *Config) DomainStages() []domain.Stage {
	out := make([]domain.Stage, 0, len(c.Stages))
	for _, s := range c.Stages {
		out = append(out, domain.Stage{
			ID:           s.ID,
			Name:         s.Name,
			MinTotalExp:  s.MinTotalExp,
			AnimationKey: s.AnimationKey,
			ImageURL:     s.ImageURL,
		})
	}
	return out
}

// DomainMissions converts the mission catalog, filling defaults.
func (c *Config) DomainMissions() []domain.Mission {
	out := make([]domain.Mission, 0, len(c.Missions))
	for _, m := range c.Missions {
		mission := domain.Mission{
			ID:             m.ID,
			Title:          m.Title,
			Description:    m.Description,
			Type:           m.Type,
			RewardExp:      m.RewardExp,
			Period:         domain.Period(m.Period),
			ActiveFrom:     m.ActiveFrom,
			ActiveTo:       m.ActiveTo,
			IsActive:       m.Active == nil || *m.Active,
			MaxCompletions: m.MaxCompletions,
		}
		if mission.Type == "" {
			mission.Type = "core"
		}
		if mission.MaxCompletions == 0 {
			mission.MaxCompletions = 1
		}
		out = append(out, mission)
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "routinepet.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(actorID string) string {
	return fmt.Sprintf(defaultTemplate, actorID)
}

// Default returns the default Config struct for an actor.
func Default(actorID string) *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(GenerateDefault(actorID)), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `actor:
  id: %s

stages:
  - id: 1
    name: Egg
    min_total_exp: 0
    animation_key: egg-idle
  - id: 2
    name: Chick
    min_total_exp: 50
    animation_key: chick-hop
  - id: 3
    name: Hen
    min_total_exp: 150
    animation_key: hen-strut

missions:
  - id: morning-check-in
    title: Morning check-in
    type: check_in
    reward_exp: 5
    period: daily
    active_from: "2024-01-01"
    active_to: "2099-12-31"

  - id: drink-water
    title: Drink eight glasses of water
    type: core
    reward_exp: 10
    period: daily
    active_from: "2024-01-01"
    active_to: "2099-12-31"

  - id: evening-walk
    title: Walk for thirty minutes
    type: core
    reward_exp: 20
    period: daily
    active_from: "2024-01-01"
    active_to: "2099-12-31"

  - id: first-routine
    title: Finish your first routine
    description: One-time welcome bonus
    type: core
    reward_exp: 30
    period: once
    active_from: "2024-01-01"
    active_to: "2099-12-31"
    max_completions: 1

  - id: spring-festival
    title: Spring festival stretch
    type: event
    reward_exp: 15
    period: event
    active_from: "2024-03-01"
    active_to: "2099-05-31"
    max_completions: 3
`
