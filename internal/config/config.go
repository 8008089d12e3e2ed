// Package config reads orchestrator.yaml: the top-level runtime settings,
// the agent field defaults, and the list of candidate agent nodes.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Hard-coded fallbacks used when neither a node nor the defaults section
// supplies a value. This is the lowest rung of the three-level cascade
// described in orchestrator §4.3/§4.4.
const (
	DefaultPromptsDir     = "_Settings_/Prompts"
	DefaultTasksDir       = "_Settings_/Tasks"
	DefaultLogsDir        = "_Settings_/Logs"
	DefaultMaxConcurrent  = 3
	DefaultPollInterval   = 1.0
	DefaultExecutor       = "claude_code"
	DefaultTimeoutMinutes = 30.0
	DefaultMaxParallel    = 3
	DefaultTaskPriority   = "medium"
	DefaultLogFilename    = "{timestamp}-{agent}.log"
)

// Config is the fully parsed, default-applied contents of orchestrator.yaml.
type Config struct {
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Defaults     Defaults     `yaml:"defaults"`
	Nodes        []Node       `yaml:"nodes"`
}

// Orchestrator holds vault-wide runtime settings.
type Orchestrator struct {
	PromptsDir    string  `yaml:"prompts_dir"`
	TasksDir      string  `yaml:"tasks_dir"`
	LogsDir       string  `yaml:"logs_dir"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	PollInterval  float64 `yaml:"poll_interval"`
	// MetricsAddr is reserved: parsed and stored, never bound to a listener.
	MetricsAddr string `yaml:"metrics_addr"`
	Log         Log    `yaml:"log"`
}

// Log holds a logger level and output format. It is parsed and stored
// only: the CLI configures the logger from its --log-level and --log-json
// flags and does not read this section.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Defaults supplies fallback agent field values, the middle rung of the
// cascade: node value > Defaults value > hard-coded default.
type Defaults struct {
	Executor       string  `yaml:"executor"`
	TimeoutMinutes float64 `yaml:"timeout_minutes"`
	MaxParallel    int     `yaml:"max_parallel"`
	TaskPriority   string  `yaml:"task_priority"`
}

// Node is one entry of the `nodes` list. Only entries with Type == "agent"
// are candidates for loading into the Agent Registry; entries with any
// other type are skipped with a warning there, and entries with no type
// are skipped silently.
type Node struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`

	InputPath    StringList `yaml:"input_path"`
	InputType    string     `yaml:"input_type"`
	InputPattern string     `yaml:"input_pattern"`
	OutputPath   string     `yaml:"output_path"`

	ExcludePattern string `yaml:"exclude_pattern"`
	ContentPattern string `yaml:"content_pattern"`

	Executor       string         `yaml:"executor"`
	ExecutorParams map[string]any `yaml:"executor_params"`

	MaxParallel    *int     `yaml:"max_parallel"`
	TimeoutMinutes *float64 `yaml:"timeout_minutes"`
	TaskPriority   string   `yaml:"task_priority"`

	PostProcess         string `yaml:"post_process"`
	LogFilenameTemplate string `yaml:"log_filename_template"`

	// Accepted for forward compatibility, never evaluated (spec.md §9,
	// Open Question 4; SPEC_FULL.md §3 expansion fields).
	Cron       string   `yaml:"cron"`
	Skills     []string `yaml:"skills"`
	MCPServers []string `yaml:"mcp_servers"`
}

// StringList unmarshals either a bare YAML scalar or a sequence into a
// []string, matching orchestrator §4.4.5's "string becomes a one-element
// list" normalization for input_path.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var str string
		if err := value.Decode(&str); err != nil {
			return err
		}
		if str == "" {
			*s = nil
			return nil
		}
		*s = StringList{str}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	case 0:
		// Null / absent node.
		*s = nil
		return nil
	default:
		return fmt.Errorf("input_path: expected scalar or sequence, got %v", value.Kind)
	}
}

// DefaultConfig returns a Config with every orchestrator/defaults field set
// to its hard-coded fallback and an empty node list.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: Orchestrator{
			PromptsDir:    DefaultPromptsDir,
			TasksDir:      DefaultTasksDir,
			LogsDir:       DefaultLogsDir,
			MaxConcurrent: DefaultMaxConcurrent,
			PollInterval:  DefaultPollInterval,
			Log:           Log{Level: "info"},
		},
		Defaults: Defaults{
			Executor:       DefaultExecutor,
			TimeoutMinutes: DefaultTimeoutMinutes,
			MaxParallel:    DefaultMaxParallel,
			TaskPriority:   DefaultTaskPriority,
		},
	}
}

// Load reads orchestrator.yaml at path. A missing file is not an error: the
// caller gets DefaultConfig() back so the orchestrator can start with an
// empty agent set (orchestrator §4.3 Failure semantics). An unparseable
// file is fatal and returned as an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyHardDefaults(cfg)
	return cfg, nil
}

// applyHardDefaults fills in zero-valued orchestrator/defaults fields after
// unmarshaling, so a config file that only overrides one key still gets the
// hard-coded fallback for the rest (the lowest rung of the cascade).
func applyHardDefaults(cfg *Config) {
	if cfg.Orchestrator.PromptsDir == "" {
		cfg.Orchestrator.PromptsDir = DefaultPromptsDir
	}
	if cfg.Orchestrator.TasksDir == "" {
		cfg.Orchestrator.TasksDir = DefaultTasksDir
	}
	if cfg.Orchestrator.LogsDir == "" {
		cfg.Orchestrator.LogsDir = DefaultLogsDir
	}
	if cfg.Orchestrator.MaxConcurrent == 0 {
		cfg.Orchestrator.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Orchestrator.PollInterval == 0 {
		cfg.Orchestrator.PollInterval = DefaultPollInterval
	}
	if cfg.Orchestrator.Log.Level == "" {
		cfg.Orchestrator.Log.Level = "info"
	}
	if cfg.Defaults.Executor == "" {
		cfg.Defaults.Executor = DefaultExecutor
	}
	if cfg.Defaults.TimeoutMinutes == 0 {
		cfg.Defaults.TimeoutMinutes = DefaultTimeoutMinutes
	}
	if cfg.Defaults.MaxParallel == 0 {
		cfg.Defaults.MaxParallel = DefaultMaxParallel
	}
	if cfg.Defaults.TaskPriority == "" {
		cfg.Defaults.TaskPriority = DefaultTaskPriority
	}
}
