// Package agent holds the agent catalog: AgentDefinition records loaded
// from orchestrator.yaml nodes and matched against prompt files, plus the
// trigger-matching algorithm that turns a FileEvent into the ordered set
// of agents it should dispatch to.
package agent

import "regexp"

// TriggerEvent is the file-system operation kind an agent listens for.
type TriggerEvent string

const (
	TriggerCreated   TriggerEvent = "created"
	TriggerModified  TriggerEvent = "modified"
	TriggerScheduled TriggerEvent = "scheduled"
	TriggerManual    TriggerEvent = "manual"
)

// PostProcess identifies what, if anything, the Executor Runner does to
// the source file after a PROCESSED execution.
type PostProcess string

const (
	PostProcessNone                 PostProcess = "none"
	PostProcessRemoveTriggerContent PostProcess = "remove_trigger_content"
)

// Definition is an immutable-after-load record binding a file-system
// trigger to an external CLI tool and a prompt. Every field is set exactly
// once during Load.
type Definition struct {
	Abbreviation string
	DisplayName  string
	Category     string
	PromptBody   string

	InputPaths   []string
	OutputPath   string
	TriggerGlob  string // empty means manual-only
	TriggerEvent TriggerEvent

	ExcludeGlobs []string

	ContentRegex       *regexp.Regexp
	ContentRegexSource string

	Executor       string
	ExecutorParams map[string]any

	MaxParallel    int
	TimeoutSeconds int
	TaskPriority   string

	PostProcess         PostProcess
	LogFilenameTemplate string

	// Reserved, forward-compatible fields. Parsed and carried, never acted
	// on (orchestrator spec.md §9 Open Question 4; SPEC_FULL.md §3).
	CronSchedule string
	Skills       []string
	MCPServers   []string
}

// IsManual reports whether this agent has no file-system trigger at all.
func (d *Definition) IsManual() bool {
	return d.TriggerGlob == "" || d.TriggerEvent == TriggerManual
}
