package agent

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/rduffy/vaultd/internal/config"
	"github.com/rduffy/vaultd/internal/frontmatter"
	"github.com/rs/zerolog"
)

// abbreviationPattern matches the final parenthesized all-caps token of a
// node name, e.g. "Enrich Ingested Content (EIC)" -> "EIC".
var abbreviationPattern = regexp.MustCompile(`\(([A-Z0-9]{2,5})\)\s*$`)

// Registry holds every successfully loaded Definition, keyed by
// abbreviation and ordered by registration (config file) order.
type Registry struct {
	ordered []*Definition
	byAbbr  map[string]*Definition
	logger  zerolog.Logger
}

// Load builds a Registry from cfg's node list, resolving each candidate
// node's prompt file, defaults cascade, and derived trigger fields. A node
// that fails to load (missing abbreviation, missing prompt file, bad
// regex, duplicate abbreviation) is skipped with a warning; Load itself
// never fails (orchestrator spec.md §4.3/§4.4 "skip, not fatal").
func Load(cfg *config.Config, logger zerolog.Logger) *Registry {
	reg := &Registry{byAbbr: make(map[string]*Definition)}
	reg.logger = logger

	for _, node := range cfg.Nodes {
		if node.Type != "agent" {
			if node.Type != "" {
				logger.Warn().Str("node_type", node.Type).Msg("skipping unknown node type")
			}
			continue
		}

		def, err := loadOne(cfg, node)
		if err != nil {
			logger.Warn().Err(err).Str("node", node.Name).Msg("skipping agent node")
			continue
		}

		if _, dup := reg.byAbbr[def.Abbreviation]; dup {
			logger.Warn().Str("abbreviation", def.Abbreviation).Msg("duplicate agent abbreviation, skipping")
			continue
		}

		reg.byAbbr[def.Abbreviation] = def
		reg.ordered = append(reg.ordered, def)
	}

	return reg
}

func loadOne(cfg *config.Config, node config.Node) (*Definition, error) {
	abbr := extractAbbreviation(node.Name)
	if abbr == "" {
		return nil, fmt.Errorf("node name %q has no (ABBR) suffix", node.Name)
	}

	promptPath, err := findPromptFile(cfg.Orchestrator.PromptsDir, abbr)
	if err != nil {
		return nil, err
	}

	block, err := frontmatter.Read(promptPath)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", promptPath, err)
	}

	displayName := frontmatter.StringValue(block.Data, "title")
	if displayName == "" {
		displayName = node.Name
	}
	category := frontmatter.StringValue(block.Data, "category")

	executor := firstNonEmpty(node.Executor, cfg.Defaults.Executor, config.DefaultExecutor)
	timeoutMinutes := firstNonZeroFloat(floatOrZero(node.TimeoutMinutes), cfg.Defaults.TimeoutMinutes, config.DefaultTimeoutMinutes)
	maxParallel := firstNonZeroInt(intOrZero(node.MaxParallel), cfg.Defaults.MaxParallel, config.DefaultMaxParallel)
	taskPriority := firstNonEmpty(node.TaskPriority, cfg.Defaults.TaskPriority, config.DefaultTaskPriority)

	logFilenameTemplate := node.LogFilenameTemplate
	if logFilenameTemplate == "" {
		logFilenameTemplate = config.DefaultLogFilename
	}

	postProcess := PostProcess(node.PostProcess)
	if postProcess == "" {
		postProcess = PostProcessNone
	}

	inputPaths := []string(node.InputPath)
	triggerEvent := mapInputType(node.InputType)
	triggerGlob := ""

	switch {
	case len(inputPaths) == 0:
		triggerEvent = TriggerManual
	case node.InputPattern != "":
		triggerGlob = node.InputPattern
	default:
		triggerGlob = path.Join(inputPaths[0], "*.md")
	}

	var contentRegex *regexp.Regexp
	if node.ContentPattern != "" {
		re, err := regexp.Compile("(?im)" + node.ContentPattern)
		if err != nil {
			return nil, fmt.Errorf("compile content_pattern %q: %w", node.ContentPattern, err)
		}
		contentRegex = re
	}

	return &Definition{
		Abbreviation:        abbr,
		DisplayName:         displayName,
		Category:            category,
		PromptBody:          block.Body,
		InputPaths:          inputPaths,
		OutputPath:          node.OutputPath,
		TriggerGlob:         triggerGlob,
		TriggerEvent:        triggerEvent,
		ExcludeGlobs:        splitExcludePattern(node.ExcludePattern),
		ContentRegex:        contentRegex,
		ContentRegexSource:  node.ContentPattern,
		Executor:            executor,
		ExecutorParams:      node.ExecutorParams,
		MaxParallel:         maxParallel,
		TimeoutSeconds:      int(timeoutMinutes * 60),
		TaskPriority:        taskPriority,
		PostProcess:         postProcess,
		LogFilenameTemplate: logFilenameTemplate,
		CronSchedule:        node.Cron,
		Skills:              node.Skills,
		MCPServers:          node.MCPServers,
	}, nil
}

func mapInputType(inputType string) TriggerEvent {
	switch inputType {
	case "new_file":
		return TriggerCreated
	case "updated_file":
		return TriggerModified
	case "daily_file":
		return TriggerScheduled
	default:
		return TriggerManual
	}
}

func extractAbbreviation(name string) string {
	m := abbreviationPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// findPromptFile finds a file in promptsDir whose name contains
// "({ABBR})". If more than one matches, the lexicographically first wins.
func findPromptFile(promptsDir, abbr string) (string, error) {
	entries, err := os.ReadDir(promptsDir)
	if err != nil {
		return "", fmt.Errorf("no prompt file for %s: %w", abbr, err)
	}

	needle := "(" + abbr + ")"
	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), needle) {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no prompt file matching %q in %s", needle, promptsDir)
	}
	sort.Strings(candidates)
	return path.Join(promptsDir, candidates[0]), nil
}

func splitExcludePattern(pattern string) []string {
	if pattern == "" {
		return nil
	}
	parts := strings.Split(pattern, "|")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroFloat(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Lookup returns the Definition for abbr, if loaded.
func (r *Registry) Lookup(abbr string) (*Definition, bool) {
	d, ok := r.byAbbr[abbr]
	return d, ok
}

// List returns every loaded Definition in registration order.
func (r *Registry) List() []*Definition {
	return append([]*Definition(nil), r.ordered...)
}

// Len returns the number of loaded agents.
func (r *Registry) Len() int {
	return len(r.ordered)
}
