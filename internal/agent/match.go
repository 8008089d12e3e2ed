package agent

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rduffy/vaultd/internal/event"
)

// eventKindToTrigger maps the FileEvent kind space onto the TriggerEvent
// space used by agents. Deleted events map to a value no agent ever
// declares as its trigger, so they never match (orchestrator §4.4 edge
// case: "File deletion events never match").
func eventKindToTrigger(k event.Kind) TriggerEvent {
	switch k {
	case event.Created:
		return TriggerCreated
	case event.Modified:
		return TriggerModified
	default:
		return TriggerEvent("deleted")
	}
}

// TodayChecker reports whether a task for {abbreviation, sourcePath} with
// terminal-or-in-progress status already exists with today's creation
// date. It decouples the Agent Registry from the Task Ledger so the two
// packages don't form an import cycle; the orchestrator core supplies the
// real implementation backed by ledger.HasTaskToday.
type TodayChecker func(abbreviation, sourcePath string) bool

// Match returns every Definition that admits ev as actionable, in
// registration order. Trigger and exclude globs are vault-relative
// (input_path as written in orchestrator.yaml), while ev.Path is the
// absolute path the Event Source observed; vaultRoot resolves one to the
// other for both glob matching and, when a content regex needs to read
// the file, for the os.ReadFile call.
func (r *Registry) Match(ev event.FileEvent, vaultRoot string, today TodayChecker) []*Definition {
	var matched []*Definition

	trigger := eventKindToTrigger(ev.Kind)
	relPath := relativeToVault(ev.Path, vaultRoot)

	for _, def := range r.ordered {
		if def.IsManual() {
			continue
		}
		if trigger != def.TriggerEvent {
			continue
		}

		globOK, err := doublestar.Match(def.TriggerGlob, relPath)
		if err != nil || !globOK {
			continue
		}

		if matchesAnyExclude(def.ExcludeGlobs, relPath) {
			continue
		}

		if def.ContentRegex != nil {
			if !r.matchesContent(def, ev.Path, vaultRoot, today) {
				continue
			}
		}

		matched = append(matched, def)
	}

	return matched
}

// relativeToVault converts an absolute event path to a vault-relative,
// slash-separated path for glob matching. If p is already relative, or
// vaultRoot is empty, or p falls outside vaultRoot, p is returned
// unchanged (as-is matching, the best effort available).
func relativeToVault(p, vaultRoot string) string {
	if vaultRoot == "" || !filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(vaultRoot, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// matchesAnyExclude admits both doublestar's path-aware matching (so
// "Inbox/drafts/**" excludes a whole subtree) and a basename match (so
// "*-EIC*" excludes "Ingest/Clippings/old-EIC.md" the way the original's
// fnmatch-style "*", which crosses "/", did).
func matchesAnyExclude(globs []string, p string) bool {
	base := path.Base(p)
	for _, g := range globs {
		if ok, err := doublestar.Match(g, p); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(g, base); err == nil && ok {
			return true
		}
	}
	return false
}

func (r *Registry) matchesContent(def *Definition, eventPath, vaultRoot string, today TodayChecker) bool {
	abs := eventPath
	if vaultRoot != "" && !filepath.IsAbs(eventPath) {
		abs = filepath.Join(vaultRoot, eventPath)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", eventPath).Msg("cannot read file for content match")
		return false
	}

	if !def.ContentRegex.Match(content) {
		return false
	}

	if today != nil && today(def.Abbreviation, eventPath) {
		// A task already exists today for this {agent, path} pair; suppress
		// re-triggering on trivial re-saves (orchestrator §4.4.5.c).
		return false
	}

	return true
}
