package ledger

import (
	"path/filepath"
	"strings"
	"time"
)

// filename builds the task file's basename per spec.md §4.5:
// "YYYY-MM-DD {ABBR} - {source_basename_without_extension}.md". Collisions
// are resolved by overwrite — a deliberate, documented limitation, not a
// bug (SPEC_FULL.md §4.5).
func filename(created time.Time, abbr, sourcePath string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return created.Format("2006-01-02") + " " + abbr + " - " + base + ".md"
}
