package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rduffy/vaultd/internal/event"
	"github.com/rduffy/vaultd/internal/frontmatter"
)

// marshalTriggerData JSON-encodes ev for storage in the trigger_data_json
// frontmatter field. yaml.v3 string-quotes the result for us on render, so
// no manual escaping is needed here.
func marshalTriggerData(ev event.FileEvent) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeTriggerData parses rec's trigger_data_json back into a FileEvent,
// as required before dispatching a QUEUED task (spec.md §4.8
// process_queued_tasks step 4).
func DecodeTriggerData(rec *Record) (event.FileEvent, error) {
	var ev event.FileEvent
	if rec.TriggerDataJSON == "" {
		return ev, fmt.Errorf("task %s has no trigger_data_json", rec.Path)
	}
	if err := json.Unmarshal([]byte(rec.TriggerDataJSON), &ev); err != nil {
		return ev, fmt.Errorf("decode trigger_data_json: %w", err)
	}
	return ev, nil
}

func toBlock(rec *Record, body string) *frontmatter.Block {
	data := map[string]any{
		"title":     rec.Title,
		"created":   rec.Created.Format(timestampLayout),
		"status":    string(rec.Status),
		"worker":    rec.Worker,
		"priority":  string(rec.Priority),
		"task_type": rec.TaskType,
	}
	if !rec.Completed.IsZero() {
		data["completed"] = rec.Completed.Format(timestampLayout)
	}
	if rec.TriggerDataJSON != "" {
		data["trigger_data_json"] = rec.TriggerDataJSON
	}
	if rec.ExecutionLog != "" {
		data["execution_log"] = rec.ExecutionLog
	}
	return &frontmatter.Block{Data: data, Body: body}
}

func fromBlock(path string, block *frontmatter.Block) *Record {
	rec := &Record{
		Path:            path,
		Title:           frontmatter.StringValue(block.Data, "title"),
		Status:          Status(frontmatter.StringValue(block.Data, "status")),
		Worker:          frontmatter.StringValue(block.Data, "worker"),
		Priority:        Priority(frontmatter.StringValue(block.Data, "priority")),
		TaskType:        frontmatter.StringValue(block.Data, "task_type"),
		TriggerDataJSON: frontmatter.StringValue(block.Data, "trigger_data_json"),
		ExecutionLog:    frontmatter.StringValue(block.Data, "execution_log"),
	}
	if created := frontmatter.StringValue(block.Data, "created"); created != "" {
		if t, err := time.Parse(timestampLayout, created); err == nil {
			rec.Created = t
		}
	}
	if completed := frontmatter.StringValue(block.Data, "completed"); completed != "" {
		if t, err := time.Parse(timestampLayout, completed); err == nil {
			rec.Completed = t
		}
	}

	_, sections := parseSections(block.Body)
	if link := sections["Input"]; link != "" {
		rec.SourcePath = extractWikiLinkTarget(link)
	}
	rec.PromptBody = sections["Instructions"]

	return rec
}

// extractWikiLinkTarget pulls "path" out of a leading "[[path]] — ..."
// string, matching what buildBody writes for the Input section.
func extractWikiLinkTarget(s string) string {
	if len(s) < 2 || s[0] != '[' || s[1] != '[' {
		return ""
	}
	end := -1
	for i := 2; i+1 < len(s); i++ {
		if s[i] == ']' && s[i+1] == ']' {
			end = i
			break
		}
	}
	if end == -1 {
		return ""
	}
	return s[2:end]
}

func (l *Ledger) write(rec *Record, body string) error {
	block := toBlock(rec, body)
	content, err := frontmatter.Render(block)
	if err != nil {
		return fmt.Errorf("render task file: %w", err)
	}
	if err := os.WriteFile(rec.Path, content, 0644); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}

func (l *Ledger) readRaw(path string) (*Record, string, error) {
	block, err := frontmatter.Read(path)
	if err != nil {
		return nil, "", fmt.Errorf("read task file %s: %w", path, err)
	}
	rec := fromBlock(path, block)
	return rec, block.Body, nil
}

// writeAtomic writes rec+body to a temp file in the same directory as
// path, then renames it over path — the frontmatter-level atomicity
// spec.md §4.5 requires for UpdateStatus.
func (l *Ledger) writeAtomic(path string, rec *Record, body string) error {
	block := toBlock(rec, body)
	content, err := frontmatter.Render(block)
	if err != nil {
		return fmt.Errorf("render task file: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*.md")
	if err != nil {
		return fmt.Errorf("create temp task file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp task file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp task file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp task file: %w", err)
	}
	return nil
}
