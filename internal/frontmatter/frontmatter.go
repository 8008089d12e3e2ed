// Package frontmatter parses and renders the YAML-frontmatter-plus-body
// convention used throughout the vault: prompt files, task files, and any
// other Markdown note with a leading "---" delimited block.
package frontmatter

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Block is a Markdown document split into its frontmatter mapping and the
// remaining body text.
type Block struct {
	Data map[string]any
	Body string
}

// Parse splits raw Markdown content into a frontmatter mapping and a body.
// Content with no well-formed leading block returns an empty mapping and
// the entire input as the body — this is not an error.
func Parse(content []byte) (*Block, error) {
	str := string(content)

	if !strings.HasPrefix(str, delimiter) {
		return &Block{Data: map[string]any{}, Body: str}, nil
	}

	rest := str[len(delimiter):]
	idx := strings.Index(rest, "\n"+delimiter)
	if idx == -1 {
		// Prefix looked like frontmatter but never closed; treat the whole
		// thing as body rather than failing the caller.
		return &Block{Data: map[string]any{}, Body: str}, nil
	}

	rawYAML := rest[:idx]
	body := strings.TrimPrefix(rest[idx+len("\n"+delimiter):], "\n")

	var data map[string]any
	if err := yaml.Unmarshal([]byte(rawYAML), &data); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}

	return &Block{Data: data, Body: body}, nil
}

// Read parses the file at path. A missing file is not an error: the caller
// gets an empty Block back, matching orchestrator §4.2's "missing file ->
// returns empty, not error" contract.
func Read(path string) (*Block, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Block{Data: map[string]any{}, Body: ""}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(content)
}

// Render combines Data and Body back into a single Markdown document. An
// empty Data map omits the frontmatter block entirely.
func Render(block *Block) ([]byte, error) {
	var buf bytes.Buffer

	if len(block.Data) > 0 {
		buf.WriteString(delimiter)
		buf.WriteString("\n")

		encoded, err := yaml.Marshal(block.Data)
		if err != nil {
			return nil, fmt.Errorf("render frontmatter: %w", err)
		}
		buf.Write(encoded)

		buf.WriteString(delimiter)
		buf.WriteString("\n")
	}

	buf.WriteString(block.Body)
	return buf.Bytes(), nil
}

// StringValue reads key from data as a string, returning "" if absent or
// not a string.
func StringValue(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
