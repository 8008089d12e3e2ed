package ledger

import (
	"fmt"
	"regexp"
	"strings"
)

// sectionOrder is the fixed heading order every task file is created with
// (spec.md §4.5 "Body sections").
var sectionOrder = []string{"Input", "Output", "Instructions", "Process Log", "Evaluation Log"}

var sectionHeadingPattern = regexp.MustCompile(`(?m)^## (.+?)\s*$`)

// buildBody renders the five fixed sections, in order, from a freshly
// created Record.
func buildBody(sourcePath, eventDescription, promptBody string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Input\n\n[[%s]] — %s\n\n", sourcePath, eventDescription)
	b.WriteString("## Output\n\n_pending_\n\n")
	fmt.Fprintf(&b, "## Instructions\n\n%s\n\n", promptBody)
	b.WriteString("## Process Log\n\n")
	b.WriteString("## Evaluation Log\n\n")
	return b.String()
}

// parseSections splits a rendered body back into heading -> raw content,
// returning the headings in the order they appear in body, recognized or
// not.
func parseSections(body string) (order []string, sections map[string]string) {
	sections = make(map[string]string)

	locs := sectionHeadingPattern.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		return nil, sections
	}

	names := sectionHeadingPattern.FindAllStringSubmatch(body, -1)
	for i, loc := range locs {
		name := strings.TrimSpace(names[i][1])
		contentStart := loc[1]
		contentEnd := len(body)
		if i+1 < len(locs) {
			contentEnd = locs[i+1][0]
		}
		content := strings.Trim(body[contentStart:contentEnd], "\n")
		sections[name] = content
		order = append(order, name)
	}
	return order, sections
}

// renderSections rebuilds a body from an ordered heading list, falling
// back to sectionOrder when a body has never been parsed before.
func renderSections(order []string, sections map[string]string) string {
	if len(order) == 0 {
		order = sectionOrder
	}
	var b strings.Builder
	for _, name := range order {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", name, sections[name])
	}
	return b.String()
}

// appendProcessLogLine appends line to the "Process Log" section of body.
// A body with no headings at all is rebuilt in sectionOrder; a body that
// has headings but no Process Log gets one after its last section.
func appendProcessLogLine(body, line string) string {
	order, sections := parseSections(body)
	if len(order) == 0 {
		order = sectionOrder
	}
	found := false
	for _, name := range order {
		if name == "Process Log" {
			found = true
			break
		}
	}
	if !found {
		order = append(order, "Process Log")
	}

	existing := strings.TrimRight(sections["Process Log"], "\n")
	if existing == "" {
		sections["Process Log"] = line
	} else {
		sections["Process Log"] = existing + "\n" + line
	}

	return renderSections(order, sections)
}
