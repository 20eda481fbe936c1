package mutation

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/tanagraph/internal/apperr"
)

// Position selects where appended content goes in a node body.
type Position string

const (
	PositionStart         Position = "start"
	PositionEnd           Position = "end"
	PositionBeforeSection Position = "before_section"
	PositionAfterSection  Position = "after_section"
)

var validPositions = map[Position]bool{
	PositionStart:         true,
	PositionEnd:           true,
	PositionBeforeSection: true,
	PositionAfterSection:  true,
}

// ParsePosition validates a position name. An empty name means end.
func ParsePosition(s string) (Position, error) {
	if s == "" {
		return PositionEnd, nil
	}
	p := Position(s)
	if !validPositions[p] {
		return "", apperr.New(apperr.InvalidRequest,
			"invalid position %q: must be one of: start, end, before_section, after_section", s)
	}
	return p, nil
}

// NeedsSection reports whether the position is relative to a section.
func (p Position) NeedsSection() bool {
	return p == PositionBeforeSection || p == PositionAfterSection
}

// Insert returns body with content placed at the given position. Sections
// are markdown heading lines; the name matches the heading text
// case-insensitively. Blocks are separated by one blank line.
func Insert(body, content string, pos Position, section string) (string, error) {
	switch pos {
	case PositionStart:
		if strings.TrimSpace(body) == "" {
			return content, nil
		}
		return content + "\n\n" + strings.TrimLeft(body, "\n"), nil
	case PositionEnd:
		if strings.TrimSpace(body) == "" {
			return content, nil
		}
		return strings.TrimRight(body, "\n") + "\n\n" + content, nil
	}

	lines := strings.Split(body, "\n")
	i, level := findHeading(lines, section)
	if i < 0 {
		return "", apperr.New(apperr.SectionNotFound, "section %q not found in node body", section).
			WithDetail("section", section).
			WithRemedy("read the node to see its headings, or append at start or end")
	}

	if pos == PositionBeforeSection {
		return splice(lines, i, content), nil
	}

	// After the section: before the next heading of the same or higher
	// level, ahead of any blank lines that close the section.
	end := len(lines)
	for j := i + 1; j < len(lines); j++ {
		if l, ok := headingLevel(lines[j]); ok && l <= level {
			end = j
			break
		}
	}
	for end > i+1 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return splice(lines, end, content), nil
}

func splice(lines []string, at int, content string) string {
	out := make([]string, 0, len(lines)+3)
	out = append(out, lines[:at]...)
	if at > 0 && strings.TrimSpace(lines[at-1]) != "" {
		out = append(out, "")
	}
	out = append(out, content)
	if at < len(lines) && strings.TrimSpace(lines[at]) != "" {
		out = append(out, "")
	}
	out = append(out, lines[at:]...)
	return strings.Join(out, "\n")
}

// findHeading returns the line index and level of the first heading whose
// text matches name, or -1.
func findHeading(lines []string, name string) (int, int) {
	want := strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(name), "#")))
	if want == "" {
		return -1, 0
	}
	for i, line := range lines {
		level, ok := headingLevel(line)
		if !ok {
			continue
		}
		text := strings.TrimSpace(strings.TrimSpace(line)[level:])
		if strings.ToLower(text) == want {
			return i, level
		}
	}
	return -1, 0
}

// headingLevel parses an ATX heading marker ("## Title").
func headingLevel(line string) (int, bool) {
	s := strings.TrimSpace(line)
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0, false
	}
	if n < len(s) && s[n] != ' ' && s[n] != '\t' {
		return 0, false
	}
	return n, true
}

func (p Position) String() string { return string(p) }

// describe renders a position for log and result messages.
func describe(p Position, section string) string {
	if p.NeedsSection() {
		return fmt.Sprintf("%s %q", p, section)
	}
	return string(p)
}
