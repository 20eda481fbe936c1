package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/tanagraph/internal/export"
	"github.com/HendryAvila/tanagraph/internal/graph"
)

const previewLen = 100

// title is the display name of a node.
func title(n *graph.Node) string {
	if strings.TrimSpace(n.Name) == "" {
		return n.ID
	}
	return n.Name
}

// bodyText joins the text fragments of a node's body.
func bodyText(n *graph.Node) string {
	var parts []string
	for _, frag := range n.Body {
		if frag.Kind == export.FragmentText && frag.Text != "" {
			parts = append(parts, frag.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// renderMarkdown renders a node as a markdown document. With levels > 0 the
// children's titles and bodies are appended as a nested outline, levels
// deep.
func renderMarkdown(ix *graph.Index, n *graph.Node, labels []TagLabel, levels int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title(n))

	if len(labels) > 0 {
		names := make([]string, len(labels))
		for i, l := range labels {
			names[i] = "#" + l.Name
		}
		fmt.Fprintf(&b, "\n**Tags:** %s\n", strings.Join(names, " "))
	}

	if text := bodyText(n); text != "" {
		fmt.Fprintf(&b, "\n%s\n", strings.TrimRight(text, "\n"))
	}

	if levels > 0 && len(ix.Children(n.ID)) > 0 {
		b.WriteString("\n## Children\n\n")
		renderOutline(&b, ix, n.ID, 0, levels, map[string]bool{n.ID: true})
	}

	var meta []string
	if !n.Created.IsZero() {
		meta = append(meta, "**Created:** "+n.Created.UTC().Format(time.RFC3339))
	}
	if !n.Modified.IsZero() {
		meta = append(meta, "**Modified:** "+n.Modified.UTC().Format(time.RFC3339))
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, "\n---\n%s\n", strings.Join(meta, " | "))
	}
	return b.String()
}

// renderOutline writes the children of id as a bullet list. onPath guards
// against parent links that loop back.
func renderOutline(b *strings.Builder, ix *graph.Index, id string, level, levels int, onPath map[string]bool) {
	indent := strings.Repeat("  ", level)
	for _, cid := range ix.Children(id) {
		c, ok := ix.Node(cid)
		if !ok || onPath[cid] {
			continue
		}
		fmt.Fprintf(b, "%s- %s\n", indent, title(c))
		if text := bodyText(c); text != "" {
			for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
				if line == "" {
					b.WriteString("\n")
					continue
				}
				fmt.Fprintf(b, "%s  %s\n", indent, line)
			}
		}
		if level+1 < levels {
			onPath[cid] = true
			renderOutline(b, ix, cid, level+1, levels, onPath)
			delete(onPath, cid)
		}
	}
}

// preview shortens text to previewLen runes.
func preview(text string) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen]) + "..."
}
