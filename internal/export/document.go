// Package export parses exported workspace snapshots into a flat,
// schema-independent list of node records.
//
// An export may arrive in several structural shapes. Each shape has a
// recognizer (a pure predicate plus extractor) and recognizers are tried in
// a fixed order; the first structural match wins. The decoded tree is kept
// alongside the records so the mutation engine can write a changed body back
// into the exact location it was read from.
package export

import (
	"time"
)

// Shape names the structural layout an export was recognized as.
type Shape string

const (
	// ShapeCollection is an object holding a "docs", "documents" or
	// "nodes" array. Records may be flat (children as id lists, parentId
	// links) or nested (children as objects).
	ShapeCollection Shape = "collection"
	// ShapeArray is a bare array of node objects.
	ShapeArray Shape = "array"
	// ShapeSingle is a single node object.
	ShapeSingle Shape = "single"
)

// DefaultWorkspaceID is used when an export carries no workspace marker.
const DefaultWorkspaceID = "default_workspace"

// FragmentKind distinguishes the pieces of a node body.
type FragmentKind string

const (
	FragmentText  FragmentKind = "text"
	FragmentChild FragmentKind = "child"
)

// Fragment is one ordered piece of a node body: either literal text or a
// reference to a child node rendered in place.
type Fragment struct {
	Kind    FragmentKind `json:"kind"`
	Text    string       `json:"text,omitempty"`
	ChildID string       `json:"child_id,omitempty"`
}

// TagRef is a tag applied to a node. Name is only known when the export
// embeds it inline.
type TagRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Record is a normalized node-like entry of an export.
type Record struct {
	ID       string
	Name     string
	ParentID string

	Tags         []TagRef
	IsTagDef     bool
	ParentTagIDs []string
	Description  string
	FieldCount   int

	// Content is the node's own text body; ContentField is the dotted path
	// it was read from and the path a mutation writes back to.
	Content      string
	ContentField string
	ChildIDs     []string
	Body         []Fragment

	Created  time.Time
	Modified time.Time

	raw map[string]any
}

// Document is a parsed export.
type Document struct {
	Shape       Shape
	Records     []*Record
	WorkspaceID string
	// Expanded lists node ids the workspace metadata marks as expanded
	// roots, in the order they appear.
	Expanded []string
	// Skipped counts node-like objects dropped for lacking an id.
	Skipped int
	// Source is the file path the document was read from, if any.
	Source string

	root any
}

// Len returns the number of records.
func (d *Document) Len() int { return len(d.Records) }
