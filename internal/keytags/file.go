// Package keytags manages the per-workspace keytags file: directory
// assignments, configured inheritance, API metadata and the registry of
// known supertags.
package keytags

import (
	"sort"
	"strings"

	"github.com/HendryAvila/tanagraph/internal/tags"
)

// Version is the file format written by this package.
const Version = "2.0"

// Entry is one supertag in the registry.
type Entry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	UsageCount  int      `json:"usage_count"`
	FieldCount  int      `json:"field_count"`
	ParentTags  []string `json:"parent_tags,omitempty"`
	Implicit    bool     `json:"implicit,omitempty"`
}

// Registry splits known supertags into user-defined and system ones.
type Registry struct {
	UserDefined map[string]Entry `json:"user_defined"`
	System      map[string]Entry `json:"system"`
}

// File is the on-disk {workspace_id}-keytags.json document.
type File struct {
	Version        string              `json:"version"`
	WorkspaceID    string              `json:"workspace_id"`
	WorkspaceName  string              `json:"workspace_name,omitempty"`
	CreatedAt      string              `json:"created_at"`
	UpdatedOn      string              `json:"updated_on,omitempty"`
	SourceFile     string              `json:"source_file,omitempty"`
	LastImport     string              `json:"last_import,omitempty"`
	TotalSupertags int                 `json:"total_supertags"`
	Inheritance    map[string][]string `json:"inheritance"`
	Directories    map[string]string   `json:"directories"`
	APIs           map[string]any      `json:"apis"`
	Supertags      Registry            `json:"supertags"`
}

func newFile(workspaceID, createdAt string) *File {
	f := &File{Version: Version, WorkspaceID: workspaceID, CreatedAt: createdAt}
	f.normalize()
	return f
}

// normalize replaces nil maps so the file always serializes every section.
func (f *File) normalize() {
	if f.Version == "" {
		f.Version = Version
	}
	if f.Inheritance == nil {
		f.Inheritance = make(map[string][]string)
	}
	if f.Directories == nil {
		f.Directories = make(map[string]string)
	}
	if f.APIs == nil {
		f.APIs = make(map[string]any)
	}
	if f.Supertags.UserDefined == nil {
		f.Supertags.UserDefined = make(map[string]Entry)
	}
	if f.Supertags.System == nil {
		f.Supertags.System = make(map[string]Entry)
	}
}

// Mapping returns the directory assignments as resolver input.
func (f *File) Mapping() tags.Mapping {
	return tags.NewMapping(f.Directories)
}

// InheritanceMap returns a copy of the configured inheritance map.
func (f *File) InheritanceMap() map[string][]string {
	out := make(map[string][]string, len(f.Inheritance))
	for k, v := range f.Inheritance {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Stats summarizes a keytags file.
type Stats struct {
	WorkspaceID      string `json:"workspace_id"`
	Version          string `json:"version"`
	TotalSupertags   int    `json:"total_supertags"`
	UserDefinedCount int    `json:"user_defined_count"`
	SystemCount      int    `json:"system_count"`
	InheritanceCount int    `json:"inheritance_count"`
	DirectoryCount   int    `json:"directory_count"`
	APICount         int    `json:"api_count"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedOn        string `json:"updated_on,omitempty"`
	LastImport       string `json:"last_import,omitempty"`
	SourceFile       string `json:"source_file,omitempty"`
}

// Stats computes the summary of f.
func (f *File) Stats() Stats {
	return Stats{
		WorkspaceID:      f.WorkspaceID,
		Version:          f.Version,
		TotalSupertags:   f.TotalSupertags,
		UserDefinedCount: len(f.Supertags.UserDefined),
		SystemCount:      len(f.Supertags.System),
		InheritanceCount: len(f.Inheritance),
		DirectoryCount:   len(f.Directories),
		APICount:         len(f.APIs),
		CreatedAt:        f.CreatedAt,
		UpdatedOn:        f.UpdatedOn,
		LastImport:       f.LastImport,
		SourceFile:       f.SourceFile,
	}
}

// findKey returns the existing key matching ref exactly or, failing that,
// case-insensitively. Ties go to the lexically smallest key.
func findKey[V any](m map[string]V, ref string) (string, bool) {
	if _, ok := m[ref]; ok {
		return ref, true
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, ref) {
			return k, true
		}
	}
	return "", false
}
