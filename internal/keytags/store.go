package keytags

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/HendryAvila/tanagraph/internal/apperr"
	"github.com/HendryAvila/tanagraph/internal/graph"
	"github.com/HendryAvila/tanagraph/internal/tags"
)

// FileSuffix is appended to the workspace id to form the file name.
const FileSuffix = "-keytags.json"

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Store reads and writes keytags files in one metadata directory. Edits are
// read-modify-write under a single lock.
type Store struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore creates a store for the given metadata directory.
func NewStore(metadataDir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: metadataDir, logger: logger}
}

// Dir returns the metadata directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the keytags file path of a workspace.
func (s *Store) Path(workspaceID string) string {
	return filepath.Join(s.dir, workspaceID+FileSuffix)
}

func validWorkspace(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return apperr.New(apperr.InvalidRequest, "invalid workspace id %q", id)
	}
	return nil
}

func stamp() string {
	return timeNow().UTC().Format(time.RFC3339)
}

// Load returns the workspace's keytags file. A missing file is created
// from the starter template; a file naming another workspace is repaired
// and saved.
func (s *Store) Load(workspaceID string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(workspaceID)
}

func (s *Store) load(workspaceID string) (*File, error) {
	if err := validWorkspace(workspaceID); err != nil {
		return nil, err
	}
	path := s.Path(workspaceID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		f := newFile(workspaceID, stamp())
		if err := s.save(f); err != nil {
			return nil, err
		}
		s.logger.Info("created starter keytags file", zap.String("workspace_id", workspaceID), zap.String("path", path))
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading keytags file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.Wrap(apperr.MalformedInput, err, "keytags file %s is not valid JSON", path).
			WithRemedy("fix or remove the file; a starter file is created when none exists")
	}
	f.normalize()
	if f.WorkspaceID != workspaceID {
		s.logger.Warn("workspace id mismatch in keytags file, repairing",
			zap.String("expected", workspaceID), zap.String("found", f.WorkspaceID))
		f.WorkspaceID = workspaceID
		if err := s.save(&f); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// Save writes f atomically and stamps its update time.
func (s *Store) Save(f *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(f)
}

func (s *Store) save(f *File) error {
	if err := validWorkspace(f.WorkspaceID); err != nil {
		return err
	}
	f.normalize()
	f.UpdatedOn = stamp()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("marshaling keytags file: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := atomic.WriteFile(s.Path(f.WorkspaceID), &buf); err != nil {
		return fmt.Errorf("writing keytags file: %w", err)
	}
	return nil
}

// edit loads, applies fn and saves when fn reports a change.
func (s *Store) edit(workspaceID string, fn func(f *File) (bool, error)) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load(workspaceID)
	if err != nil {
		return nil, err
	}
	changed, err := fn(f)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.save(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return apperr.New(apperr.InvalidRequest, "%s must not be empty", field)
	}
	return nil
}

// SetDirectory maps a tag (by id or name) to an output directory label. An
// existing key matching the tag case-insensitively is replaced.
func (s *Store) SetDirectory(workspaceID, tag, label string) (*File, error) {
	if err := required("tag", tag); err != nil {
		return nil, err
	}
	if err := required("directory", label); err != nil {
		return nil, err
	}
	return s.edit(workspaceID, func(f *File) (bool, error) {
		if k, ok := findKey(f.Directories, tag); ok {
			delete(f.Directories, k)
		}
		f.Directories[tag] = label
		return true, nil
	})
}

// RemoveDirectory drops a tag's directory mapping.
func (s *Store) RemoveDirectory(workspaceID, tag string) (*File, error) {
	return s.edit(workspaceID, func(f *File) (bool, error) {
		k, ok := findKey(f.Directories, tag)
		if !ok {
			return false, apperr.New(apperr.TagNotFound, "no directory mapping for tag %q", tag).
				WithRemedy("call keytags show to see configured mappings")
		}
		delete(f.Directories, k)
		return true, nil
	})
}

// AddParent records that tag inherits from parent.
func (s *Store) AddParent(workspaceID, tag, parent string) (*File, error) {
	if err := required("tag", tag); err != nil {
		return nil, err
	}
	if err := required("parent", parent); err != nil {
		return nil, err
	}
	if strings.EqualFold(tag, parent) {
		return nil, apperr.New(apperr.CircularInheritance, "tag %q cannot inherit from itself", tag)
	}
	return s.edit(workspaceID, func(f *File) (bool, error) {
		k, ok := findKey(f.Inheritance, tag)
		if !ok {
			k = tag
		}
		for _, p := range f.Inheritance[k] {
			if strings.EqualFold(p, parent) {
				return false, nil
			}
		}
		f.Inheritance[k] = append(f.Inheritance[k], parent)
		return true, nil
	})
}

// RemoveParent drops an inheritance link.
func (s *Store) RemoveParent(workspaceID, tag, parent string) (*File, error) {
	return s.edit(workspaceID, func(f *File) (bool, error) {
		k, ok := findKey(f.Inheritance, tag)
		if ok {
			parents := f.Inheritance[k]
			for i, p := range parents {
				if strings.EqualFold(p, parent) {
					parents = append(parents[:i:i], parents[i+1:]...)
					if len(parents) == 0 {
						delete(f.Inheritance, k)
					} else {
						f.Inheritance[k] = parents
					}
					return true, nil
				}
			}
		}
		return false, apperr.New(apperr.TagNotFound, "tag %q does not inherit from %q", tag, parent)
	})
}

// RegisterTags replaces the supertag registry with an extracted tag list.
// System tags go to their own section.
func (s *Store) RegisterTags(workspaceID, sourceFile string, list []tags.Tag) (*File, error) {
	return s.edit(workspaceID, func(f *File) (bool, error) {
		f.Supertags.UserDefined = make(map[string]Entry, len(list))
		f.Supertags.System = make(map[string]Entry)
		for _, t := range list {
			e := Entry{
				Name:        t.Name,
				Description: t.Description,
				UsageCount:  t.UsageCount,
				FieldCount:  t.FieldCount,
				ParentTags:  t.ParentTagIDs,
				Implicit:    t.Implicit,
			}
			if graph.IsSystem(t.ID) {
				f.Supertags.System[t.ID] = e
			} else {
				f.Supertags.UserDefined[t.ID] = e
			}
		}
		f.TotalSupertags = len(f.Supertags.UserDefined)
		if sourceFile != "" {
			f.SourceFile = sourceFile
			f.LastImport = sourceFile
		}
		return true, nil
	})
}

// Summary describes one workspace found in the metadata directory.
type Summary struct {
	WorkspaceID    string `json:"workspace_id"`
	WorkspaceName  string `json:"workspace_name"`
	Path           string `json:"path"`
	CreatedAt      string `json:"created_at,omitempty"`
	TotalSupertags int    `json:"total_supertags"`
	LastImport     string `json:"last_import,omitempty"`
	SourceFile     string `json:"source_file,omitempty"`
}

// List returns the workspaces that have a keytags file, sorted by id.
// Unreadable files are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading metadata directory: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileSuffix) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn("skipping unreadable keytags file", zap.String("path", path), zap.Error(err))
			continue
		}
		id := strings.TrimSuffix(e.Name(), FileSuffix)
		name := f.WorkspaceName
		if name == "" {
			name = id
		}
		out = append(out, Summary{
			WorkspaceID:    id,
			WorkspaceName:  name,
			Path:           path,
			CreatedAt:      f.CreatedAt,
			TotalSupertags: f.TotalSupertags,
			LastImport:     f.LastImport,
			SourceFile:     f.SourceFile,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out, nil
}

// Stats loads a workspace and summarizes it.
func (s *Store) Stats(workspaceID string) (Stats, error) {
	f, err := s.Load(workspaceID)
	if err != nil {
		return Stats{}, err
	}
	return f.Stats(), nil
}

// Delete removes a workspace's keytags file. It reports whether a file
// existed.
func (s *Store) Delete(workspaceID string) (bool, error) {
	if err := validWorkspace(workspaceID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.Path(workspaceID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting keytags file: %w", err)
	}
	return true, nil
}
