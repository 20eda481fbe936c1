package mutation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// NodeBackupsDir holds one markdown file per backed-up node.
	NodeBackupsDir = "nodes"
	// DocumentBackupsDir holds full copies of source documents.
	DocumentBackupsDir = "documents"

	backupStamp      = "20060102_150405"
	backupOperation  = "pre-modification-backup"
	frontMatterDelim = "---"
)

// NodeBackup is the pre-mutation state of one node.
type NodeBackup struct {
	NodeID      string
	NodeName    string
	Source      string
	WorkspaceID string
	Body        string
	TakenAt     time.Time
}

// BackupMeta is the YAML front-matter of a node backup file.
type BackupMeta struct {
	BackupTimestamp string `yaml:"backup_timestamp"`
	NodeID          string `yaml:"node_id"`
	NodeName        string `yaml:"node_name"`
	Operation       string `yaml:"operation"`
	Source          string `yaml:"source,omitempty"`
	WorkspaceID     string `yaml:"workspace_id,omitempty"`
}

// BackupWriter persists backups. Implementations must never overwrite an
// existing backup.
type BackupWriter interface {
	WriteNode(ctx context.Context, b NodeBackup) (string, error)
	WriteDocument(ctx context.Context, source string, data []byte, at time.Time) (string, error)
}

// FileBackups writes backups under a root directory.
type FileBackups struct {
	Root string
}

// NewFileBackups creates a filesystem backup writer rooted at dir.
func NewFileBackups(dir string) *FileBackups {
	return &FileBackups{Root: dir}
}

// NodePath returns the directory node backups are written to.
func (fb *FileBackups) NodePath() string {
	return filepath.Join(fb.Root, NodeBackupsDir)
}

// DocumentPath returns the directory document backups are written to.
func (fb *FileBackups) DocumentPath() string {
	return filepath.Join(fb.Root, DocumentBackupsDir)
}

// WriteNode writes {node_id}_{YYYYMMDD_HHMMSS}.md: YAML front-matter
// followed by the body exactly as it was.
func (fb *FileBackups) WriteNode(_ context.Context, b NodeBackup) (string, error) {
	meta := BackupMeta{
		BackupTimestamp: b.TakenAt.UTC().Format(time.RFC3339),
		NodeID:          b.NodeID,
		NodeName:        b.NodeName,
		Operation:       backupOperation,
		Source:          b.Source,
		WorkspaceID:     b.WorkspaceID,
	}
	head, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encoding backup front-matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(head)
	buf.WriteString(frontMatterDelim + "\n\n")
	buf.WriteString(b.Body)

	return createExclusive(fb.NodePath(), safeName(b.NodeID)+"_"+b.TakenAt.Format(backupStamp), ".md", buf.Bytes())
}

// WriteDocument writes {stem}_{YYYYMMDD_HHMMSS}{ext}, a byte-for-byte copy
// of the source document.
func (fb *FileBackups) WriteDocument(_ context.Context, source string, data []byte, at time.Time) (string, error) {
	base := filepath.Base(source)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".json"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return createExclusive(fb.DocumentPath(), safeName(stem)+"_"+at.Format(backupStamp), ext, data)
}

// createExclusive creates dir/name+ext, adding -2, -3, ... on collision.
func createExclusive(dir, name, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	path := filepath.Join(dir, name+ext)
	for suffix := 2; ; suffix++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			path = filepath.Join(dir, fmt.Sprintf("%s-%d%s", name, suffix, ext))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating backup file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("writing backup %s: %w", path, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return "", fmt.Errorf("syncing backup %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("closing backup %s: %w", path, err)
		}
		return path, nil
	}
}

func safeName(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")
	if out := r.Replace(s); out != "" {
		return out
	}
	return "node"
}

// ReadNodeBackup splits a node backup file into its front-matter and the
// original body.
func ReadNodeBackup(path string) (*BackupMeta, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	s := string(data)
	if !strings.HasPrefix(s, frontMatterDelim+"\n") {
		return nil, "", fmt.Errorf("backup %s has no front-matter", path)
	}
	rest := s[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return nil, "", fmt.Errorf("backup %s has unterminated front-matter", path)
	}

	var meta BackupMeta
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &meta); err != nil {
		return nil, "", fmt.Errorf("parsing backup front-matter: %w", err)
	}
	body := strings.TrimPrefix(rest[end+len(frontMatterDelim)+2:], "\n")
	return &meta, body, nil
}
