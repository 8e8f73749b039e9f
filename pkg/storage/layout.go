package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mangareader/pkg/archive"
)

// Layout maps works and chapters onto folders below a storage root.
//
//	<root>/<work-id>/<chapter-number>/chapter.zip
type Layout struct {
	root string
}

// NewLayout creates the storage root if missing.
func NewLayout(root string) (*Layout, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Layout{root: abs}, nil
}

// Root returns the absolute storage root.
func (l *Layout) Root() string { return l.root }

func (l *Layout) WorkDir(workID int64) string {
	return filepath.Join(l.root, strconv.FormatInt(workID, 10))
}

func (l *Layout) ChapterDir(workID int64, number int) string {
	return filepath.Join(l.WorkDir(workID), strconv.Itoa(number))
}

func (l *Layout) ArchivePath(workID int64, number int) string {
	return filepath.Join(l.ChapterDir(workID, number), archive.ArchiveName)
}

// CreateWorkDir makes the folder for a new work.
func (l *Layout) CreateWorkDir(workID int64) (string, error) {
	dir := l.WorkDir(workID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// RemoveWorkDir deletes everything stored for a work. Missing folders are fine.
func (l *Layout) RemoveWorkDir(workID int64) error {
	dir := l.WorkDir(workID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}

// StageChapter creates an empty scratch folder inside the work folder.
// Uploads are written there and swapped in with CommitChapter.
func (l *Layout) StageChapter(workID int64) (string, error) {
	workDir, err := l.CreateWorkDir(workID)
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(workDir, ".staging-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// CommitChapter replaces the chapter folder with staging and returns the
// chapter folder path.
func (l *Layout) CommitChapter(staging string, workID int64, number int) (string, error) {
	dir := l.ChapterDir(workID, number)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear chapter dir: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return "", fmt.Errorf("install chapter dir: %w", err)
	}
	return dir, nil
}

// Discard removes a staging folder. Errors are ignored.
func (l *Layout) Discard(staging string) {
	if staging != "" && l.Contains(staging) {
		_ = os.RemoveAll(staging)
	}
}

// Contains reports whether p resolves to a location inside the root.
func (l *Layout) Contains(p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
