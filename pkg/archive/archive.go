package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ArchiveName is the conventional archive file kept in every chapter folder.
const ArchiveName = "chapter.zip"

var (
	// ErrNotFound is returned when the chapter folder, archive or page is missing.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned when the archive cannot be read.
	ErrCorrupt = errors.New("archive is corrupt or unreadable")
)

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// IsImage reports whether name carries an allow-listed image extension.
func IsImage(name string) bool {
	_, ok := contentTypes[strings.ToLower(path.Ext(name))]
	return ok
}

// ContentType derives a MIME type from the file extension.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// BaseName reduces a requested page name to its final path element.
// Both slash styles count as separators.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := path.Base(name)
	switch base {
	case ".", "..", "/":
		return ""
	}
	return base
}

// ListPages returns the natural-ordered image names of a chapter folder.
// The archive is authoritative; loose images are used only when it is absent.
func ListPages(folder string) ([]string, error) {
	if err := requireDir(folder); err != nil {
		return nil, err
	}
	archivePath := filepath.Join(folder, ArchiveName)
	present, err := exists(archivePath)
	if err != nil {
		return nil, err
	}
	var names []string
	if present {
		names, err = archivePages(archivePath)
	} else {
		names, err = loosePages(folder)
		if err == nil && len(names) == 0 {
			return nil, ErrNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	NaturalSort(names)
	return names, nil
}

// ReadPage returns the bytes and content type of one page.
func ReadPage(folder, filename string) ([]byte, string, error) {
	name := BaseName(filename)
	if name == "" {
		return nil, "", ErrNotFound
	}
	if err := requireDir(folder); err != nil {
		return nil, "", err
	}
	archivePath := filepath.Join(folder, ArchiveName)
	present, err := exists(archivePath)
	if err != nil {
		return nil, "", err
	}
	var data []byte
	if present {
		data, err = readArchiveEntry(archivePath, name)
	} else {
		data, err = readLoose(folder, name)
	}
	if err != nil {
		return nil, "", err
	}
	return data, ContentType(name), nil
}

func archivePages(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()
	seen := make(map[string]struct{}, len(r.File))
	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() || ignoredEntry(f.Name) {
			continue
		}
		base := BaseName(f.Name)
		if base == "" || !IsImage(base) {
			continue
		}
		if _, dup := seen[base]; dup {
			continue
		}
		seen[base] = struct{}{}
		names = append(names, base)
	}
	return names, nil
}

func readArchiveEntry(archivePath, name string) ([]byte, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.FileInfo().IsDir() || ignoredEntry(f.Name) || BaseName(f.Name) != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return data, nil
	}
	return nil, ErrNotFound
}

func loosePages(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func readLoose(folder, name string) ([]byte, error) {
	target := filepath.Join(folder, name)
	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}
	return os.ReadFile(target)
}

// Extract unpacks archivePath into dest, then promotes the contents of
// top-level directories when the archive's top level holds directories only.
// Entries that would land outside dest make the archive corrupt.
func Extract(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if ignoredEntry(f.Name) {
			continue
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if target == filepath.Join(dest, ArchiveName) {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir: %w", err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return Flatten(dest)
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out.Close()
}

// Flatten moves the contents of every top-level directory of dir up one
// level and removes the emptied directories, but only when dir's top level
// (ignoring the archive and lock files) contains directories exclusively.
// Wrappers are promoted in name order; when two of them hold the same child
// name the first one wins and the later copy is dropped.
func Flatten(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var dirs []string
	for _, e := range entries {
		if e.Name() == ArchiveName || strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		if !e.IsDir() {
			return nil
		}
		dirs = append(dirs, e.Name())
	}
	if len(dirs) == 0 {
		return nil
	}

	// Park the wrappers first so a child may share its wrapper's name.
	parking, err := os.MkdirTemp(dir, ".flatten-")
	if err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	defer os.RemoveAll(parking)
	for _, name := range dirs {
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(parking, name)); err != nil {
			return fmt.Errorf("flatten %s: %w", name, err)
		}
	}
	for _, name := range dirs {
		nested := filepath.Join(parking, name)
		children, err := os.ReadDir(nested)
		if err != nil {
			return err
		}
		for _, child := range children {
			target := filepath.Join(dir, child.Name())
			if _, err := os.Lstat(target); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := os.Rename(filepath.Join(nested, child.Name()), target); err != nil {
				return fmt.Errorf("flatten %s: %w", child.Name(), err)
			}
		}
	}
	return nil
}

func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(name) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute entry %q", ErrCorrupt, name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrCorrupt, name)
	}
	return target, nil
}

// ignoredEntry skips resource-fork metadata that archivers on macOS add.
func ignoredEntry(name string) bool {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "__MACOSX/") || name == "__MACOSX" {
		return true
	}
	return strings.HasPrefix(path.Base(name), "._")
}

func requireDir(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return ErrNotFound
	}
	info, err := os.Stat(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if !info.IsDir() {
		return ErrNotFound
	}
	return nil
}

func exists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
