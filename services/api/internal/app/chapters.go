package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mangareader/pkg/archive"
	"mangareader/pkg/domain"
	"mangareader/pkg/store"
)

// ChapterUpload is one chapter archive submitted for a work.
type ChapterUpload struct {
	Number  int
	Title   *string
	Archive io.Reader
}

// UploadChapter stores and unpacks a chapter archive, then inserts or
// updates the chapter row for (work, number). Uploads to the same chapter
// are serialized; a failed upload leaves the previous contents in place.
func (a *App) UploadChapter(ctx context.Context, actor domain.Account, workID int64, up ChapterUpload) (domain.Chapter, error) {
	if up.Number <= 0 {
		return domain.Chapter{}, ErrInvalidChapterNumber
	}
	if up.Archive == nil {
		return domain.Chapter{}, ErrArchiveRequired
	}
	work, ok, err := a.store.GetWork(ctx, workID)
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("fetch work: %w", err)
	}
	if !ok {
		return domain.Chapter{}, ErrWorkNotFound
	}
	if !canManage(actor, work) {
		return domain.Chapter{}, ErrNotOwner
	}

	unlock, err := a.locks.Lock(ctx, a.layout.ChapterDir(workID, up.Number))
	if err != nil {
		return domain.Chapter{}, err
	}
	defer unlock()

	staging, err := a.layout.StageChapter(workID)
	if err != nil {
		return domain.Chapter{}, err
	}
	committed := false
	defer func() {
		if !committed {
			a.layout.Discard(staging)
		}
	}()

	archivePath := filepath.Join(staging, archive.ArchiveName)
	if err := writeArchive(archivePath, up.Archive); err != nil {
		return domain.Chapter{}, err
	}
	if err := archive.Extract(archivePath, staging); err != nil {
		if errors.Is(err, archive.ErrCorrupt) {
			return domain.Chapter{}, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		return domain.Chapter{}, fmt.Errorf("extract archive: %w", err)
	}
	// Row first, folder swap last, inside one transaction.
	dir := a.layout.ChapterDir(workID, up.Number)
	var saved domain.Chapter
	err = a.store.WithTx(ctx, func(tx store.Store) error {
		chapter, exists, err := tx.GetChapterByNumber(ctx, workID, up.Number)
		if err != nil {
			return fmt.Errorf("fetch chapter: %w", err)
		}
		if !exists {
			chapter = domain.Chapter{WorkID: workID, ChapterNumber: up.Number}
		}
		chapter.Title = up.Title
		chapter.FolderPath = &dir
		saved, err = tx.SaveChapter(ctx, chapter)
		if err != nil {
			return fmt.Errorf("save chapter: %w", err)
		}
		if _, err := a.layout.CommitChapter(staging, workID, up.Number); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		if committed {
			slog.Error("chapter folder replaced but row not saved", "work_id", workID, "chapter_number", up.Number, "dir", dir, "err", err)
		}
		return domain.Chapter{}, err
	}
	slog.Info("chapter uploaded", "work_id", workID, "chapter_id", saved.ID, "chapter_number", up.Number)
	return saved, nil
}

// ListChapters returns a work's chapters by number. The published flag is
// not consulted.
func (a *App) ListChapters(ctx context.Context, workID int64) ([]domain.Chapter, error) {
	if _, ok, err := a.store.GetWork(ctx, workID); err != nil {
		return nil, fmt.Errorf("fetch work: %w", err)
	} else if !ok {
		return nil, ErrWorkNotFound
	}
	chapters, err := a.store.ListChapters(ctx, workID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return chapters, nil
}

// ChapterPages returns the chapter's page file names in reading order.
func (a *App) ChapterPages(ctx context.Context, chapterID int64) ([]string, error) {
	folder, err := a.chapterFolder(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	pages, err := archive.ListPages(folder)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return nil, ErrChapterFilesGone
	case errors.Is(err, archive.ErrCorrupt):
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	case err != nil:
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return pages, nil
}

// ReadPage returns one page image and its content type.
func (a *App) ReadPage(ctx context.Context, chapterID int64, filename string) ([]byte, string, error) {
	folder, err := a.chapterFolder(ctx, chapterID)
	if err != nil {
		return nil, "", err
	}
	data, contentType, err := archive.ReadPage(folder, filename)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		return nil, "", ErrPageNotFound
	case errors.Is(err, archive.ErrCorrupt):
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	case err != nil:
		return nil, "", fmt.Errorf("read page: %w", err)
	}
	return data, contentType, nil
}

func (a *App) chapterFolder(ctx context.Context, chapterID int64) (string, error) {
	chapter, ok, err := a.store.GetChapter(ctx, chapterID)
	if err != nil {
		return "", fmt.Errorf("fetch chapter: %w", err)
	}
	if !ok {
		return "", ErrChapterNotFound
	}
	if chapter.FolderPath == nil || *chapter.FolderPath == "" || !a.layout.Contains(*chapter.FolderPath) {
		return "", ErrChapterFilesGone
	}
	return *chapter.FolderPath, nil
}

func writeArchive(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	if n == 0 {
		return ErrArchiveRequired
	}
	return nil
}
