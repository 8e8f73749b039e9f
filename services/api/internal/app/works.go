package app

import (
	"context"
	"fmt"
	"strings"

	"mangareader/pkg/domain"
	"mangareader/pkg/store"
)

// WorkSummary is a catalog entry with its chapter count.
type WorkSummary struct {
	domain.Work
	ChapterCount int64 `json:"chapter_count"`
}

// WorkDetail is a work together with its chapters in reading order.
type WorkDetail struct {
	domain.Work
	Chapters []domain.Chapter `json:"chapters"`
}

// WorkInput carries the fields of a new work.
type WorkInput struct {
	Title       string
	Description *string
}

// WorkUpdate is a partial update; nil fields are left unchanged.
type WorkUpdate struct {
	Title       *string
	Description *string
	CoverImage  *string
	IsPublished *bool
}

// ListPublishedWorks returns the published catalog.
func (a *App) ListPublishedWorks(ctx context.Context) ([]WorkSummary, error) {
	works, err := a.store.ListWorks(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	ids := make([]int64, 0, len(works))
	for _, w := range works {
		ids = append(ids, w.ID)
	}
	counts, err := a.store.CountChaptersByWork(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count chapters: %w", err)
	}
	out := make([]WorkSummary, 0, len(works))
	for _, w := range works {
		out = append(out, WorkSummary{Work: w, ChapterCount: counts[w.ID]})
	}
	return out, nil
}

// GetPublishedWork returns a published work with its chapters. Unpublished
// works are reported as missing to every caller.
func (a *App) GetPublishedWork(ctx context.Context, id int64) (WorkDetail, error) {
	work, ok, err := a.store.GetWork(ctx, id)
	if err != nil {
		return WorkDetail{}, fmt.Errorf("fetch work: %w", err)
	}
	if !ok || !work.IsPublished {
		return WorkDetail{}, ErrWorkNotFound
	}
	return a.detail(ctx, a.store, work)
}

// CreateWork adds a work owned by admin and creates its storage folder.
func (a *App) CreateWork(ctx context.Context, admin domain.Account, in WorkInput) (WorkDetail, error) {
	if !admin.IsAdmin() {
		return WorkDetail{}, ErrForbidden
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return WorkDetail{}, ErrTitleRequired
	}
	var created domain.Work
	err := a.store.WithTx(ctx, func(tx store.Store) error {
		uploader := admin.ID
		w, err := tx.CreateWork(ctx, domain.Work{
			Title:       title,
			Description: in.Description,
			UploadedBy:  &uploader,
		})
		if err != nil {
			return fmt.Errorf("create work: %w", err)
		}
		dir, err := a.layout.CreateWorkDir(w.ID)
		if err != nil {
			return err
		}
		w.FolderPath = &dir
		if err := tx.UpdateWork(ctx, w); err != nil {
			return fmt.Errorf("record work folder: %w", err)
		}
		created = w
		return nil
	})
	if err != nil {
		return WorkDetail{}, err
	}
	return WorkDetail{Work: created, Chapters: []domain.Chapter{}}, nil
}

// UpdateWork applies a partial update. Only the uploader or an admin may.
func (a *App) UpdateWork(ctx context.Context, actor domain.Account, id int64, upd WorkUpdate) (WorkDetail, error) {
	var out WorkDetail
	err := a.store.WithTx(ctx, func(tx store.Store) error {
		work, ok, err := tx.GetWork(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch work: %w", err)
		}
		if !ok {
			return ErrWorkNotFound
		}
		if !canManage(actor, work) {
			return ErrNotOwner
		}
		if upd.Title != nil {
			title := strings.TrimSpace(*upd.Title)
			if title == "" {
				return ErrTitleRequired
			}
			work.Title = title
		}
		if upd.Description != nil {
			work.Description = upd.Description
		}
		if upd.CoverImage != nil {
			work.CoverImage = upd.CoverImage
		}
		if upd.IsPublished != nil {
			work.IsPublished = *upd.IsPublished
		}
		if err := tx.UpdateWork(ctx, work); err != nil {
			return fmt.Errorf("update work: %w", err)
		}
		out, err = a.detail(ctx, tx, work)
		return err
	})
	return out, err
}

// DeleteWork removes a work, its chapters and its storage folder.
func (a *App) DeleteWork(ctx context.Context, admin domain.Account, id int64) error {
	if !admin.IsAdmin() {
		return ErrForbidden
	}
	return a.store.WithTx(ctx, func(tx store.Store) error {
		if _, ok, err := tx.GetWork(ctx, id); err != nil {
			return fmt.Errorf("fetch work: %w", err)
		} else if !ok {
			return ErrWorkNotFound
		}
		if err := tx.DeleteWork(ctx, id); err != nil {
			return fmt.Errorf("delete work: %w", err)
		}
		if err := a.layout.RemoveWorkDir(id); err != nil {
			return fmt.Errorf("remove work folder: %w", err)
		}
		return nil
	})
}

func (a *App) detail(ctx context.Context, s store.Store, work domain.Work) (WorkDetail, error) {
	chapters, err := s.ListChapters(ctx, work.ID)
	if err != nil {
		return WorkDetail{}, fmt.Errorf("list chapters: %w", err)
	}
	return WorkDetail{Work: work, Chapters: chapters}, nil
}

func canManage(actor domain.Account, work domain.Work) bool {
	return actor.IsAdmin() || work.OwnedBy(actor.ID)
}
