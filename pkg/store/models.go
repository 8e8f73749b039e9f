package store

import "time"

// GORM models used for persistence. Table names are users, manga, chapters and site_config.
type AccountModel struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Username       string `gorm:"size:50;uniqueIndex;not null"`
	Email          string `gorm:"size:100;uniqueIndex;not null"`
	HashedPassword string `gorm:"size:255;not null"`
	Role           string `gorm:"size:20;not null"`
	IsActive       bool   `gorm:"not null"`
	CreatedAt      time.Time
}

func (AccountModel) TableName() string { return "users" }

type WorkModel struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	Title       string  `gorm:"size:255;not null"`
	Description *string `gorm:"type:text"`
	CoverImage  *string `gorm:"size:500"`
	FolderPath  *string `gorm:"size:500"`
	UploadedBy  *int64  `gorm:"index"`
	IsPublished bool    `gorm:"not null;index"`
	CreatedAt   time.Time
}

func (WorkModel) TableName() string { return "manga" }

// ChapterModel keeps (manga_id, chapter_number) indexed but not unique;
// uniqueness is enforced by the upload upsert.
type ChapterModel struct {
	ID            int64   `gorm:"primaryKey;autoIncrement"`
	WorkID        int64   `gorm:"column:manga_id;not null;index:idx_chapters_manga_number,priority:1"`
	ChapterNumber int     `gorm:"not null;index:idx_chapters_manga_number,priority:2"`
	Title         *string `gorm:"size:255"`
	FolderPath    *string `gorm:"size:500"`
	CreatedAt     time.Time
}

func (ChapterModel) TableName() string { return "chapters" }

type SiteConfigModel struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	Key       string  `gorm:"size:50;uniqueIndex;not null"`
	Value     *string `gorm:"size:255"`
	UpdatedAt time.Time
}

func (SiteConfigModel) TableName() string { return "site_config" }
