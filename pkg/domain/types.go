package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// ParseRole coerces anything other than "admin" or "user" to RoleUser.
func ParseRole(role string) UserRole {
	if UserRole(role) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Site configuration keys.
const (
	ConfigRegistrationEnabled = "registration_enabled"
)

type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the account carries the admin role.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type Work struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	CoverImage  *string   `json:"cover_image"`
	FolderPath  *string   `json:"-"`
	UploadedBy  *int64    `json:"uploaded_by"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
}

// OwnedBy reports whether accountID uploaded the work.
func (w Work) OwnedBy(accountID int64) bool {
	return w.UploadedBy != nil && *w.UploadedBy == accountID
}

type Chapter struct {
	ID            int64     `json:"id"`
	WorkID        int64     `json:"manga_id"`
	ChapterNumber int       `json:"chapter_number"`
	Title         *string   `json:"title"`
	FolderPath    *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type SiteConfig struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Value     *string   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats aggregates catalog counts for the admin dashboard.
type Stats struct {
	TotalUsers     int64 `json:"total_users"`
	TotalManga     int64 `json:"total_manga"`
	PublishedManga int64 `json:"published_manga"`
	TotalChapters  int64 `json:"total_chapters"`
}
