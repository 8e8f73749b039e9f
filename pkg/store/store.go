package store

import (
	"context"
	"errors"

	"mangareader/pkg/domain"
)

// ErrDuplicate is returned when a write violates a unique column.
var ErrDuplicate = errors.New("duplicate key")

// Store defines persistence operations for accounts, works, chapters and site config.
type Store interface {
	// WithTx runs fn against a Store bound to one transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// accounts
	CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error)
	GetAccountByID(ctx context.Context, id int64) (domain.Account, bool, error)
	GetAccountByUsername(ctx context.Context, username string) (domain.Account, bool, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, bool, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, a domain.Account) error
	DeleteAccount(ctx context.Context, id int64) error
	CountAccounts(ctx context.Context) (int64, error)

	// works
	CreateWork(ctx context.Context, w domain.Work) (domain.Work, error)
	GetWork(ctx context.Context, id int64) (domain.Work, bool, error)
	ListWorks(ctx context.Context, publishedOnly bool) ([]domain.Work, error)
	UpdateWork(ctx context.Context, w domain.Work) error
	DeleteWork(ctx context.Context, id int64) error
	CountWorks(ctx context.Context, publishedOnly bool) (int64, error)

	// chapters
	GetChapter(ctx context.Context, id int64) (domain.Chapter, bool, error)
	GetChapterByNumber(ctx context.Context, workID int64, number int) (domain.Chapter, bool, error)
	SaveChapter(ctx context.Context, c domain.Chapter) (domain.Chapter, error)
	ListChapters(ctx context.Context, workID int64) ([]domain.Chapter, error)
	CountChapters(ctx context.Context) (int64, error)
	CountChaptersByWork(ctx context.Context, workIDs []int64) (map[int64]int64, error)

	// site config
	GetConfig(ctx context.Context, key string) (domain.SiteConfig, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	AllConfig(ctx context.Context) (map[string]*string, error)
}
