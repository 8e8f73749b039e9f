package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"mangareader/pkg/domain"
)

const migrateLockID int64 = 61626172

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB named by dsn and runs auto-migrations.
// postgres:// and postgresql:// URLs select Postgres; sqlite: and file:
// prefixes select the embedded SQLite driver.
func NewGormStore(dsn string) (*GormStore, error) {
	dialector, isSQLite, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&AccountModel{}, &WorkModel{}, &ChapterModel{}, &SiteConfigModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if isSQLite {
		err = migrate(db)
	} else {
		err = withMigrationLock(db, migrate)
	}
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, bool, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, false, errors.New("database URL required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), false, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(sqliteDSN(strings.TrimPrefix(dsn, "sqlite://"))), true, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(sqliteDSN(strings.TrimPrefix(dsn, "sqlite:"))), true, nil
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn), true, nil
	default:
		return nil, false, fmt.Errorf("unsupported database URL scheme: %q", dsn)
	}
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a single transaction.
func (s *GormStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// CreateAccount inserts an account and returns it with its assigned id.
func (s *GormStore) CreateAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	model := accountToModel(a)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Account{}, translate(err)
	}
	return accountFromModel(model), nil
}

// GetAccountByID returns an account by id.
func (s *GormStore) GetAccountByID(ctx context.Context, id int64) (domain.Account, bool, error) {
	return s.firstAccount(ctx, "id = ?", id)
}

// GetAccountByUsername looks up an account by username.
func (s *GormStore) GetAccountByUsername(ctx context.Context, username string) (domain.Account, bool, error) {
	return s.firstAccount(ctx, "username = ?", username)
}

// GetAccountByEmail looks up an account by email.
func (s *GormStore) GetAccountByEmail(ctx context.Context, email string) (domain.Account, bool, error) {
	return s.firstAccount(ctx, "email = ?", email)
}

func (s *GormStore) firstAccount(ctx context.Context, query string, arg any) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

// ListAccounts returns all accounts ordered by id.
func (s *GormStore) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var models []AccountModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Account, 0, len(models))
	for _, m := range models {
		res = append(res, accountFromModel(m))
	}
	return res, nil
}

// UpdateAccount writes every mutable account column.
func (s *GormStore) UpdateAccount(ctx context.Context, a domain.Account) error {
	err := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"username":        a.Username,
			"email":           a.Email,
			"hashed_password": a.PasswordHash,
			"role":            string(a.Role),
			"is_active":       a.IsActive,
		}).Error
	return translate(err)
}

// DeleteAccount clears the uploader reference on owned works, then removes the account.
func (s *GormStore) DeleteAccount(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&WorkModel{}).Where("uploaded_by = ?", id).Update("uploaded_by", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&AccountModel{}, "id = ?", id).Error
	})
}

// CountAccounts returns the number of accounts.
func (s *GormStore) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AccountModel{}).Count(&count).Error
	return count, err
}

// CreateWork inserts a work and returns it with its assigned id.
func (s *GormStore) CreateWork(ctx context.Context, w domain.Work) (domain.Work, error) {
	model := workToModel(w)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Work{}, translate(err)
	}
	return workFromModel(model), nil
}

// GetWork retrieves a work regardless of its published flag.
func (s *GormStore) GetWork(ctx context.Context, id int64) (domain.Work, bool, error) {
	var model WorkModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Work{}, false, nil
		}
		return domain.Work{}, false, err
	}
	return workFromModel(model), true, nil
}

// ListWorks returns works ordered by id, optionally only published ones.
func (s *GormStore) ListWorks(ctx context.Context, publishedOnly bool) ([]domain.Work, error) {
	var models []WorkModel
	tx := s.db.WithContext(ctx).Order("id ASC")
	if publishedOnly {
		tx = tx.Where("is_published = ?", true)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Work, 0, len(models))
	for _, m := range models {
		res = append(res, workFromModel(m))
	}
	return res, nil
}

// UpdateWork writes every mutable work column.
func (s *GormStore) UpdateWork(ctx context.Context, w domain.Work) error {
	return s.db.WithContext(ctx).Model(&WorkModel{}).
		Where("id = ?", w.ID).
		Updates(map[string]any{
			"title":        w.Title,
			"description":  w.Description,
			"cover_image":  w.CoverImage,
			"folder_path":  w.FolderPath,
			"uploaded_by":  w.UploadedBy,
			"is_published": w.IsPublished,
		}).Error
}

// DeleteWork removes the work's chapters and then the work itself.
func (s *GormStore) DeleteWork(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChapterModel{}, "manga_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&WorkModel{}, "id = ?", id).Error
	})
}

// CountWorks returns the number of works, optionally only published ones.
func (s *GormStore) CountWorks(ctx context.Context, publishedOnly bool) (int64, error) {
	var count int64
	tx := s.db.WithContext(ctx).Model(&WorkModel{})
	if publishedOnly {
		tx = tx.Where("is_published = ?", true)
	}
	err := tx.Count(&count).Error
	return count, err
}

// GetChapter returns a chapter by id.
func (s *GormStore) GetChapter(ctx context.Context, id int64) (domain.Chapter, bool, error) {
	return s.firstChapter(ctx, "id = ?", id)
}

// GetChapterByNumber returns the chapter of workID carrying number.
func (s *GormStore) GetChapterByNumber(ctx context.Context, workID int64, number int) (domain.Chapter, bool, error) {
	return s.firstChapter(ctx, "manga_id = ? AND chapter_number = ?", workID, number)
}

func (s *GormStore) firstChapter(ctx context.Context, query string, args ...any) (domain.Chapter, bool, error) {
	var model ChapterModel
	if err := s.db.WithContext(ctx).Where(query, args...).Order("id ASC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Chapter{}, false, nil
		}
		return domain.Chapter{}, false, err
	}
	return chapterFromModel(model), true, nil
}

// SaveChapter inserts c when it has no id, otherwise updates its title and folder.
func (s *GormStore) SaveChapter(ctx context.Context, c domain.Chapter) (domain.Chapter, error) {
	model := chapterToModel(c)
	if model.ID == 0 {
		if model.CreatedAt.IsZero() {
			model.CreatedAt = time.Now().UTC()
		}
		if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
			return domain.Chapter{}, translate(err)
		}
		return chapterFromModel(model), nil
	}
	err := s.db.WithContext(ctx).Model(&ChapterModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"title":       model.Title,
			"folder_path": model.FolderPath,
		}).Error
	if err != nil {
		return domain.Chapter{}, err
	}
	saved, ok, err := s.GetChapter(ctx, model.ID)
	if err != nil {
		return domain.Chapter{}, err
	}
	if !ok {
		return domain.Chapter{}, fmt.Errorf("chapter %d vanished during update", model.ID)
	}
	return saved, nil
}

// ListChapters returns chapters of a work ordered by chapter number.
func (s *GormStore) ListChapters(ctx context.Context, workID int64) ([]domain.Chapter, error) {
	var models []ChapterModel
	if err := s.db.WithContext(ctx).
		Where("manga_id = ?", workID).
		Order("chapter_number ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Chapter, 0, len(models))
	for _, m := range models {
		res = append(res, chapterFromModel(m))
	}
	return res, nil
}

// CountChapters returns the number of chapters across all works.
func (s *GormStore) CountChapters(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ChapterModel{}).Count(&count).Error
	return count, err
}

// CountChaptersByWork returns chapter counts keyed by work id. Works without
// chapters are absent from the map.
func (s *GormStore) CountChaptersByWork(ctx context.Context, workIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(workIDs))
	if len(workIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		WorkID int64
		Total  int64
	}
	if err := s.db.WithContext(ctx).Model(&ChapterModel{}).
		Select("manga_id AS work_id, COUNT(*) AS total").
		Where("manga_id IN ?", workIDs).
		Group("manga_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.WorkID] = row.Total
	}
	return out, nil
}

// GetConfig returns the site config entry for key.
func (s *GormStore) GetConfig(ctx context.Context, key string) (domain.SiteConfig, bool, error) {
	var model SiteConfigModel
	if err := s.db.WithContext(ctx).Where(`"key" = ?`, key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.SiteConfig{}, false, nil
		}
		return domain.SiteConfig{}, false, err
	}
	return configFromModel(model), true, nil
}

// SetConfig upserts the value stored under key.
func (s *GormStore) SetConfig(ctx context.Context, key, value string) error {
	model := SiteConfigModel{Key: key, Value: &value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model).Error
}

// AllConfig returns every site config entry keyed by name.
func (s *GormStore) AllConfig(ctx context.Context) (map[string]*string, error) {
	var models []SiteConfigModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*string, len(models))
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func accountToModel(a domain.Account) AccountModel {
	return AccountModel{
		ID:             a.ID,
		Username:       a.Username,
		Email:          a.Email,
		HashedPassword: a.PasswordHash,
		Role:           string(a.Role),
		IsActive:       a.IsActive,
		CreatedAt:      a.CreatedAt,
	}
}

func accountFromModel(m AccountModel) domain.Account {
	return domain.Account{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.HashedPassword,
		Role:         domain.ParseRole(m.Role),
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
}

func workToModel(w domain.Work) WorkModel {
	return WorkModel{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		CoverImage:  w.CoverImage,
		FolderPath:  w.FolderPath,
		UploadedBy:  w.UploadedBy,
		IsPublished: w.IsPublished,
		CreatedAt:   w.CreatedAt,
	}
}

func workFromModel(m WorkModel) domain.Work {
	return domain.Work{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		CoverImage:  m.CoverImage,
		FolderPath:  m.FolderPath,
		UploadedBy:  m.UploadedBy,
		IsPublished: m.IsPublished,
		CreatedAt:   m.CreatedAt,
	}
}

func chapterToModel(c domain.Chapter) ChapterModel {
	return ChapterModel{
		ID:            c.ID,
		WorkID:        c.WorkID,
		ChapterNumber: c.ChapterNumber,
		Title:         c.Title,
		FolderPath:    c.FolderPath,
		CreatedAt:     c.CreatedAt,
	}
}

func chapterFromModel(m ChapterModel) domain.Chapter {
	return domain.Chapter{
		ID:            m.ID,
		WorkID:        m.WorkID,
		ChapterNumber: m.ChapterNumber,
		Title:         m.Title,
		FolderPath:    m.FolderPath,
		CreatedAt:     m.CreatedAt,
	}
}

func configFromModel(m SiteConfigModel) domain.SiteConfig {
	return domain.SiteConfig{
		ID:        m.ID,
		Key:       m.Key,
		Value:     m.Value,
		UpdatedAt: m.UpdatedAt,
	}
}
