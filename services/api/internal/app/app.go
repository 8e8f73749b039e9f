package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"mangareader/pkg/auth"
	"mangareader/pkg/domain"
	"mangareader/pkg/storage"
	"mangareader/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	StoragePath string
	SecretKey   string
	TokenTTL    time.Duration
	JWTIssuer   string
	JWTAudience string

	// Store replaces the database built from DatabaseURL. Tests use it.
	Store store.Store
	// Now overrides the token clock.
	Now func() time.Time
}

// App composes the catalog store, the token service and chapter storage.
type App struct {
	store  store.Store
	closer io.Closer
	tokens *auth.TokenService
	layout *storage.Layout
	locks  *storage.ChapterLock
}

// New builds the application. The store, when built here, is owned by the
// App and released by Close.
func New(cfg Config) (*App, error) {
	tokens, err := auth.NewTokenService(auth.TokenOptions{
		Secret:   cfg.SecretKey,
		TTL:      cfg.TokenTTL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Now:      cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}
	layout, err := storage.NewLayout(cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	a := &App{tokens: tokens, layout: layout, locks: storage.NewChapterLock()}
	if cfg.Store != nil {
		a.store = cfg.Store
		return a, nil
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("database URL required")
	}
	gs, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init catalog store: %w", err)
	}
	a.store = gs
	a.closer = gs
	return a, nil
}

// Close releases the store if New opened it.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// TokenTTL returns the lifetime of issued access tokens.
func (a *App) TokenTTL() time.Duration {
	return a.tokens.TTL()
}

// SeedAdmin creates the first admin account when no accounts exist, and
// closes self-registration unless an operator already configured it.
// It reports whether an account was created.
func (a *App) SeedAdmin(ctx context.Context, username, email, password string) (bool, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return false, nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	created := false
	err = a.store.WithTx(ctx, func(tx store.Store) error {
		n, err := tx.CountAccounts(ctx)
		if err != nil {
			return fmt.Errorf("count accounts: %w", err)
		}
		if n > 0 {
			return nil
		}
		if _, err := tx.CreateAccount(ctx, domain.Account{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			Role:         domain.RoleAdmin,
			IsActive:     true,
		}); err != nil {
			return fmt.Errorf("create seed admin: %w", err)
		}
		if _, ok, err := tx.GetConfig(ctx, domain.ConfigRegistrationEnabled); err != nil {
			return fmt.Errorf("read registration flag: %w", err)
		} else if !ok {
			if err := tx.SetConfig(ctx, domain.ConfigRegistrationEnabled, "false"); err != nil {
				return fmt.Errorf("close registration: %w", err)
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		slog.Info("seed admin created", "username", username)
	}
	return created, nil
}

// Stats returns catalog totals. The four counts run concurrently.
func (a *App) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalUsers, err = a.store.CountAccounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalManga, err = a.store.CountWorks(gctx, false)
		return err
	})
	g.Go(func() (err error) {
		stats.PublishedManga, err = a.store.CountWorks(gctx, true)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalChapters, err = a.store.CountChapters(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Stats{}, fmt.Errorf("count catalog: %w", err)
	}
	return stats, nil
}
