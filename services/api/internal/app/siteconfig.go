package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mangareader/pkg/domain"
)

// GetConfig returns one site configuration entry.
func (a *App) GetConfig(ctx context.Context, key string) (domain.SiteConfig, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.SiteConfig{}, ErrConfigKeyRequired
	}
	cfg, ok, err := a.store.GetConfig(ctx, key)
	if err != nil {
		return domain.SiteConfig{}, fmt.Errorf("read config: %w", err)
	}
	if !ok {
		return domain.SiteConfig{}, ErrConfigNotFound
	}
	return cfg, nil
}

// SetConfig upserts key.
func (a *App) SetConfig(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrConfigKeyRequired
	}
	if err := a.store.SetConfig(ctx, key, value); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// AllConfig returns every entry as key to value.
func (a *App) AllConfig(ctx context.Context) (map[string]*string, error) {
	all, err := a.store.AllConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return all, nil
}

// SetRegistrationEnabled opens or closes self-registration.
func (a *App) SetRegistrationEnabled(ctx context.Context, enabled bool) error {
	return a.SetConfig(ctx, domain.ConfigRegistrationEnabled, strconv.FormatBool(enabled))
}
