package app

import (
	"context"
	"fmt"
	"strconv"

	"mangareader/pkg/domain"
)

// CurrentAccount resolves a raw bearer token to an active account.
func (a *App) CurrentAccount(ctx context.Context, token string) (domain.Account, error) {
	subject, err := a.tokens.Validate(token)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.Account{}, fmt.Errorf("%w: malformed subject", ErrUnauthorized)
	}
	account, ok, err := a.store.GetAccountByID(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		return domain.Account{}, fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
	}
	if !account.IsActive {
		return domain.Account{}, fmt.Errorf("%w: account inactive", ErrUnauthorized)
	}
	return account, nil
}

// RequireAdmin is CurrentAccount plus an admin role check.
func (a *App) RequireAdmin(ctx context.Context, token string) (domain.Account, error) {
	account, err := a.CurrentAccount(ctx, token)
	if err != nil {
		return domain.Account{}, err
	}
	if !account.IsAdmin() {
		return domain.Account{}, ErrForbidden
	}
	return account, nil
}
