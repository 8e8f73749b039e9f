package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"mangareader/pkg/auth"
	"mangareader/pkg/domain"
	"mangareader/pkg/store"
)

// AccountInput carries the fields of a new account.
type AccountInput struct {
	Username string
	Email    string
	Password string
	// Role is honored only for admin-created accounts.
	Role string
}

// AccountUpdate is a partial update; nil fields are left unchanged.
type AccountUpdate struct {
	Username *string
	Email    *string
	Role     *string
	IsActive *bool
	Password *string
}

// dummyHash keeps login timing similar when the username does not exist.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z2bY0x5V3rTjG4y1Z6m3QK8e"

// RegistrationAllowed reports whether self-registration is open.
func (a *App) RegistrationAllowed(ctx context.Context) (bool, error) {
	return registrationEnabled(ctx, a.store)
}

// Register creates a user-role account when registration is open.
func (a *App) Register(ctx context.Context, in AccountInput) (domain.Account, error) {
	in, hash, err := prepareAccount(in)
	if err != nil {
		return domain.Account{}, err
	}
	var created domain.Account
	err = a.store.WithTx(ctx, func(tx store.Store) error {
		open, err := registrationEnabled(ctx, tx)
		if err != nil {
			return err
		}
		if !open {
			return ErrRegistrationClosed
		}
		created, err = createAccount(ctx, tx, in, hash, domain.RoleUser)
		return err
	})
	return created, err
}

// CreateAccount is the admin path; any role other than admin becomes user.
func (a *App) CreateAccount(ctx context.Context, in AccountInput) (domain.Account, error) {
	in, hash, err := prepareAccount(in)
	if err != nil {
		return domain.Account{}, err
	}
	var created domain.Account
	err = a.store.WithTx(ctx, func(tx store.Store) error {
		created, err = createAccount(ctx, tx, in, hash, domain.ParseRole(strings.TrimSpace(in.Role)))
		return err
	})
	return created, err
}

// Login checks credentials and returns a signed access token.
func (a *App) Login(ctx context.Context, username, password string) (string, domain.Account, error) {
	account, ok, err := a.store.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", domain.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	if !ok {
		auth.CheckPassword(password, dummyHash)
		return "", domain.Account{}, ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, account.PasswordHash) {
		return "", domain.Account{}, ErrInvalidCredentials
	}
	if !account.IsActive {
		return "", domain.Account{}, ErrInactiveAccount
	}
	token, err := a.tokens.Issue(strconv.FormatInt(account.ID, 10))
	if err != nil {
		return "", domain.Account{}, fmt.Errorf("issue token: %w", err)
	}
	return token, account, nil
}

// ChangePassword replaces the caller's password after verifying the current one.
func (a *App) ChangePassword(ctx context.Context, actor domain.Account, current, next string) error {
	if !auth.CheckPassword(current, actor.PasswordHash) {
		return ErrWrongPassword
	}
	if err := auth.ValidatePassword(next); err != nil {
		return err
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.store.WithTx(ctx, func(tx store.Store) error {
		fresh, ok, err := tx.GetAccountByID(ctx, actor.ID)
		if err != nil {
			return fmt.Errorf("fetch account: %w", err)
		}
		if !ok {
			return ErrAccountNotFound
		}
		fresh.PasswordHash = hash
		if err := tx.UpdateAccount(ctx, fresh); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return nil
	})
}

// DeleteOwnAccount removes the caller. Works they uploaded stay, unowned.
func (a *App) DeleteOwnAccount(ctx context.Context, actor domain.Account) error {
	if err := a.store.DeleteAccount(ctx, actor.ID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// ListAccounts returns every account ordered by id.
func (a *App) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := a.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount applies an admin's partial update to account id.
func (a *App) UpdateAccount(ctx context.Context, admin domain.Account, id int64, upd AccountUpdate) (domain.Account, error) {
	var hash string
	if upd.Password != nil {
		if err := auth.ValidatePassword(*upd.Password); err != nil {
			return domain.Account{}, err
		}
		var err error
		if hash, err = auth.HashPassword(*upd.Password); err != nil {
			return domain.Account{}, fmt.Errorf("hash password: %w", err)
		}
	}
	var updated domain.Account
	err := a.store.WithTx(ctx, func(tx store.Store) error {
		target, ok, err := tx.GetAccountByID(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch account: %w", err)
		}
		if !ok {
			return ErrAccountNotFound
		}
		self := target.ID == admin.ID
		if upd.Role != nil && strings.TrimSpace(*upd.Role) != "" {
			role := domain.ParseRole(strings.TrimSpace(*upd.Role))
			if self && role != domain.RoleAdmin {
				return ErrCannotDemoteSelf
			}
			target.Role = role
		}
		if upd.IsActive != nil {
			if self && !*upd.IsActive {
				return ErrCannotDeactivateSelf
			}
			target.IsActive = *upd.IsActive
		}
		if upd.Username != nil {
			username := strings.TrimSpace(*upd.Username)
			if username == "" {
				return ErrUsernameRequired
			}
			if username != target.Username {
				if err := ensureUsernameFree(ctx, tx, username); err != nil {
					return err
				}
			}
			target.Username = username
		}
		if upd.Email != nil {
			email, err := normalizeEmail(*upd.Email)
			if err != nil {
				return err
			}
			if !strings.EqualFold(email, target.Email) {
				if err := ensureEmailFree(ctx, tx, email); err != nil {
					return err
				}
			}
			target.Email = email
		}
		if hash != "" {
			target.PasswordHash = hash
		}
		if err := tx.UpdateAccount(ctx, target); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrAccountExists
			}
			return fmt.Errorf("update account: %w", err)
		}
		updated = target
		return nil
	})
	return updated, err
}

// DeleteAccount removes account id on an admin's behalf.
func (a *App) DeleteAccount(ctx context.Context, admin domain.Account, id int64) error {
	if id == admin.ID {
		return ErrCannotDeleteSelf
	}
	return a.store.WithTx(ctx, func(tx store.Store) error {
		if _, ok, err := tx.GetAccountByID(ctx, id); err != nil {
			return fmt.Errorf("fetch account: %w", err)
		} else if !ok {
			return ErrAccountNotFound
		}
		if err := tx.DeleteAccount(ctx, id); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
}

func prepareAccount(in AccountInput) (AccountInput, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return in, "", ErrUsernameRequired
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return in, "", err
	}
	in.Email = email
	if err := auth.ValidatePassword(in.Password); err != nil {
		return in, "", err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return in, "", fmt.Errorf("hash password: %w", err)
	}
	return in, hash, nil
}

func createAccount(ctx context.Context, tx store.Store, in AccountInput, hash string, role domain.UserRole) (domain.Account, error) {
	if err := ensureUsernameFree(ctx, tx, in.Username); err != nil {
		return domain.Account{}, err
	}
	if err := ensureEmailFree(ctx, tx, in.Email); err != nil {
		return domain.Account{}, err
	}
	created, err := tx.CreateAccount(ctx, domain.Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Account{}, ErrAccountExists
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}
	return created, nil
}

func ensureUsernameFree(ctx context.Context, s store.Store, username string) error {
	_, taken, err := s.GetAccountByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		return ErrUsernameTaken
	}
	return nil
}

func ensureEmailFree(ctx context.Context, s store.Store, email string) error {
	_, taken, err := s.GetAccountByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func registrationEnabled(ctx context.Context, s store.Store) (bool, error) {
	cfg, ok, err := s.GetConfig(ctx, domain.ConfigRegistrationEnabled)
	if err != nil {
		return false, fmt.Errorf("read registration flag: %w", err)
	}
	return ok && cfg.Value != nil && *cfg.Value == "true", nil
}
