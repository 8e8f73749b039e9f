package app

import (
	"errors"

	"mangareader/pkg/archive"
	"mangareader/pkg/auth"
)

// ErrorKind classifies an app error for the transport layer.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

var (
	// bad request
	ErrInactiveAccount      = errors.New("Inactive user")
	ErrWrongPassword        = errors.New("Incorrect current password")
	ErrCannotDemoteSelf     = errors.New("Cannot remove your own admin role")
	ErrCannotDeactivateSelf = errors.New("Cannot deactivate yourself")
	ErrCannotDeleteSelf     = errors.New("Cannot delete yourself")
	ErrUsernameRequired     = errors.New("username required")
	ErrEmailRequired        = errors.New("email required")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrTitleRequired        = errors.New("title required")
	ErrInvalidChapterNumber = errors.New("chapter number must be a positive integer")
	ErrArchiveRequired      = errors.New("chapter archive required")
	ErrInvalidArchive       = errors.New("Invalid ZIP file")
	ErrConfigKeyRequired    = errors.New("config key required")

	// unauthorized
	// ErrUnauthorized deliberately does not say which check failed.
	ErrUnauthorized       = errors.New("Could not validate credentials")
	ErrInvalidCredentials = errors.New("Incorrect username or password")

	// forbidden
	ErrForbidden          = errors.New("Not enough permissions")
	ErrNotOwner           = errors.New("Not authorized")
	ErrRegistrationClosed = errors.New("Registration is closed. Please contact an administrator.")

	// not found
	ErrAccountNotFound  = errors.New("User not found")
	ErrWorkNotFound     = errors.New("Manga not found")
	ErrChapterNotFound  = errors.New("Chapter not found")
	ErrChapterFilesGone = errors.New("Chapter files not found")
	ErrPageNotFound     = errors.New("Page not found")
	ErrConfigNotFound   = errors.New("Config key not found")

	// conflict
	ErrUsernameTaken = errors.New("Username already registered")
	ErrEmailTaken    = errors.New("Email already registered")
	ErrAccountExists = errors.New("Username or email already registered")
)

var kinds = map[error]ErrorKind{
	ErrInactiveAccount:      KindBadRequest,
	ErrWrongPassword:        KindBadRequest,
	ErrCannotDemoteSelf:     KindBadRequest,
	ErrCannotDeactivateSelf: KindBadRequest,
	ErrCannotDeleteSelf:     KindBadRequest,
	ErrUsernameRequired:     KindBadRequest,
	ErrEmailRequired:        KindBadRequest,
	ErrInvalidEmail:         KindBadRequest,
	ErrTitleRequired:        KindBadRequest,
	ErrInvalidChapterNumber: KindBadRequest,
	ErrArchiveRequired:      KindBadRequest,
	ErrInvalidArchive:       KindBadRequest,
	ErrConfigKeyRequired:    KindBadRequest,

	auth.ErrPasswordRequired: KindBadRequest,
	auth.ErrPasswordTooLong:  KindBadRequest,

	ErrUnauthorized:       KindUnauthorized,
	ErrInvalidCredentials: KindUnauthorized,

	ErrForbidden:          KindForbidden,
	ErrNotOwner:           KindForbidden,
	ErrRegistrationClosed: KindForbidden,

	ErrAccountNotFound:  KindNotFound,
	ErrWorkNotFound:     KindNotFound,
	ErrChapterNotFound:  KindNotFound,
	ErrChapterFilesGone: KindNotFound,
	ErrPageNotFound:     KindNotFound,
	ErrConfigNotFound:   KindNotFound,

	ErrUsernameTaken: KindConflict,
	ErrEmailTaken:    KindConflict,
	ErrAccountExists: KindConflict,
}

// Kind returns the classification of err, walking its wrap chain.
// Unknown errors are internal.
func Kind(err error) ErrorKind {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if k, ok := kinds[e]; ok {
			return k
		}
	}
	if errors.Is(err, archive.ErrCorrupt) {
		return KindBadRequest
	}
	return KindInternal
}

// Public returns the caller-facing sentinel inside err, or nil for internal errors.
func Public(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if _, ok := kinds[e]; ok {
			return e
		}
	}
	return nil
}
