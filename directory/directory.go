// Package directory abstracts the groupware user directory the bridge
// mirrors from. The bridge never owns directory state; it only reads
// identities and reacts to lifecycle events.
package directory

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserNotFound indicates the directory has no user with the given id.
var ErrUserNotFound = errors.New("directory user not found")

// User is a directory identity as the bridge sees it. Email is nil when the
// directory has no address on file for the user.
type User struct {
	UID         string
	DisplayName string
	Email       *string
}

// Provider resolves directory identities and derives the password hash to
// mirror for a user.
type Provider interface {
	GetUser(ctx context.Context, uid string) (*User, error)
	PasswordHash(ctx context.Context, uid string) (string, error)
}

// PasswordUpdatedEvent is the notification delivered by the directory when
// a user's password is updated. By the issuing system's convention it also
// fires on generic profile edits, so display name and email ride along.
type PasswordUpdatedEvent struct {
	UID          string  `json:"uid"`
	DisplayName  string  `json:"displayName"`
	PasswordHash string  `json:"passwordHash"`
	Email        *string `json:"email"`
}

// HashPassword derives the mirrored password hash from raw password
// material using bcrypt.
func HashPassword(material string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(material), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
