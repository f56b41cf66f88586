// Package app wires the stagehand sample services: a user registration
// orchestrator, a periodic user summary orchestrator, and the HTTP surface
// that fronts them.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gferrors "github.com/vnykmshr/stagehand/pkg/common/errors"
	"github.com/vnykmshr/stagehand/pkg/store"
)

// Storage key layout.
const (
	userKeyPrefix  = "user:"
	emailKeyPrefix = "email:"
	summaryKey     = "summary:latest"
)

// ErrEmailTaken is returned when a registration reuses an email address.
var ErrEmailTaken = errors.New("email already registered")

// User is a registered account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterRequest is the registration input.
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func userKey(id string) string {
	return userKeyPrefix + id
}

func emailKey(email string) string {
	return emailKeyPrefix + strings.ToLower(email)
}

// GetUser loads a user by id. Missing users wrap gferrors.ErrNotFound.
func GetUser(ctx context.Context, s store.Store, id string) (User, error) {
	var u User
	if err := store.GetJSON(ctx, s, userKey(id), &u); err != nil {
		if gferrors.IsNotFound(err) {
			return User{}, fmt.Errorf("user %s: %w", id, gferrors.ErrNotFound)
		}
		return User{}, err
	}
	return u, nil
}
