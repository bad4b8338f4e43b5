package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// Contact is the delivery contact remembered on the profile.
type Contact struct {
	Name    string
	Phone   string
	Address string
}

// User is a storefront account. Credentials live with the login service.
type User struct {
	ID      string
	Email   string
	Role    string
	Contact Contact
}

// Repository provides user lookup and shipping-info persistence.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateContact(ctx context.Context, id string, c Contact) error
}
