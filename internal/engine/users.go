package engine

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"baulot/internal/domain"
	"baulot/internal/events"
	"baulot/internal/repo"
)

// ErrInvalidCredentials is returned by Authenticate for any login failure.
var ErrInvalidCredentials = errors.New("invalid email or password")

const minPasswordLength = 8

// dummyHash keeps Authenticate's timing similar for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("baulot-unknown-user"), bcrypt.DefaultCost)

type NewUser struct {
	Email    string
	Name     string
	Role     domain.Role
	Password string
	ActorID  string
}

func (e Engine) CreateUser(ctx context.Context, in NewUser) (domain.User, error) {
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, invalid("email", "%q is not an email address", in.Email)
	}
	if !in.Role.Valid() {
		return domain.User{}, invalid("role", "must be architect, contractor or client")
	}
	if len(in.Password) < minPasswordLength {
		return domain.User{}, invalid("password", "must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		ID:           newID(),
		Email:        strings.ToLower(email),
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		PasswordHash: string(hash),
		CreatedAt:    e.timestamp(),
	}
	actor := in.ActorID
	if actor == "" {
		actor = u.ID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return domain.User{}, invalid("email", "%s is already registered", u.Email)
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: events.UserCreated, EntityKind: "user", EntityID: u.ID, ActorID: actor,
		Payload: events.Payload{"email": u.Email, "role": u.Role},
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate checks an email/password pair.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repo.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx, role)
}
