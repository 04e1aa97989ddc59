package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/irsalhamdi/course-shop/database"
	"github.com/jmoiron/sqlx"
)

// ErrEmailTaken is returned when another account already uses the email.
var ErrEmailTaken = errors.New("user already exists")

const emailConstraint = "users_email_key"

func Create(ctx context.Context, db sqlx.ExtContext, u User) error {
	const q = `
	INSERT INTO users
		(user_id, name, email, password_hash, role, created_at, updated_at)
	VALUES
		(:user_id, :name, :email, :password_hash, :role, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, u); err != nil {
		if database.IsDuplicate(err, emailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (User, error) {
	const q = `
	SELECT user_id, name, email, password_hash, role, created_at, updated_at
	FROM users
	WHERE user_id = $1`

	var u User
	if err := sqlx.GetContext(ctx, db, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, database.ErrDBNotFound
		}
		return User{}, fmt.Errorf("selecting user[%s]: %w", id, err)
	}
	return u, nil
}

func FetchByEmail(ctx context.Context, db sqlx.ExtContext, email string) (User, error) {
	const q = `
	SELECT user_id, name, email, password_hash, role, created_at, updated_at
	FROM users
	WHERE email = $1`

	var u User
	if err := sqlx.GetContext(ctx, db, &u, q, NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, database.ErrDBNotFound
		}
		return User{}, fmt.Errorf("selecting user by email: %w", err)
	}
	return u, nil
}

// NormalizeEmail is applied to every email before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
