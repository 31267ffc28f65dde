// Package identity maps email addresses to user records and owns credential
// hashing. Passwords and security answers are stored as bcrypt hashes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/models"
	"github.com/lettermill/lettermill/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Registry resolves and registers user accounts. The configured admin email
// has its admin flag re-asserted on every lookup.
type Registry struct {
	store      store.Store
	adminEmail string
}

func NewRegistry(st store.Store, adminEmail string) *Registry {
	return &Registry{store: st, adminEmail: adminEmail}
}

// HashPassword bcrypt-hashes a password or security answer.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// NormalizeAnswer canonicalizes a security answer before hashing/checking so
// casing and surrounding whitespace do not matter.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}

// EnsureAdmin idempotently seeds the privileged account. The password hash is
// refreshed from configuration on every startup; the original creation
// timestamp is preserved when the record already exists.
func (r *Registry) EnsureAdmin(ctx context.Context, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	existing, err := r.store.GetUser(ctx, r.adminEmail)
	if err == nil {
		existing.Admin = true
		existing.Disabled = false
		existing.PasswordHash = hash
		if err := r.store.UpdateUser(ctx, existing); err != nil {
			return fmt.Errorf("failed to update admin account: %w", err)
		}
		return nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	admin := models.User{
		Email:        r.adminEmail,
		Name:         "Administrator",
		PasswordHash: hash,
		Admin:        true,
	}
	if _, err := r.store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	log.Printf("Seeded admin account %s", r.adminEmail)
	return nil
}

// Find returns the user record for the given email, or common.ErrNotFound.
func (r *Registry) Find(ctx context.Context, email string) (models.User, error) {
	user, err := r.store.GetUser(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	// The designated admin address is always privileged, regardless of what
	// the stored record says.
	if user.Email == r.adminEmail {
		user.Admin = true
	}
	return user, nil
}

// SecurityQA is a plaintext question/answer pair supplied at registration.
type SecurityQA struct {
	Question string
	Answer   string
}

// Register creates a new account. Login never auto-creates accounts, so this
// is the only path that introduces a non-admin user. Returns
// common.ErrAlreadyExists for a duplicate email.
func (r *Registry) Register(ctx context.Context, email, name, password string, questions []SecurityQA) (models.User, error) {
	if email == "" || password == "" {
		return models.User{}, common.ErrValidation
	}
	if name == "" {
		name = email
	}

	hash, err := HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	for _, qa := range questions {
		answerHash, err := HashPassword(NormalizeAnswer(qa.Answer))
		if err != nil {
			return models.User{}, err
		}
		user.SecurityQuestions = append(user.SecurityQuestions, models.SecurityQuestion{
			Question:   qa.Question,
			AnswerHash: answerHash,
		})
	}

	return r.store.CreateUser(ctx, user)
}

// SetPassword replaces the user's password hash. Used by the reset flow.
func (r *Registry) SetPassword(ctx context.Context, email, password string) error {
	user, err := r.store.GetUser(ctx, email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return r.store.UpdateUser(ctx, user)
}

// SetDisabled flips the account's disabled flag.
func (r *Registry) SetDisabled(ctx context.Context, email string, disabled bool) error {
	user, err := r.store.GetUser(ctx, email)
	if err != nil {
		return err
	}
	user.Disabled = disabled
	return r.store.UpdateUser(ctx, user)
}
