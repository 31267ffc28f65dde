package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/models"
)

// PostgresStore implements Store on top of a pgx connection pool. Unlike the
// flat backend it relies on the database for concurrency control.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database and verifies the connection.
func OpenPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the schema. Called from the setup command.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrationSQL := `
		CREATE TABLE IF NOT EXISTS users (
		    id BIGSERIAL PRIMARY KEY,
		    email VARCHAR(255) NOT NULL UNIQUE,
		    name VARCHAR(255) NOT NULL,
		    password_hash VARCHAR(255) NOT NULL,
		    admin BOOLEAN NOT NULL DEFAULT FALSE,
		    disabled BOOLEAN NOT NULL DEFAULT FALSE,
		    security_questions JSONB,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    last_login TIMESTAMP WITH TIME ZONE
		);

		CREATE TABLE IF NOT EXISTS messages (
		    id UUID PRIMARY KEY,
		    sender VARCHAR(255) NOT NULL,
		    recipient VARCHAR(255) NOT NULL,
		    subject TEXT NOT NULL,
		    body TEXT NOT NULL,
		    folder VARCHAR(16) NOT NULL,
		    read BOOLEAN NOT NULL DEFAULT FALSE,
		    starred BOOLEAN NOT NULL DEFAULT FALSE,
		    highlighted BOOLEAN NOT NULL DEFAULT FALSE,
		    verification BOOLEAN NOT NULL DEFAULT FALSE,
		    category VARCHAR(64) NOT NULL DEFAULT '',
		    seq BIGSERIAL,
		    created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
		CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);
	`

	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	questions, err := json.Marshal(user.SecurityQuestions)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to encode security questions: %w", err)
	}

	query := `
		INSERT INTO users (email, name, password_hash, admin, disabled, security_questions, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = s.pool.QueryRow(ctx, query,
		user.Email, user.Name, user.PasswordHash, user.Admin, user.Disabled,
		questions, user.CreatedAt, user.LastLogin,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, common.ErrAlreadyExists
		}
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var questions []byte
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.Admin, &user.Disabled, &questions, &user.CreatedAt, &user.LastLogin,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, common.ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &user.SecurityQuestions); err != nil {
			return models.User{}, fmt.Errorf("failed to parse security questions: %w", err)
		}
	}
	return user, nil
}

const userColumns = `id, email, name, password_hash, admin, disabled, security_questions, created_at, last_login`

func (s *PostgresStore) GetUser(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user models.User) error {
	questions, err := json.Marshal(user.SecurityQuestions)
	if err != nil {
		return fmt.Errorf("failed to encode security questions: %w", err)
	}

	query := `
		UPDATE users
		SET name = $2, password_hash = $3, admin = $4, disabled = $5,
		    security_questions = $6, created_at = $7, last_login = $8
		WHERE email = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		user.Email, user.Name, user.PasswordHash, user.Admin, user.Disabled,
		questions, user.CreatedAt, user.LastLogin,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

const messageColumns = `id, sender, recipient, subject, body, folder, read, starred, highlighted, verification, category, created_at`

func (s *PostgresStore) insertMessage(ctx context.Context, msg *models.Message) error {
	fillMessageDefaults(msg)

	query := `
		INSERT INTO messages (id, sender, recipient, subject, body, folder, read, starred, highlighted, verification, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		msg.ID, msg.From, msg.To, msg.Subject, msg.Body, msg.Folder,
		msg.Read, msg.Starred, msg.Highlighted, msg.Verification, msg.Category, msg.CreatedAt,
	)
	return err
}

func (s *PostgresStore) AddMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := s.insertMessage(ctx, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *PostgresStore) AddMessages(ctx context.Context, msgs []models.Message) ([]models.Message, error) {
	out := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		if err := s.insertMessage(ctx, &msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *PostgresStore) scanMessage(row pgx.Row) (models.Message, error) {
	var msg models.Message
	var id uuid.UUID
	err := row.Scan(
		&id, &msg.From, &msg.To, &msg.Subject, &msg.Body, &msg.Folder,
		&msg.Read, &msg.Starred, &msg.Highlighted, &msg.Verification, &msg.Category, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, common.ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msg.ID = id.String()
	return msg, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (models.Message, error) {
	msgID, err := uuid.Parse(id)
	if err != nil {
		return models.Message{}, common.ErrNotFound
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return s.scanMessage(s.pool.QueryRow(ctx, query, msgID))
}

func (s *PostgresStore) UpdateMessage(ctx context.Context, msg models.Message) error {
	msgID, err := uuid.Parse(msg.ID)
	if err != nil {
		return common.ErrNotFound
	}

	query := `
		UPDATE messages
		SET sender = $2, recipient = $3, subject = $4, body = $5, folder = $6,
		    read = $7, starred = $8, highlighted = $9, verification = $10, category = $11
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		msgID, msg.From, msg.To, msg.Subject, msg.Body, msg.Folder,
		msg.Read, msg.Starred, msg.Highlighted, msg.Verification, msg.Category,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, id string) error {
	msgID, err := uuid.Parse(id)
	if err != nil {
		return common.ErrNotFound
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, msgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY seq`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
