package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lettermill/lettermill/internal/common"
	"github.com/lettermill/lettermill/internal/models"
)

const (
	usersFile    = "users.json"
	messagesFile = "messages.json"
)

// FlatStore keeps both collections fully in memory and rewrites the backing
// JSON file wholesale after every mutation (write-through). A missing file is
// treated as an empty collection. A single RWMutex guards the in-memory state
// and the file writes, so concurrent request handlers and the background
// poller cannot interleave their read-modify-write cycles.
type FlatStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	messages   []models.Message
	nextUserID int64
	dir        string
}

// OpenFlat loads (or initializes) the two collections under dir.
func OpenFlat(dir string) (*FlatStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &FlatStore{
		users:      make(map[string]models.User),
		messages:   nil,
		nextUserID: 1,
		dir:        dir,
	}

	if err := s.loadUsers(); err != nil {
		return nil, err
	}
	if err := s.loadMessages(); err != nil {
		return nil, err
	}

	for _, u := range s.users {
		if u.ID >= s.nextUserID {
			s.nextUserID = u.ID + 1
		}
	}

	return s, nil
}

func (s *FlatStore) loadUsers() error {
	data, err := os.ReadFile(filepath.Join(s.dir, usersFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", usersFile, err)
	}
	if err := json.Unmarshal(data, &s.users); err != nil {
		return fmt.Errorf("failed to parse %s: %w", usersFile, err)
	}
	return nil
}

func (s *FlatStore) loadMessages() error {
	data, err := os.ReadFile(filepath.Join(s.dir, messagesFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", messagesFile, err)
	}
	if err := json.Unmarshal(data, &s.messages); err != nil {
		return fmt.Errorf("failed to parse %s: %w", messagesFile, err)
	}
	return nil
}

// saveUsers and saveMessages must be called with the write lock held.
func (s *FlatStore) saveUsers() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode users: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, usersFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", usersFile, err)
	}
	return nil
}

func (s *FlatStore) saveMessages() error {
	msgs := s.messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, messagesFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", messagesFile, err)
	}
	return nil
}

func (s *FlatStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Email]; exists {
		return models.User{}, common.ErrAlreadyExists
	}

	user.ID = s.nextUserID
	s.nextUserID++
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.users[user.Email] = user

	if err := s.saveUsers(); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *FlatStore) GetUser(ctx context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return models.User{}, common.ErrNotFound
	}
	return user, nil
}

func (s *FlatStore) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return models.User{}, common.ErrNotFound
}

func (s *FlatStore) UpdateUser(ctx context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Email]; !ok {
		return common.ErrNotFound
	}
	s.users[user.Email] = user
	return s.saveUsers()
}

func (s *FlatStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users, nil
}

func fillMessageDefaults(msg *models.Message) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
}

func (s *FlatStore) AddMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fillMessageDefaults(&msg)
	s.messages = append(s.messages, msg)

	if err := s.saveMessages(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *FlatStore) AddMessages(ctx context.Context, msgs []models.Message) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		fillMessageDefaults(&msg)
		s.messages = append(s.messages, msg)
		out = append(out, msg)
	}

	if err := s.saveMessages(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FlatStore) GetMessage(ctx context.Context, id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, msg := range s.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return models.Message{}, common.ErrNotFound
}

func (s *FlatStore) UpdateMessage(ctx context.Context, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			s.messages[i] = msg
			return s.saveMessages()
		}
	}
	return common.ErrNotFound
}

func (s *FlatStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return s.saveMessages()
		}
	}
	return common.ErrNotFound
}

func (s *FlatStore) ListMessages(ctx context.Context) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs, nil
}

func (s *FlatStore) Close() {}
