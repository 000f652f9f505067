package storage

import (
	"context"
	"sync"

	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/domain/port"
)

// MemoryUserRepository in-memory хранилище пользователей бота.
// Наружу отдаются копии: обработчики сообщений работают в разных горутинах.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[int64]entity.User
}

// NewMemoryUserRepository создаёт новое in-memory хранилище
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[int64]entity.User),
	}
}

// Get возвращает пользователя по ID, создаёт нового если не найден.
// Чат обновляется, если пользователь написал из другого чата.
func (r *MemoryUserRepository) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[userID]
	switch {
	case !exists:
		user = *entity.NewUser(userID, chatID)
		r.users[userID] = user
	case user.ChatID != chatID:
		user.ChatID = chatID
		r.users[userID] = user
	}
	return &user, nil
}

// Save сохраняет копию пользователя
func (r *MemoryUserRepository) Save(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	r.users[user.ID] = *user
	r.mu.Unlock()

	return nil
}

// UpdateState меняет состояние известного пользователя; неизвестные игнорируются.
func (r *MemoryUserRepository) UpdateState(ctx context.Context, userID int64, state entity.UserState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, exists := r.users[userID]; exists {
		user.SetState(state)
		r.users[userID] = user
	}
	return nil
}

var _ port.UserRepository = (*MemoryUserRepository)(nil)
