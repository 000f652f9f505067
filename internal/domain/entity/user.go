package entity

// UserState состояние пользователя в диалоге с ботом
type UserState string

const (
	StateMainMenu     UserState = "main_menu"     // В главном меню
	StateAwaitingScan UserState = "awaiting_scan" // Ожидание снимка МРТ
	StateProcessing   UserState = "processing"    // Снимок анализируется
)

// User представляет пользователя бота
type User struct {
	ID           int64     // Telegram User ID
	ChatID       int64     // Telegram Chat ID
	State        UserState // Текущее состояние пользователя
	ScansChecked int       // Сколько снимков проверено
}

// NewUser создаёт нового пользователя с начальным состоянием
func NewUser(userID, chatID int64) *User {
	return &User{
		ID:     userID,
		ChatID: chatID,
		State:  StateMainMenu,
	}
}

// SetState обновляет состояние пользователя
func (u *User) SetState(state UserState) {
	u.State = state
}

// Busy true, пока снимок пользователя в обработке
func (u *User) Busy() bool {
	return u.State == StateProcessing
}
