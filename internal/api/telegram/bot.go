package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	app "mri-classifier/internal/application"
	"mri-classifier/internal/domain/entity"
)

const (
	msgStart = `👋 Привет! Я бот для анализа МРТ-снимков головного мозга.

🧠 Отправьте мне снимок, и я определю один из классов: глиома, менингиома, опухоль гипофиза или отсутствие опухоли.

📋 Команды:
/check — проверить снимок
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте МРТ-снимок (фото или файл PNG/JPEG)
2️⃣ Бот выделит область мозга и прогонит её через нейросеть
3️⃣ Вы получите класс, уверенность и распределение вероятностей

💡 Рекомендации:
• Отправляйте срез целиком, без подписей поверх снимка
• Файлом качество лучше, чем сжатым фото

⚠️ Результат не является медицинским заключением.

📋 Команды:
/check — проверить снимок
/cancel — отменить операцию`

	msgAwaitingScan     = "🧠 Отправьте МРТ-снимок для проверки."
	msgCancelled        = "❌ Операция отменена. Отправьте /check для новой проверки."
	msgSendScan         = "🧠 Пожалуйста, отправьте МРТ-снимок (фото или файл изображения)."
	msgUnknownCommand   = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing       = "⏳ Анализирую снимок..."
	msgBusy             = "⏳ Предыдущий снимок ещё обрабатывается, подождите."
	msgNotImage         = "⚠️ Файл не похож на изображение. Отправьте PNG или JPEG."
	msgInvalidImage     = "⚠️ Не удалось прочитать снимок. Попробуйте другой файл."
	msgModelUnavailable = "⚠️ Модель сейчас недоступна. Попробуйте позже."
	msgProcessingError  = "⚠️ Не удалось обработать снимок. Попробуйте ещё раз."
)

var labelTitles = map[entity.Label]string{
	entity.LabelGlioma:     "глиома",
	entity.LabelMeningioma: "менингиома",
	entity.LabelPituitary:  "опухоль гипофиза",
	entity.LabelNoTumor:    "опухоль не обнаружена",
}

// botAPI часть tgbotapi.BotAPI, которой пользуется бот.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Options ограничения обработки снимков.
type Options struct {
	Timeout      time.Duration
	MaxFileBytes int64
}

// Bot представляет Telegram-бота
type Bot struct {
	api         botAPI
	updates     func() tgbotapi.UpdatesChannel
	stop        func()
	users       *app.UserService
	predictions *app.PredictionService
	client      *http.Client
	opts        Options
	log         *zap.Logger
}

// NewBot создаёт нового бота
func NewBot(token string, users *app.UserService, predictions *app.PredictionService, opts Options, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newBot(api, users, predictions, opts, log)
	b.log.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	b.updates = func() tgbotapi.UpdatesChannel {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		return api.GetUpdatesChan(u)
	}
	b.stop = api.StopReceivingUpdates
	return b, nil
}

func newBot(api botAPI, users *app.UserService, predictions *app.PredictionService, opts Options, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 10 << 20
	}
	return &Bot{
		api:         api,
		users:       users,
		predictions: predictions,
		client:      &http.Client{Timeout: opts.Timeout},
		opts:        opts,
		log:         log,
	}
}

// Run запускает основной цикл обработки сообщений до отмены ctx
func (b *Bot) Run(ctx context.Context) error {
	updates := b.updates()
	defer b.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	user, err := b.users.Get(ctx, msg.From.ID, msg.Chat.ID)
	if err != nil {
		b.log.Error("get user", zap.Error(err))
		return
	}

	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	fileID, ok := scanFileID(msg)
	if !ok {
		if msg.Document != nil {
			b.sendMessage(msg.Chat.ID, msgNotImage)
			return
		}
		b.sendMessage(msg.Chat.ID, msgSendScan)
		return
	}

	if user.Busy() {
		b.sendMessage(msg.Chat.ID, msgBusy)
		return
	}

	b.handleScan(ctx, msg, fileID)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	var err error
	switch msg.Command() {
	case "start":
		_, err = b.users.Cancel(ctx, msg.From.ID, msg.Chat.ID)
		b.sendMessage(msg.Chat.ID, msgStart)

	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)

	case "check":
		_, err = b.users.BeginCheck(ctx, msg.From.ID, msg.Chat.ID)
		b.sendMessage(msg.Chat.ID, msgAwaitingScan)

	case "cancel":
		_, err = b.users.Cancel(ctx, msg.From.ID, msg.Chat.ID)
		b.sendMessage(msg.Chat.ID, msgCancelled)

	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
	if err != nil {
		b.log.Error("update user state", zap.Error(err))
	}
}

// handleScan скачивает снимок и отправляет результат классификации
func (b *Bot) handleScan(ctx context.Context, msg *tgbotapi.Message, fileID string) {
	userID, chatID := msg.From.ID, msg.Chat.ID
	if _, err := b.users.StartProcessing(ctx, userID, chatID); err != nil {
		b.log.Error("update user state", zap.Error(err))
		return
	}

	b.sendMessage(chatID, msgProcessing)

	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	reply, err := b.classify(ctx, fileID)
	if err != nil {
		b.log.Warn("telegram scan failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	if _, err := b.users.FinishProcessing(context.WithoutCancel(ctx), userID, chatID, err == nil); err != nil {
		b.log.Error("update user state", zap.Error(err))
	}
	b.sendMessage(chatID, reply)
}

func (b *Bot) classify(ctx context.Context, fileID string) (string, error) {
	imageData, err := b.downloadFile(ctx, fileID)
	if err != nil {
		return msgProcessingError, err
	}

	res, err := b.predictions.Predict(ctx, app.SourceTelegram, imageData)
	switch {
	case err == nil:
		return formatPrediction(res), nil
	case errors.Is(err, entity.ErrDecode), errors.Is(err, entity.ErrInvalidImage):
		return msgInvalidImage, err
	case errors.Is(err, entity.ErrModelNotLoaded):
		return msgModelUnavailable, err
	default:
		return msgProcessingError, err
	}
}

// scanFileID выбирает фото максимального размера или документ-изображение.
func scanFileID(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, true
	}
	return "", false
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.opts.MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > b.opts.MaxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", b.opts.MaxFileBytes)
	}

	return data, nil
}

// formatPrediction текст ответа с результатом
func formatPrediction(res *entity.PredictionResult) string {
	var sb strings.Builder
	if res.HasTumor {
		fmt.Fprintf(&sb, "🔴 Обнаружены признаки опухоли: %s\n", labelTitles[res.Label])
	} else {
		sb.WriteString("🟢 Опухоль не обнаружена\n")
	}
	fmt.Fprintf(&sb, "Уверенность: %.2f%%\n\n", res.Confidence)
	sb.WriteString("Вероятности:\n")
	for i, l := range entity.Labels {
		fmt.Fprintf(&sb, "• %s: %.2f%%\n", labelTitles[l], res.Probabilities[i]*100)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", zap.Error(err))
	}
}
