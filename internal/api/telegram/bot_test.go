package telegram

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	app "mri-classifier/internal/application"
	"mri-classifier/internal/domain/entity"
	"mri-classifier/internal/infrastructure/storage"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []string
	fileURL string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeAPI) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fixedNormalizer struct{}

func (fixedNormalizer) Normalize(ctx context.Context, data []byte) (entity.Tensor, error) {
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return entity.Tensor{}, entity.ErrDecode
	}
	return entity.NewTensor(1, 3, 224, 224), nil
}

type fixedClassifier struct{ probs entity.ClassProbabilities }

func (c fixedClassifier) Infer(ctx context.Context, input entity.Tensor) (entity.ClassProbabilities, error) {
	return c.probs, nil
}

func (fixedClassifier) InputShape() []int { return []int{1, 3, 224, 224} }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func newTestBot(t *testing.T, files map[string][]byte) (*Bot, *fakeAPI, *app.UserService) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	api := &fakeAPI{fileURL: srv.URL}
	users := app.NewUserService(storage.NewMemoryUserRepository())
	predictions := app.NewPredictionService(fixedNormalizer{}, fixedClassifier{probs: entity.ClassProbabilities{0.05, 0.8, 0.1, 0.05}}, nil, nil, nil)
	return newBot(api, users, predictions, Options{}, nil), api, users
}

func command(text string) *tgbotapi.Message {
	name := strings.Fields(text)[0]
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: 1},
		Chat:     &tgbotapi.Chat{ID: 100},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func TestBot_Commands(t *testing.T) {
	bot, api, users := newTestBot(t, nil)
	ctx := context.Background()

	bot.handleMessage(ctx, command("/start"))
	require.Equal(t, msgStart, api.last())

	bot.handleMessage(ctx, command("/check"))
	require.Equal(t, msgAwaitingScan, api.last())
	user, err := users.Get(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingScan, user.State)

	bot.handleMessage(ctx, command("/cancel"))
	require.Equal(t, msgCancelled, api.last())
	user, err = users.Get(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)

	bot.handleMessage(ctx, command("/unknown"))
	require.Equal(t, msgUnknownCommand, api.last())
}

func TestBot_TextAsksForScan(t *testing.T) {
	bot, api, _ := newTestBot(t, nil)

	bot.handleMessage(context.Background(), &tgbotapi.Message{
		Text: "hello",
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{ID: 100},
	})
	require.Equal(t, msgSendScan, api.last())
}

func TestBot_PhotoIsClassified(t *testing.T) {
	bot, api, users := newTestBot(t, map[string][]byte{"big": pngBytes(t)})
	ctx := context.Background()

	bot.handleMessage(ctx, &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1},
		Chat:  &tgbotapi.Chat{ID: 100},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}},
	})

	require.Len(t, api.sent, 2)
	require.Equal(t, msgProcessing, api.sent[0])
	require.Contains(t, api.sent[1], "менингиома")
	require.Contains(t, api.sent[1], "80.00%")

	user, err := users.Get(ctx, 1, 100)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
	require.Equal(t, 1, user.ScansChecked)
}

func TestBot_DocumentErrors(t *testing.T) {
	bot, api, users := newTestBot(t, map[string][]byte{"broken": []byte("not an image")})
	ctx := context.Background()

	bot.handleMessage(ctx, &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 1},
		Chat:     &tgbotapi.Chat{ID: 100},
		Document: &tgbotapi.Document{FileID: "report", MimeType: "application/pdf"},
	})
	require.Equal(t, msgNotImage, api.last())

	bot.handleMessage(ctx, &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 1},
		Chat:     &tgbotapi.Chat{ID: 100},
		Document: &tgbotapi.Document{FileID: "broken", MimeType: "image/png"},
	})
	require.Equal(t, msgInvalidImage, api.last())

	user, err := users.Get(ctx, 1, 100)
	require.NoError(t, err)
	require.Zero(t, user.ScansChecked)
	require.Equal(t, entity.StateMainMenu, user.State)
}

func TestBot_BusyUser(t *testing.T) {
	bot, api, users := newTestBot(t, map[string][]byte{"scan": pngBytes(t)})
	ctx := context.Background()
	_, err := users.StartProcessing(ctx, 1, 100)
	require.NoError(t, err)

	bot.handleMessage(ctx, &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1},
		Chat:  &tgbotapi.Chat{ID: 100},
		Photo: []tgbotapi.PhotoSize{{FileID: "scan"}},
	})
	require.Equal(t, msgBusy, api.last())
}

func TestFormatPrediction(t *testing.T) {
	text := formatPrediction(&entity.PredictionResult{
		Label:         entity.LabelNoTumor,
		Confidence:    97.5,
		Probabilities: entity.ClassProbabilities{0.01, 0.01, 0.005, 0.975},
	})
	require.True(t, strings.HasPrefix(text, "🟢 Опухоль не обнаружена"))
	require.Contains(t, text, "Уверенность: 97.50%")
	require.Contains(t, text, "• глиома: 1.00%")
	require.False(t, strings.HasSuffix(text, "\n"))
}
