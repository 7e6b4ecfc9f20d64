// Package channel holds the chat ingresses that feed the input pipeline.
// Telegram is the representative one: its messages carry exactly the
// modalities the pipeline normalizes (text, photos, voice notes, video,
// documents).
package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/domain"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/envelope"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	downloadTimeout        = 60 * time.Second
)

// Turns runs one conversation turn (implemented by agent.Responder).
type Turns interface {
	Respond(ctx context.Context, task *domain.TaskContext, payload []byte, filename string) envelope.Response
}

// TelegramConfig configures the Telegram ingress.
type TelegramConfig struct {
	Token     string
	ParseMode string
	Turns     Turns
	Logger    *slog.Logger
}

// Telegram polls the bot API and routes each message through the input
// pipeline as a task context of the matching modality.
type Telegram struct {
	token     string
	parseMode string
	turns     Turns
	bot       *tgbotapi.BotAPI
	client    *http.Client
	logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Telegram{
		token:     cfg.Token,
		parseMode: cfg.ParseMode,
		turns:     cfg.Turns,
		client:    &http.Client{Timeout: downloadTimeout},
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is canceled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		t.handleCommand(chatID, msg)
		return
	}

	task, payload, filename := t.buildTask(ctx, msg)
	if task == nil {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", msg.From.ID,
		"chat_id", chatID,
		"input_type", task.InputType,
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	resp := t.turns.Respond(ctx, task, payload, filename)
	t.sendMessage(chatID, resp.Response)
}

// buildTask classifies the message into a task context plus optional
// payload. Telegram delivers at most one media kind per message.
func (t *Telegram) buildTask(ctx context.Context, msg *tgbotapi.Message) (*domain.TaskContext, []byte, string) {
	task := &domain.TaskContext{
		SessionID: "tg-" + strconv.FormatInt(msg.Chat.ID, 10),
		UserID:    strconv.FormatInt(msg.From.ID, 10),
	}

	switch {
	case len(msg.Photo) > 0:
		// The last photo size is the largest.
		best := msg.Photo[len(msg.Photo)-1]
		task.InputType = domain.InputImage
		task.Message = msg.Caption
		payload := t.download(ctx, best.FileID)
		return task, payload, "photo.jpg"

	case msg.Voice != nil:
		task.InputType = domain.InputAudio
		task.Message = msg.Caption
		return task, t.download(ctx, msg.Voice.FileID), "voice.ogg"

	case msg.Audio != nil:
		task.InputType = domain.InputAudio
		task.Message = msg.Caption
		name := msg.Audio.FileName
		if name == "" {
			name = "audio.mp3"
		}
		return task, t.download(ctx, msg.Audio.FileID), name

	case msg.Video != nil:
		task.InputType = domain.InputVideo
		task.Message = msg.Caption
		return task, t.download(ctx, msg.Video.FileID), "video.mp4"

	case msg.Document != nil:
		task.InputType = domain.InputFile
		task.Message = msg.Caption
		name := msg.Document.FileName
		if name == "" {
			name = "document.bin"
		}
		return task, t.download(ctx, msg.Document.FileID), name

	default:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return nil, nil, ""
		}
		if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
			task.InputType = domain.InputURL
		} else {
			task.InputType = domain.InputText
		}
		task.Message = text
		return task, nil, ""
	}
}

// download fetches a file's bytes from the bot API. Failures degrade to an
// empty payload; the handler then reports the extraction failure in-band.
func (t *Telegram) download(ctx context.Context, fileID string) []byte {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		t.logger.Warn("telegram file lookup failed", "file_id", fileID, "err", err)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("telegram file download failed", "file_id", fileID, "err", err)
		return nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Warn("telegram file read failed", "file_id", fileID, "err", err)
		return nil
	}
	return data
}

func (t *Telegram) handleCommand(chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, "Hello! Send me text, a photo, a voice note, a video, a document, or a link and I'll make sense of it.")
	case "status":
		t.sendMessage(chatID, fmt.Sprintf("Bot: @%s\nYour ID: %d\nChat ID: %d", t.bot.Self.UserName, msg.From.ID, chatID))
	default:
		t.sendMessage(chatID, "Unknown command. Try /start or /status.")
	}
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	// Telegram has a 4096 char limit per message.
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends one chunk with retry and rate limit handling. Markdown
// parse errors fall back to plain text.
func (t *Telegram) sendChunk(chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plainMsg); err2 == nil {
				return
			}
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		t.logger.Error("telegram send failed after retries", "err", err)
	}
}
