package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"obd-analyzer/config"
	app "obd-analyzer/internal/application"
	"obd-analyzer/internal/container"
	"obd-analyzer/internal/domain/entity"
	"obd-analyzer/internal/domain/fault"
)

const (
	msgStart = `👋 Привет! Я бот для разбора OBD-сканов автомобиля.

📄 Отправьте мне JSON со сканом (файлом или текстом), и я расскажу, что означают коды неисправностей, сколько может стоить ремонт и что ждать по пробегу.

📋 Команды:
/scan — начать разбор скана
/help — справка
/cancel — отменить текущую операцию`

	msgHelp = `ℹ️ Как пользоваться ботом:

1️⃣ Отправьте /scan
2️⃣ Пришлите JSON со сканом файлом или сообщением
3️⃣ Получите отчёт и полный результат в JSON

💡 Обязательные поля скана: vin, milOn, dtcCount, storedDtcCodes, pendingDtcCodes, permanentDtcCodes.
Необязательные: year, make, model, mileage, distanceSinceCleared, warmupsSinceCleared.

📋 Команды:
/scan — начать разбор
/cancel — отменить операцию`

	msgAwaitingScan    = "📄 Пришлите JSON со сканом файлом или сообщением."
	msgCancelled       = "❌ Операция отменена. Отправьте /scan для нового разбора."
	msgStopping        = "⏹ Останавливаю анализ..."
	msgSendScan        = "📄 Отправьте /scan, а затем JSON со сканом."
	msgUnknownCommand  = "❓ Неизвестная команда. Используйте /help для справки."
	msgProcessing      = "⏳ Анализирую скан, это может занять пару минут..."
	msgBusy            = "⏳ Предыдущий скан ещё анализируется. Дождитесь результата или отправьте /cancel."
	msgOverloaded      = "🚦 Сейчас слишком много запросов. Попробуйте через минуту."
	msgScanTooLarge    = "⚠️ Файл слишком большой для скана."
	msgDownloadError   = "⚠️ Не удалось скачать файл. Попробуйте ещё раз."
	msgAnalysisFailed  = "⚠️ Не удалось получить анализ после нескольких попыток. Попробуйте позже."
	msgAnalysisStopped = "⏹ Анализ остановлен."
)

// botAPI часть tgbotapi.BotAPI, которой пользуется бот.
type botAPI interface {
	GetUpdatesChan(u tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// analyzer запускает анализ одного скана.
type analyzer interface {
	Analyze(ctx context.Context, scan *entity.ScanInput) (*app.AnalysisOutcome, error)
}

// Bot представляет Telegram-бота
type Bot struct {
	api      botAPI
	users    *app.UserService
	analyzer analyzer
	cfg      config.BotConfig
	logger   *zap.Logger
	client   *http.Client

	runs *errgroup.Group

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc // идущие анализы по пользователям
}

// NewBot создаёт нового бота
func NewBot(token string, c *container.Container, cfg config.BotConfig, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logger.Info("authorized on account", zap.String("username", api.Self.UserName))

	return newBot(api, c.UserService, c.AnalysisService, cfg, logger), nil
}

func newBot(api botAPI, users *app.UserService, an analyzer, cfg config.BotConfig, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}

	runs := &errgroup.Group{}
	if cfg.MaxConcurrent > 0 {
		runs.SetLimit(cfg.MaxConcurrent)
	}

	return &Bot{
		api:      api,
		users:    users,
		analyzer: an,
		cfg:      cfg,
		logger:   logger.Named("telegram"),
		client:   &http.Client{},
		runs:     runs,
		cancels:  make(map[int64]context.CancelFunc),
	}
}

// Run запускает основной цикл обработки сообщений до отмены ctx.
// Перед выходом дожидается уже начатых анализов.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("bot is running", zap.Int("max_concurrent", b.cfg.MaxConcurrent))

	defer func() {
		_ = b.runs.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("bot is stopping")
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
		b.logger.Error("get user", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return
	}

	// Обработка команд
	if msg.IsCommand() {
		b.handleCommand(ctx, msg, user)
		return
	}

	if user.Busy() {
		b.sendMessage(msg.Chat.ID, msgBusy)
		return
	}

	// Скан файлом принимаем в любом состоянии, текстом только после /scan
	if msg.Document != nil || (user.State == entity.StateAwaitingScan && strings.TrimSpace(msg.Text) != "") {
		b.handleScan(ctx, msg)
		return
	}

	b.sendMessage(msg.Chat.ID, msgSendScan)
}

// handleCommand обрабатывает команды бота
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *entity.User) {
	switch msg.Command() {
	case "start":
		if _, err := b.users.Cancel(ctx, user.ID, user.ChatID); err != nil {
			b.logger.Error("reset user", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		b.sendMessage(msg.Chat.ID, msgStart)

	case "help":
		b.sendMessage(msg.Chat.ID, msgHelp)

	case "scan":
		updated, err := b.users.BeginScan(ctx, user.ID, user.ChatID)
		if err != nil {
			b.logger.Error("begin scan", zap.Int64("user_id", user.ID), zap.Error(err))
			return
		}
		if updated.Busy() {
			b.sendMessage(msg.Chat.ID, msgBusy)
			return
		}
		b.sendMessage(msg.Chat.ID, msgAwaitingScan)

	case "cancel":
		if b.stopRun(user.ID) {
			b.sendMessage(msg.Chat.ID, msgStopping)
			return
		}
		if _, err := b.users.Cancel(ctx, user.ID, user.ChatID); err != nil {
			b.logger.Error("cancel", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		b.sendMessage(msg.Chat.ID, msgCancelled)

	default:
		b.sendMessage(msg.Chat.ID, msgUnknownCommand)
	}
}

// handleScan разбирает скан и запускает анализ в фоне
func (b *Bot) handleScan(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID

	data, err := b.readScan(ctx, msg)
	if err != nil {
		b.logger.Warn("read scan", zap.Int64("user_id", userID), zap.Error(err))
		if errors.Is(err, errScanTooLarge) {
			b.sendMessage(chatID, msgScanTooLarge)
		} else {
			b.sendMessage(chatID, msgDownloadError)
		}
		return
	}

	scan, err := entity.ParseScanInput(data)
	if err != nil {
		b.sendMessage(chatID, "⚠️ Скан не прошёл проверку:\n"+err.Error())
		return
	}

	requestID, ok, err := b.users.StartAnalysis(ctx, userID, chatID)
	if err != nil {
		b.logger.Error("start analysis", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if !ok {
		b.sendMessage(chatID, msgBusy)
		return
	}

	runCtx, cancel := context.WithCancel(app.WithRequestID(ctx, requestID))
	b.mu.Lock()
	b.cancels[userID] = cancel
	b.mu.Unlock()

	b.sendMessage(chatID, msgProcessing)

	started := b.runs.TryGo(func() error {
		b.runAnalysis(runCtx, chatID, userID, scan)
		return nil
	})
	if !started {
		b.releaseRun(ctx, userID)
		b.sendMessage(chatID, msgOverloaded)
	}
}

// runAnalysis выполняется в отдельной горутине и отвечает пользователю результатом
func (b *Bot) runAnalysis(ctx context.Context, chatID, userID int64, scan *entity.ScanInput) {
	defer b.releaseRun(context.WithoutCancel(ctx), userID)

	outcome, err := b.analyzer.Analyze(ctx, scan)
	if err != nil {
		if errors.Is(err, fault.ErrCancelled) {
			b.sendMessage(chatID, msgAnalysisStopped)
			return
		}
		b.logger.Error("analysis failed",
			zap.Int64("user_id", userID),
			zap.String("vin", scan.VIN),
			zap.Error(err),
		)
		b.sendMessage(chatID, msgAnalysisFailed)
		return
	}

	for _, part := range SplitMessage(FormatSummary(scan, outcome), maxMessageLen) {
		b.sendMessage(chatID, part)
	}

	data, err := json.MarshalIndent(outcome.Analysis, "", "  ")
	if err != nil {
		b.logger.Error("marshal analysis", zap.String("request_id", outcome.RequestID), zap.Error(err))
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("analysis-%s.json", scan.VIN),
		Bytes: data,
	})
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("send analysis document", zap.String("request_id", outcome.RequestID), zap.Error(err))
	}
}

// stopRun отменяет идущий анализ пользователя, если он есть
func (b *Bot) stopRun(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cancel, ok := b.cancels[userID]
	if ok {
		cancel()
	}
	return ok
}

// releaseRun снимает отметку об идущем анализе
func (b *Bot) releaseRun(ctx context.Context, userID int64) {
	b.mu.Lock()
	if cancel, ok := b.cancels[userID]; ok {
		cancel()
		delete(b.cancels, userID)
	}
	b.mu.Unlock()

	if err := b.users.Finish(ctx, userID); err != nil {
		b.logger.Error("finish analysis", zap.Int64("user_id", userID), zap.Error(err))
	}
}

var errScanTooLarge = errors.New("scan is too large")

// readScan достаёт байты скана из документа или текста сообщения
func (b *Bot) readScan(ctx context.Context, msg *tgbotapi.Message) ([]byte, error) {
	limit := b.cfg.MaxScanBytes

	if msg.Document == nil {
		if limit > 0 && int64(len(msg.Text)) > limit {
			return nil, errScanTooLarge
		}
		return []byte(msg.Text), nil
	}

	if limit > 0 && int64(msg.Document.FileSize) > limit {
		return nil, errScanTooLarge
	}
	return b.downloadFile(ctx, msg.Document.FileID, limit)
}

// downloadFile скачивает файл из Telegram
func (b *Bot) downloadFile(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errScanTooLarge
	}

	return data, nil
}

// sendMessage отправляет текстовое сообщение
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
