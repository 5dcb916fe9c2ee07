package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"slack-pr-approve/config"
	"slack-pr-approve/handlers"
	"slack-pr-approve/models"
	"slack-pr-approve/services"
)

const finalUpdateTimeout = 10 * time.Second

// Notifier は通知メッセージの送信と更新
type Notifier interface {
	AuthCheck(ctx context.Context) (string, error)
	Send(ctx context.Context, channel string, msg services.Message) (models.MessageRef, error)
	Update(ctx context.Context, ref models.MessageRef, msg services.Message) error
}

// Listener はボタン操作を受け取るトランスポート（Socket ModeまたはHTTP）
// ctxが終わったら接続を閉じて戻る
type Listener interface {
	Listen(ctx context.Context, dispatch handlers.Dispatcher) error
}

// App は1回の承認依頼の起動から終了までを管理する
type App struct {
	Config   *config.Config
	Slack    Notifier
	GitHub   handlers.Approver
	Listener Listener
	Metrics  *services.Metrics
	Logger   *slog.Logger
	// 空なら自動生成してLoggerに付ける
	RunID    string

	mu    sync.Mutex
	state handlers.State
}

// Run は通知を送り、承認されるか待ち受け時間が終わるかctxがキャンセルされるまでボタン操作を処理する
// 承認の失敗や権限なしは正常終了として扱う
func (a *App) Run(ctx context.Context) error {
	logger := a.Logger
	if a.RunID == "" {
		a.RunID = uuid.NewString()
		logger = logger.With("run_id", a.RunID)
	}
	cfg := a.Config
	a.mu.Lock()
	a.state = handlers.StateAwaitingClick
	a.mu.Unlock()

	logger.Info("starting approval request",
		"repo", cfg.Request.Repository,
		"pr", cfg.Request.Number,
		"channel", cfg.SlackChannel,
		"authorized_users", cfg.Authorized.Len(),
		"window", cfg.ApprovalWindow,
	)

	botID, err := a.Slack.AuthCheck(ctx)
	if err != nil {
		return err
	}
	logger.Debug("slack auth ok", "bot_user", botID)

	blockID := "approve-" + a.RunID
	ref, err := a.Slack.Send(ctx, cfg.SlackChannel, services.RenderNotification(cfg.Request, blockID))
	if err != nil {
		return err
	}
	logger.Info("notification sent", "channel", ref.Channel, "ts", ref.Timestamp)

	actx := &handlers.ApprovalContext{
		Request:   cfg.Request,
		AllowList: cfg.Authorized,
		Message:   ref,
		BlockID:   blockID,
		Slack:     a.Slack,
		GitHub:    a.GitHub,
		Logger:    logger,
		Metrics:   a.Metrics,
	}

	windowCtx, cancel := context.WithTimeout(ctx, cfg.ApprovalWindow)
	defer cancel()

	dispatch := handlers.NewDispatcher(actx, cfg.HandlerTimeout, func(state handlers.State) {
		a.setState(state)
		if state == handlers.StateApproved && cfg.ExitOnApproval {
			logger.Info("pull request approved, shutting down")
			cancel()
		}
	})

	listenErr := a.Listener.Listen(windowCtx, dispatch)

	switch {
	case listenErr != nil:
		logger.Error("listener stopped with error", "error", listenErr)
	case ctx.Err() != nil:
		logger.Info("shutdown requested")
	case errors.Is(windowCtx.Err(), context.DeadlineExceeded):
		logger.Info("approval window elapsed")
	}

	final := a.State()
	if !actx.Approved() {
		a.closeCard(ctx, logger, ref)
	}

	logger.Info("approval request finished", "state", string(final))
	return listenErr
}

// State は最後に処理したボタン操作の結果
func (a *App) State() handlers.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) setState(state handlers.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	// 重複クリックを無視しただけでは状態を変えない。承認後は承認済みのまま
	if state == handlers.StateIgnored || a.state == handlers.StateApproved {
		return
	}
	a.state = state
}

// closeCard は承認されずに終わったカードからボタンを外す
func (a *App) closeCard(ctx context.Context, logger *slog.Logger, ref models.MessageRef) {
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalUpdateTimeout)
	defer cancel()

	if err := a.Slack.Update(updateCtx, ref, services.RenderExpired(a.Config.Request)); err != nil {
		logger.Warn("failed to close notification", "error", err)
	}
}
