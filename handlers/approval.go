package handlers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"slack-pr-approve/models"
	"slack-pr-approve/services"
)

// State はボタン操作1回分の処理結果
type State string

const (
	StateAwaitingClick  State = "awaiting_click"
	StateUnauthorized   State = "unauthorized"
	StateApproving      State = "approving"
	StateApproved       State = "approved"
	StateApprovalFailed State = "approval_failed"
	StateIgnored        State = "ignored"
)

// MessageUpdater は通知メッセージを置き換える
type MessageUpdater interface {
	Update(ctx context.Context, ref models.MessageRef, msg services.Message) error
}

// Approver はPRを承認する
type Approver interface {
	Approve(ctx context.Context, repository string, number int) (*models.ApprovalResult, error)
}

// ApprovalContext は1回の実行の間ハンドラが参照する状態
// Request, AllowList, Message は起動後に変更しない
type ApprovalContext struct {
	Request   models.ReviewRequest
	AllowList models.AllowList
	Message   models.MessageRef
	BlockID   string
	Slack     MessageUpdater
	GitHub    Approver
	Logger    *slog.Logger
	Metrics   *services.Metrics

	// 承認APIの呼び出し中に届いた重複クリックを無視するためのフラグ
	approving atomic.Bool
	// 一度承認されたら以降のクリックはカードを書き換えない
	approved atomic.Bool
}

// Approved はこの実行でPRが承認済みかどうか
func (actx *ApprovalContext) Approved() bool {
	return actx.approved.Load()
}

// HandleApproveAction は承認ボタンのクリックを1件処理する
// ackはトランスポート側で済ませてから呼ぶこと
func HandleApproveAction(ctx context.Context, actx *ApprovalContext, ev models.InteractionEvent) State {
	logger := actx.Logger.With("actor", ev.ActorID, "action_id", ev.ActionID)

	if ev.ActionID != services.ApproveActionID {
		logger.Debug("ignoring unrelated action")
		return StateIgnored
	}

	// 前回の実行で送ったカードのボタン
	if actx.BlockID != "" && ev.BlockID != "" && ev.BlockID != actx.BlockID {
		logger.Warn("ignoring click on a card from another run", "block_id", ev.BlockID)
		actx.Metrics.RecordInteraction(string(StateIgnored))
		return StateIgnored
	}

	if actx.approved.Load() {
		logger.Info("pull request already approved, ignoring click")
		actx.Metrics.RecordInteraction(string(StateIgnored))
		return StateIgnored
	}

	ref := actx.messageRef(ev)

	if !actx.AllowList.IsAuthorized(ev.ActorID) {
		logger.Warn("unauthorized approve click")
		actx.update(ctx, logger, ref, services.RenderDenied(actx.Request, actx.BlockID, ev.ActorID))
		actx.Metrics.RecordInteraction(string(StateUnauthorized))
		return StateUnauthorized
	}

	token, err := models.DecodeActionToken(ev.Value)
	if err != nil {
		logger.Error("invalid action token", "error", err)
		actx.update(ctx, logger, ref, services.RenderFailed(actx.Request, actx.BlockID, ev.ActorID, "invalid button payload"))
		actx.Metrics.RecordInteraction(string(StateApprovalFailed))
		return StateApprovalFailed
	}

	if !actx.approving.CompareAndSwap(false, true) {
		logger.Info("approval already in progress, ignoring duplicate click")
		actx.Metrics.RecordInteraction(string(StateIgnored))
		return StateIgnored
	}
	defer actx.approving.Store(false)

	logger.Info("approving pull request", "repo", token.Repository, "pr", token.Number)
	start := time.Now()
	result, err := actx.GitHub.Approve(ctx, token.Repository, token.Number)
	actx.Metrics.ObserveApproval(time.Since(start))

	if err != nil {
		reason := err.Error()
		var approvalErr *models.ApprovalError
		if errors.As(err, &approvalErr) {
			reason = approvalErr.Message
		}
		logger.Warn("approval failed", "error", reason)
		actx.update(ctx, logger, ref, services.RenderFailed(actx.Request, actx.BlockID, ev.ActorID, reason))
		actx.Metrics.RecordInteraction(string(StateApprovalFailed))
		return StateApprovalFailed
	}

	actx.approved.Store(true)
	actx.update(ctx, logger, ref, services.RenderApproved(actx.Request, ev.ActorID, result))
	actx.Metrics.RecordInteraction(string(StateApproved))
	return StateApproved
}

// messageRef は送信時のメッセージ、なければイベントのメッセージを返す
func (actx *ApprovalContext) messageRef(ev models.InteractionEvent) models.MessageRef {
	if actx.Message.IsZero() {
		return models.MessageRef{Channel: ev.Channel, Timestamp: ev.MessageTS}
	}
	return actx.Message
}

// update の失敗は呼び出し元に返さずログに残す
func (actx *ApprovalContext) update(ctx context.Context, logger *slog.Logger, ref models.MessageRef, msg services.Message) {
	if err := actx.Slack.Update(ctx, ref, msg); err != nil {
		logger.Error("failed to update slack message", "channel", ref.Channel, "ts", ref.Timestamp, "error", err)
	}
}
