package handlers

import (
	"context"
	"fmt"
	"time"

	"slack-pr-approve/models"
	"slack-pr-approve/services"
)

// Dispatcher はトランスポートがボタン操作ごとに呼び出すコールバック
type Dispatcher func(ctx context.Context, ev models.InteractionEvent)

// NewDispatcher はハンドラをタイムアウト付きで呼び出すDispatcherを作成する
// 待ち受け時間が終わっても処理中の承認は最後まで実行されるように、呼び出し元のキャンセルは引き継がない
func NewDispatcher(actx *ApprovalContext, timeout time.Duration, onDone func(State)) Dispatcher {
	return func(ctx context.Context, ev models.InteractionEvent) {
		handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		state := StateAwaitingClick
		defer func() {
			if r := recover(); r != nil {
				logger := actx.Logger.With("actor", ev.ActorID)
				logger.Error("interaction handler panicked", "panic", fmt.Sprint(r))
				actx.update(handlerCtx, logger, actx.messageRef(ev),
					services.RenderFailed(actx.Request, actx.BlockID, ev.ActorID, "internal error"))
				state = StateApprovalFailed
			}
			if onDone != nil {
				onDone(state)
			}
		}()

		state = HandleApproveAction(handlerCtx, actx, ev)
	}
}
