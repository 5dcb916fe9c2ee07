package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/sync/errgroup"

	"slack-pr-approve/models"
)

// SocketModeClient はSocket Modeの接続とack
// テストではフェイクに差し替える
type SocketModeClient interface {
	RunContext(ctx context.Context) error
	Ack(req socketmode.Request, payload ...interface{})
	Events() <-chan socketmode.Event
}

type socketModeClient struct {
	*socketmode.Client
}

func (c socketModeClient) Events() <-chan socketmode.Event {
	return c.Client.Events
}

// NewSocketModeClient はslack-goのSocket Modeクライアントを作成する
func NewSocketModeClient(api *slack.Client) SocketModeClient {
	return socketModeClient{Client: socketmode.New(api, socketmode.OptionDebug(false))}
}

// SocketListener はSocket Mode経由でボタン操作を受け取る
type SocketListener struct {
	client SocketModeClient
	logger *slog.Logger
}

func NewSocketListener(client SocketModeClient, logger *slog.Logger) *SocketListener {
	return &SocketListener{client: client, logger: logger}
}

// Listen はctxが終わるまでイベントを受け取り、dispatchに渡す
// dispatchは1件ずつ順に呼ばれる
func (l *SocketListener) Listen(ctx context.Context, dispatch Dispatcher) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := l.client.RunContext(gctx)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return &models.GatewayError{Op: "socket mode", Err: err}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case evt, ok := <-l.client.Events():
				if !ok {
					return nil
				}
				l.handleEvent(gctx, evt, dispatch)
			}
		}
	})

	err := g.Wait()
	l.logger.Info("socket mode listener stopped")
	return err
}

func (l *SocketListener) handleEvent(ctx context.Context, evt socketmode.Event, dispatch Dispatcher) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		l.logger.Debug("connecting to slack socket mode")
	case socketmode.EventTypeConnectionError:
		l.logger.Warn("socket mode connection error", "error", fmt.Sprint(evt.Data))
	case socketmode.EventTypeConnected:
		l.logger.Info("connected to slack socket mode")
	case socketmode.EventTypeInteractive:
		l.handleInteractive(ctx, evt, dispatch)
	default:
		// イベントAPIやスラッシュコマンドは使わないがackだけ返す
		l.ack(evt)
	}
}

func (l *SocketListener) handleInteractive(ctx context.Context, evt socketmode.Event, dispatch Dispatcher) {
	callback, ok := evt.Data.(slack.InteractionCallback)
	// 処理より先にackしてSlackの再送を防ぐ
	l.ack(evt)
	if !ok {
		l.logger.Warn("unexpected interactive payload", "type", fmt.Sprintf("%T", evt.Data))
		return
	}

	for _, ev := range InteractionEvents(callback) {
		dispatch(ctx, ev)
	}
}

func (l *SocketListener) ack(evt socketmode.Event) {
	if evt.Request == nil {
		return
	}
	l.client.Ack(*evt.Request)
}

// InteractionEvents はblock_actionsのコールバックをボタン操作ごとのイベントに変換する
func InteractionEvents(callback slack.InteractionCallback) []models.InteractionEvent {
	if callback.Type != slack.InteractionTypeBlockActions {
		return nil
	}

	channel := callback.Container.ChannelID
	if channel == "" {
		channel = callback.Channel.ID
	}
	ts := callback.Container.MessageTs
	if ts == "" {
		ts = callback.Message.Timestamp
	}

	events := make([]models.InteractionEvent, 0, len(callback.ActionCallback.BlockActions))
	for _, action := range callback.ActionCallback.BlockActions {
		if action == nil {
			continue
		}
		events = append(events, models.InteractionEvent{
			ActorID:   callback.User.ID,
			ActionID:  action.ActionID,
			BlockID:   action.BlockID,
			Value:     action.Value,
			Channel:   channel,
			MessageTS: ts,
		})
	}
	return events
}
