package services

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"

	"slack-pr-approve/models"
)

// SlackAPI はゲートウェイが使うslack-goクライアントのメソッド
type SlackAPI interface {
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

var _ SlackAPI = (*slack.Client)(nil)

// NewSlackClient はbotトークンとSocket Mode用のappトークンでクライアントを作成する
func NewSlackClient(botToken, appToken string, options ...slack.Option) *slack.Client {
	opts := append([]slack.Option{slack.OptionAppLevelToken(appToken)}, options...)
	return slack.New(botToken, opts...)
}

// SlackGateway はメッセージの送信と更新を行う
type SlackGateway struct {
	api     SlackAPI
	logger  *slog.Logger
	metrics *Metrics
}

func NewSlackGateway(api SlackAPI, logger *slog.Logger, metrics *Metrics) *SlackGateway {
	return &SlackGateway{
		api:     api,
		logger:  logger.With("component", "slack"),
		metrics: metrics,
	}
}

// AuthCheck はbotトークンが有効かを確認し、botのユーザーIDを返す
func (g *SlackGateway) AuthCheck(ctx context.Context) (string, error) {
	resp, err := g.api.AuthTestContext(ctx)
	if err != nil {
		return "", &models.GatewayError{Op: "auth.test", Err: err}
	}

	g.logger.Info("slack auth ok", "bot_user_id", resp.UserID, "team", resp.Team)
	return resp.UserID, nil
}

// Send はメッセージを送信し、以降の更新に使う (channel, ts) を返す
func (g *SlackGateway) Send(ctx context.Context, channel string, msg Message) (models.MessageRef, error) {
	respChannel, ts, err := g.api.PostMessageContext(ctx, channel, msg.MsgOptions()...)
	if err != nil {
		g.metrics.RecordNotification(false)
		return models.MessageRef{}, &models.GatewayError{Op: "chat.postMessage", Err: err}
	}

	g.metrics.RecordNotification(true)
	g.logger.Info("slack message sent", "channel", respChannel, "ts", ts)
	return models.MessageRef{Channel: respChannel, Timestamp: ts}, nil
}

// Update は送信済みのメッセージを置き換える
func (g *SlackGateway) Update(ctx context.Context, ref models.MessageRef, msg Message) error {
	if _, _, _, err := g.api.UpdateMessageContext(ctx, ref.Channel, ref.Timestamp, msg.MsgOptions()...); err != nil {
		return &models.GatewayError{Op: "chat.update", Err: err}
	}

	g.logger.Debug("slack message updated", "channel", ref.Channel, "ts", ref.Timestamp)
	return nil
}
