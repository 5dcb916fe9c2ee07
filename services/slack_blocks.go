package services

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"slack-pr-approve/models"
)

const (
	// ApproveActionID は承認ボタンのaction_id
	ApproveActionID = "approve_pr"

	approveButtonText  = "Approve PR"
	notificationHeader = ":rotating_light: Pull Request Approval Requested"
)

// Message はSlackに送るテキスト（通知用フォールバック）とブロック
type Message struct {
	Text   string
	Blocks []slack.Block
}

// MsgOptions はslack-goのPostMessage/UpdateMessageに渡すオプションに変換する
func (m Message) MsgOptions() []slack.MsgOption {
	return []slack.MsgOption{
		slack.MsgOptionText(m.Text, false),
		slack.MsgOptionBlocks(m.Blocks...),
	}
}

// SlackBlockBuilder Slack Block Kit構築のヘルパー
type SlackBlockBuilder struct {
	blocks []slack.Block
}

// NewSlackBlockBuilder 新しいビルダーを作成
func NewSlackBlockBuilder() *SlackBlockBuilder {
	return &SlackBlockBuilder{
		blocks: make([]slack.Block, 0),
	}
}

// AddHeader ヘッダーブロックを追加
func (b *SlackBlockBuilder) AddHeader(text string) *SlackBlockBuilder {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
	b.blocks = append(b.blocks, header)
	return b
}

// AddSection セクションブロックを追加
func (b *SlackBlockBuilder) AddSection(text string) *SlackBlockBuilder {
	section := slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
	b.blocks = append(b.blocks, section)
	return b
}

// AddContext コンテキストブロックを追加
func (b *SlackBlockBuilder) AddContext(text string) *SlackBlockBuilder {
	contextBlock := slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
	b.blocks = append(b.blocks, contextBlock)
	return b
}

// AddActions アクションブロックを追加
func (b *SlackBlockBuilder) AddActions(blockID string, elements ...slack.BlockElement) *SlackBlockBuilder {
	if len(elements) == 0 {
		return b
	}

	b.blocks = append(b.blocks, slack.NewActionBlock(blockID, elements...))
	return b
}

// Build ブロック配列を取得
func (b *SlackBlockBuilder) Build() []slack.Block {
	return b.blocks
}

// CreateButton ボタン要素を作成
func CreateButton(text, actionID, value string, style slack.Style) *slack.ButtonBlockElement {
	button := slack.NewButtonBlockElement(actionID, value, slack.NewTextBlockObject(slack.PlainTextType, text, false, false))
	if style != "" {
		button = button.WithStyle(style)
	}
	return button
}

// CreateApproveButton 承認ボタンを作成（valueにActionTokenを埋め込む）
func CreateApproveButton(token models.ActionToken) *slack.ButtonBlockElement {
	return CreateButton(approveButtonText, ApproveActionID, token.Encode(), slack.StylePrimary)
}

// RenderNotification は最初に送信する承認依頼メッセージを作成する
func RenderNotification(req models.ReviewRequest, blockID string) Message {
	return Message{
		Text:   fmt.Sprintf("Approval requested for %s#%d: %s", req.Repository, req.Number, req.Title),
		Blocks: notificationBuilder(req, blockID, true).Build(),
	}
}

// RenderDenied は許可されていないユーザーが押したときのメッセージ
// ボタンは残すので、許可されたユーザーは引き続き承認できる
func RenderDenied(req models.ReviewRequest, blockID, actor string) Message {
	text := fmt.Sprintf(":no_entry: <@%s> is not authorized to approve this pull request.", actor)
	return Message{
		Text:   text,
		Blocks: notificationBuilder(req, blockID, true).AddContext(text).Build(),
	}
}

// RenderFailed は承認APIが失敗したときのメッセージ
func RenderFailed(req models.ReviewRequest, blockID, actor, reason string) Message {
	text := fmt.Sprintf(":x: Failed to approve pull request #%d (requested by <@%s>): %s", req.Number, actor, escapeMrkdwn(reason))
	return Message{
		Text:   text,
		Blocks: notificationBuilder(req, blockID, true).AddContext(text).Build(),
	}
}

// RenderApproved は承認成功後のメッセージ（ボタンは外す）
func RenderApproved(req models.ReviewRequest, actor string, result *models.ApprovalResult) Message {
	text := fmt.Sprintf(":white_check_mark: Pull request #%d approved by <@%s>.", req.Number, actor)
	if result != nil && result.HTMLURL != "" {
		text += fmt.Sprintf(" <%s|View approval>", escapeLinkURL(result.HTMLURL))
	}
	return Message{
		Text:   text,
		Blocks: notificationBuilder(req, "", false).AddSection(text).Build(),
	}
}

// RenderExpired は承認されないまま待ち受けを終了したときのメッセージ（ボタンは外す）
func RenderExpired(req models.ReviewRequest) Message {
	text := fmt.Sprintf(":hourglass: Approval window for pull request #%d closed without approval.", req.Number)
	return Message{
		Text:   text,
		Blocks: notificationBuilder(req, "", false).AddContext(text).Build(),
	}
}

func notificationBuilder(req models.ReviewRequest, blockID string, withButton bool) *SlackBlockBuilder {
	body := fmt.Sprintf("*Repository:* <%s|%s>\n*Pull Request:* #%d %s\n*Link:* <%s>",
		escapeLinkURL(req.RepositoryURL()), escapeMrkdwn(req.Repository), req.Number, escapeMrkdwn(req.Title), escapeLinkURL(req.URL))

	builder := NewSlackBlockBuilder().
		AddHeader(notificationHeader).
		AddSection(body)
	if withButton {
		builder.AddActions(blockID, CreateApproveButton(req.Token()))
	}
	return builder
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}

// "|" はリンクの区切りになるのでURLではパーセントエンコードする
var linkURLEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "|", "%7C")

func escapeLinkURL(s string) string {
	return linkURLEscaper.Replace(s)
}
