package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ReviewRequest は承認対象のPRの情報を保持する（起動時に一度だけ設定され、変更されない）
type ReviewRequest struct {
	Repository string // "owner/name"
	Number     int
	Title      string
	URL        string
}

// RepositoryURL はリポジトリのGitHub上のURLを返す
func (r ReviewRequest) RepositoryURL() string {
	return fmt.Sprintf("https://github.com/%s", r.Repository)
}

// Token はボタンに埋め込むActionTokenを返す
func (r ReviewRequest) Token() ActionToken {
	return ActionToken{Repository: r.Repository, Number: r.Number}
}

// ActionToken はボタンのvalueに埋め込む (repository, number) のペア
type ActionToken struct {
	Repository string
	Number     int
}

// Encode は "owner/name:42" 形式に変換する
func (t ActionToken) Encode() string {
	return fmt.Sprintf("%s:%d", t.Repository, t.Number)
}

// DecodeActionToken はボタンのvalueからActionTokenを復元する
// 最後の ":" で分割するので、リポジトリ名に ":" を含まない限り可逆
func DecodeActionToken(value string) (ActionToken, error) {
	idx := strings.LastIndex(value, ":")
	if idx <= 0 || idx == len(value)-1 {
		return ActionToken{}, fmt.Errorf("invalid action token: %q", value)
	}

	repo := value[:idx]
	number, err := strconv.Atoi(value[idx+1:])
	if err != nil || number < 0 {
		return ActionToken{}, fmt.Errorf("invalid pull request number in action token: %q", value)
	}

	return ActionToken{Repository: repo, Number: number}, nil
}

// SplitRepository は "owner/name" をオーナーとリポジトリ名に分割する
func SplitRepository(fullName string) (owner string, repo string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format: %s", fullName)
	}
	return parts[0], parts[1], nil
}

// MessageRef は送信済みSlackメッセージの識別子（チャンネルとts）
type MessageRef struct {
	Channel   string
	Timestamp string
}

// IsZero はメッセージがまだ送信されていないかどうか
func (m MessageRef) IsZero() bool {
	return m.Channel == "" || m.Timestamp == ""
}

// ApprovalResult はGitHubで作成された承認レビューの情報
type ApprovalResult struct {
	ID       int64
	HTMLURL  string
	State    string
	// 承認したGitHubアカウントの表示名（トークンの持ち主）
	Reviewer string
}

// InteractionEvent はSocket ModeやHTTPで受け取ったボタン操作を正規化したもの
type InteractionEvent struct {
	ActorID   string
	ActionID  string
	BlockID   string
	Value     string
	Channel   string
	MessageTS string
}
