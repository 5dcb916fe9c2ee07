package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"slack-pr-approve/models"
)

const (
	botTokenPrefix = "xoxb-"
	appTokenPrefix = "xapp-"
)

var signingSecretPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Config は環境変数（および .env）から読み込む設定
type Config struct {
	Repository         string `env:"GITHUB_REPOSITORY"`
	PRNumber           string `env:"PR_NUMBER"`
	PRTitle            string `env:"PR_TITLE"`
	PRURL              string `env:"PR_URL"`
	GitHubToken        Secret `env:"GITHUB_TOKEN"`
	GitHubAPIURL       string `env:"GITHUB_API_URL"`
	AuthorizedUsers    string `env:"AUTHORIZED_USERS"`
	SlackBotToken      Secret `env:"SLACK_BOT_TOKEN"`
	SlackAppToken      Secret `env:"SLACK_APP_TOKEN"`
	SlackSigningSecret Secret `env:"SLACK_SIGNING_SECRET"`
	SlackChannel       string `env:"SLACK_CHANNEL"`

	ApprovalWindow time.Duration `env:"APPROVAL_WINDOW" envDefault:"5m"`
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"30s"`
	ExitOnApproval bool          `env:"EXIT_ON_APPROVAL" envDefault:"true"`
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":3000"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"text"`

	// Validate で設定される
	Request    models.ReviewRequest `env:"-"`
	Authorized models.AllowList     `env:"-"`
}

// Load は .env を読み込んだ上で環境変数をConfigに変換する
// .env が無いのは正常（CIでは環境変数だけで渡される）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, models.NewConfigError(err.Error())
	}
	return &cfg, nil
}

// Validate は全ての入力を検証し、問題をまとめてConfigErrorとして返す
// エラーメッセージには変数名だけを含め、値は含めない
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	repo := strings.TrimSpace(c.Repository)
	if repo == "" {
		add("GITHUB_REPOSITORY is required")
	} else if _, _, err := models.SplitRepository(repo); err != nil || strings.Contains(repo, ":") {
		add("GITHUB_REPOSITORY must be in owner/name format")
	}

	rawNumber := strings.TrimSpace(c.PRNumber)
	number, err := strconv.Atoi(rawNumber)
	switch {
	case rawNumber == "":
		add("PR_NUMBER is required")
	case err != nil || number <= 0 || !isDigits(rawNumber):
		add("PR_NUMBER must be a positive integer")
	}

	if strings.TrimSpace(c.PRTitle) == "" {
		add("PR_TITLE is required")
	}

	if strings.TrimSpace(c.PRURL) == "" {
		add("PR_URL is required")
	} else if !isAbsoluteHTTPURL(c.PRURL) {
		add("PR_URL must be an absolute http(s) URL")
	}

	if c.GitHubAPIURL != "" && !isAbsoluteHTTPURL(c.GitHubAPIURL) {
		add("GITHUB_API_URL must be an absolute http(s) URL")
	}

	if p := checkToken("GITHUB_TOKEN", c.GitHubToken, ""); p != "" {
		add("%s", p)
	}
	if p := checkToken("SLACK_BOT_TOKEN", c.SlackBotToken, botTokenPrefix); p != "" {
		add("%s", p)
	}
	if p := checkToken("SLACK_APP_TOKEN", c.SlackAppToken, appTokenPrefix); p != "" {
		add("%s", p)
	}
	if c.SlackSigningSecret.Empty() {
		add("SLACK_SIGNING_SECRET is required")
	} else if !signingSecretPattern.MatchString(c.SlackSigningSecret.Value()) {
		add("SLACK_SIGNING_SECRET must be 32 lowercase hex characters")
	}

	if strings.TrimSpace(c.SlackChannel) == "" {
		add("SLACK_CHANNEL is required")
	}

	allowList, err := models.ParseAllowList(c.AuthorizedUsers)
	if err != nil {
		var cfgErr *models.ConfigError
		if errors.As(err, &cfgErr) {
			problems = append(problems, cfgErr.Problems...)
		} else {
			add("AUTHORIZED_USERS is invalid")
		}
	}

	if c.ApprovalWindow <= 0 {
		add("APPROVAL_WINDOW must be positive")
	}
	if c.HandlerTimeout <= 0 {
		add("HANDLER_TIMEOUT must be positive")
	}

	if len(problems) > 0 {
		return models.NewConfigError(problems...)
	}

	c.Request = models.ReviewRequest{
		Repository: repo,
		Number:     number,
		Title:      strings.TrimSpace(c.PRTitle),
		URL:        strings.TrimSpace(c.PRURL),
	}
	c.Authorized = allowList
	return nil
}

// LogShape はトークンの形だけをdebugログに出す（値そのものは出さない）
func (c *Config) LogShape(logger *slog.Logger) {
	logger.Debug("credential shape",
		c.GitHubToken.Shape("github_token", ""),
		c.SlackBotToken.Shape("slack_bot_token", botTokenPrefix),
		c.SlackAppToken.Shape("slack_app_token", appTokenPrefix),
		c.SlackSigningSecret.Shape("slack_signing_secret", ""),
	)
}

func checkToken(name string, s Secret, prefix string) string {
	switch {
	case s.Empty():
		return name + " is required"
	case strings.IndexFunc(s.Value(), unicode.IsSpace) >= 0:
		return name + " must not contain whitespace"
	case prefix != "" && !strings.HasPrefix(s.Value(), prefix):
		return fmt.Sprintf("%s must start with %q", name, prefix)
	}
	return ""
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https")
}

// isDigits は符号なしの10進数字だけで構成されているか
func isDigits(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}
