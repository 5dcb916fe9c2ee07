package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"slack-pr-approve/app"
	"slack-pr-approve/config"
	"slack-pr-approve/handlers"
	"slack-pr-approve/logging"
	"slack-pr-approve/services"
)

var version = "dev"

// flags は環境変数の設定を上書きするコマンドラインオプション
type flags struct {
	window         time.Duration
	handlerTimeout time.Duration
	exitOnApproval bool
	logLevel       string
	logFormat      string
	addr           string
	singleEvent    bool

	// --exit-on-approval が明示的に指定されたか
	exitOnApprovalSet bool
}

type transport int

const (
	transportSocket transport = iota
	transportHTTP
)

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "slack-pr-approve",
		Short: "Post a pull request approval card to Slack and approve it on GitHub when an authorized reviewer clicks",
		Long: `slack-pr-approve posts an interactive card for a pending pull request,
waits for an authorized reviewer to click "Approve PR" and submits an
APPROVE review through the GitHub API.

Configuration is read from the environment (and .env):
GITHUB_REPOSITORY, PR_NUMBER, PR_TITLE, PR_URL, GITHUB_TOKEN,
AUTHORIZED_USERS, SLACK_BOT_TOKEN, SLACK_APP_TOKEN, SLACK_SIGNING_SECRET,
SLACK_CHANNEL.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.DurationVar(&f.window, "window", 0, "How long to wait for a click (overrides APPROVAL_WINDOW)")
	pf.DurationVar(&f.handlerTimeout, "handler-timeout", 0, "Timeout for handling one click (overrides HANDLER_TIMEOUT)")
	pf.BoolVar(&f.exitOnApproval, "exit-on-approval", true, "Exit as soon as the pull request is approved (overrides EXIT_ON_APPROVAL)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&f.logFormat, "log-format", "", "text or json (overrides LOG_FORMAT)")

	listen := &cobra.Command{
		Use:   "listen",
		Short: "Receive button clicks over Slack Socket Mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.exitOnApprovalSet = cmd.Flags().Changed("exit-on-approval")
			return runApproval(cmd, f, transportSocket)
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Receive button clicks on an HTTP interaction endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.exitOnApprovalSet = cmd.Flags().Changed("exit-on-approval")
			return runApproval(cmd, f, transportHTTP)
		},
	}
	serve.Flags().StringVar(&f.addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	serve.Flags().BoolVar(&f.singleEvent, "single-event", false, "Stop after handling one interaction request")

	root.AddCommand(listen, serve)
	return root
}

// loadConfig は環境変数を読み込み、指定されたフラグで上書きしてから検証する
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if f.window > 0 {
		cfg.ApprovalWindow = f.window
	}
	if f.handlerTimeout > 0 {
		cfg.HandlerTimeout = f.handlerTimeout
	}
	if f.exitOnApprovalSet {
		cfg.ExitOnApproval = f.exitOnApproval
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if f.addr != "" {
		cfg.HTTPAddr = f.addr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runApproval(cmd *cobra.Command, f *flags, mode transport) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr).With("run_id", runID)
	cfg.LogShape(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := services.NewMetrics()
	slackClient := services.NewSlackClient(cfg.SlackBotToken.Value(), cfg.SlackAppToken.Value())

	githubClient, err := services.NewGitHubClient(ctx, cfg.GitHubToken.Value(), cfg.GitHubAPIURL)
	if err != nil {
		return fmt.Errorf("create github client: %w", err)
	}

	var listener app.Listener
	switch mode {
	case transportHTTP:
		gin.SetMode(gin.ReleaseMode)
		listener = handlers.NewHTTPListener(cfg.HTTPAddr, cfg.SlackSigningSecret.Value(), f.singleEvent, metrics, logger)
	default:
		listener = handlers.NewSocketListener(handlers.NewSocketModeClient(slackClient), logger)
	}

	a := &app.App{
		Config:   cfg,
		Slack:    services.NewSlackGateway(slackClient, logger, metrics),
		GitHub:   services.NewGitHubApprover(githubClient, logger),
		Listener: listener,
		Metrics:  metrics,
		Logger:   logger,
		RunID:    runID,
	}
	return a.Run(ctx)
}
