package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v71/github"
	"golang.org/x/oauth2"

	"slack-pr-approve/models"
)

// NewGitHubClient はトークン認証のGitHubクライアントを作成する
// Authorizationヘッダーは "token <credential>" 形式になる
func NewGitHubClient(ctx context.Context, token, apiURL string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token, TokenType: "token"},
	)
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if apiURL == "" {
		return client, nil
	}

	// GitHub Enterprise
	enterprise, err := client.WithEnterpriseURLs(apiURL, apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GITHUB_API_URL: %w", err)
	}
	return enterprise, nil
}

// GitHubApprover はPRに承認レビューを送信する
type GitHubApprover struct {
	client *github.Client
	logger *slog.Logger
}

func NewGitHubApprover(client *github.Client, logger *slog.Logger) *GitHubApprover {
	return &GitHubApprover{
		client: client,
		logger: logger.With("component", "github"),
	}
}

// Approve は APPROVE のレビューを1回だけ作成する（リトライしない）
func (a *GitHubApprover) Approve(ctx context.Context, repository string, number int) (*models.ApprovalResult, error) {
	owner, repo, err := models.SplitRepository(repository)
	if err != nil {
		return nil, &models.ApprovalError{Message: err.Error(), Err: err}
	}

	review, resp, err := a.client.PullRequests.CreateReview(ctx, owner, repo, number, &github.PullRequestReviewRequest{
		Event: github.Ptr("APPROVE"),
	})
	if err != nil {
		approvalErr := toApprovalError(resp, err)
		a.logger.Warn("approve review failed", "repo", repository, "pr", number, "status", approvalErr.Status, "error", approvalErr.Message)
		return nil, approvalErr
	}

	result := &models.ApprovalResult{
		ID:       review.GetID(),
		HTMLURL:  review.GetHTMLURL(),
		State:    review.GetState(),
		Reviewer: reviewerName(review.GetUser()),
	}
	a.logger.Info("pull request approved", "repo", repository, "pr", number, "review_id", result.ID, "reviewer", result.Reviewer)
	return result, nil
}

// reviewerName はNameが設定されていればName、なければLoginを返す
func reviewerName(user *github.User) string {
	if user == nil {
		return ""
	}
	if name := user.GetName(); name != "" {
		return name
	}
	return user.GetLogin()
}

func toApprovalError(resp *github.Response, err error) *models.ApprovalError {
	approvalErr := &models.ApprovalError{Message: err.Error(), Err: err}
	if resp != nil && resp.Response != nil {
		approvalErr.Status = resp.StatusCode
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		if ghErr.Response != nil {
			approvalErr.Status = ghErr.Response.StatusCode
		}
		switch {
		case ghErr.Message != "":
			approvalErr.Message = ghErr.Message
		case approvalErr.Status != 0:
			approvalErr.Message = http.StatusText(approvalErr.Status)
		}
	}
	return approvalErr
}
