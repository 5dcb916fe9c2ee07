package handlers

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"slack-pr-approve/models"
	"slack-pr-approve/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type updateCall struct {
	Ref models.MessageRef
	Msg services.Message
}

// fakeUpdater はUpdateの呼び出しを記録する
type fakeUpdater struct {
	mu    sync.Mutex
	calls []updateCall
	err   error
}

func (f *fakeUpdater) Update(_ context.Context, ref models.MessageRef, msg services.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, updateCall{Ref: ref, Msg: msg})
	return f.err
}

func (f *fakeUpdater) Calls() []updateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]updateCall(nil), f.calls...)
}

type approveCall struct {
	Repository string
	Number     int
}

// fakeApprover はApproveFuncが未設定なら成功を返す
type fakeApprover struct {
	mu          sync.Mutex
	calls       []approveCall
	ApproveFunc func(ctx context.Context, repository string, number int) (*models.ApprovalResult, error)
}

func (f *fakeApprover) Approve(ctx context.Context, repository string, number int) (*models.ApprovalResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, approveCall{Repository: repository, Number: number})
	f.mu.Unlock()

	if f.ApproveFunc != nil {
		return f.ApproveFunc(ctx, repository, number)
	}
	return &models.ApprovalResult{
		ID:      1,
		HTMLURL: "https://github.com/" + repository + "/pull/42#pullrequestreview-1",
		State:   "APPROVED",
	}, nil
}

func (f *fakeApprover) Calls() []approveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]approveCall(nil), f.calls...)
}
