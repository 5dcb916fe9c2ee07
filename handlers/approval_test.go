package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-pr-approve/models"
	"slack-pr-approve/services"
)

const testBlockID = "approve-run-1"

var testRequest = models.ReviewRequest{
	Repository: "acme/widgets",
	Number:     42,
	Title:      "Add widgets",
	URL:        "https://github.com/acme/widgets/pull/42",
}

func newTestContext(t *testing.T, updater *fakeUpdater, approver *fakeApprover) *ApprovalContext {
	t.Helper()
	allowList, err := models.ParseAllowList("U123,U456")
	require.NoError(t, err)

	return &ApprovalContext{
		Request:   testRequest,
		AllowList: allowList,
		Message:   models.MessageRef{Channel: "C12345", Timestamp: "1234.5678"},
		BlockID:   testBlockID,
		Slack:     updater,
		GitHub:    approver,
		Logger:    discardLogger(),
		Metrics:   services.NewMetrics(),
	}
}

func clickBy(actor string) models.InteractionEvent {
	return models.InteractionEvent{
		ActorID:   actor,
		ActionID:  services.ApproveActionID,
		BlockID:   testBlockID,
		Value:     testRequest.Token().Encode(),
		Channel:   "C12345",
		MessageTS: "1234.5678",
	}
}

func TestHandleApproveAction_AuthorizedApproval(t *testing.T) {
	updater := &fakeUpdater{}
	approver := &fakeApprover{}
	actx := newTestContext(t, updater, approver)

	state := HandleApproveAction(context.Background(), actx, clickBy("U123"))

	assert.Equal(t, StateApproved, state)
	assert.Equal(t, []approveCall{{Repository: "acme/widgets", Number: 42}}, approver.Calls())

	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, actx.Message, calls[0].Ref)
	assert.Contains(t, calls[0].Msg.Text, "approved by <@U123>")
	assert.Contains(t, calls[0].Msg.Text, "https://github.com/acme/widgets/pull/42#pullrequestreview-1")
}

func TestHandleApproveAction_UnauthorizedActor(t *testing.T) {
	updater := &fakeUpdater{}
	approver := &fakeApprover{}
	actx := newTestContext(t, updater, approver)

	state := HandleApproveAction(context.Background(), actx, clickBy("U999"))

	assert.Equal(t, StateUnauthorized, state)
	assert.Empty(t, approver.Calls(), "許可されていないユーザーで承認APIが呼ばれています")

	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Msg.Text, "<@U999>")
	assert.Contains(t, calls[0].Msg.Text, "not authorized")
}

func TestHandleApproveAction_UnauthorizedIsIdempotent(t *testing.T) {
	updater := &fakeUpdater{}
	approver := &fakeApprover{}
	actx := newTestContext(t, updater, approver)

	first := HandleApproveAction(context.Background(), actx, clickBy("U999"))
	second := HandleApproveAction(context.Background(), actx, clickBy("U999"))

	assert.Equal(t, StateUnauthorized, first)
	assert.Equal(t, StateUnauthorized, second)
	assert.Empty(t, approver.Calls())

	calls := updater.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Msg.Text, calls[1].Msg.Text)
}

func TestHandleApproveAction_CaseSensitiveActor(t *testing.T) {
	approver := &fakeApprover{}
	actx := newTestContext(t, &fakeUpdater{}, approver)

	state := HandleApproveAction(context.Background(), actx, clickBy("u123"))

	assert.Equal(t, StateUnauthorized, state)
	assert.Empty(t, approver.Calls())
}

func TestHandleApproveAction_ApprovalRejected(t *testing.T) {
	updater := &fakeUpdater{}
	approver := &fakeApprover{
		ApproveFunc: func(ctx context.Context, repository string, number int) (*models.ApprovalResult, error) {
			return nil, &models.ApprovalError{Status: 422, Message: "Can not approve your own pull request"}
		},
	}
	actx := newTestContext(t, updater, approver)

	state := HandleApproveAction(context.Background(), actx, clickBy("U123"))

	assert.Equal(t, StateApprovalFailed, state)
	assert.Len(t, approver.Calls(), 1)

	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Msg.Text, "Failed to approve pull request #42")
	assert.Contains(t, calls[0].Msg.Text, "Can not approve your own pull request")
}

func TestHandleApproveAction_NetworkFailure(t *testing.T) {
	updater := &fakeUpdater{}
	approver := &fakeApprover{
		ApproveFunc: func(ctx context.Context, repository string, number int) (*models.ApprovalResult, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
	}
	actx := newTestContext(t, updater, approver)

	state := HandleApproveAction(context.Background(), actx, clickBy("U456"))

	assert.Equal(t, StateApprovalFailed, state)
	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Msg.Text, "connection refused")
}

func TestHandleApproveAction_Ignored(t *testing.T) {
	tests := []struct {
		name  string
		event func() models.InteractionEvent
	}{
		{
			name: "別のアクション",
			event: func() models.InteractionEvent {
				ev := clickBy("U123")
				ev.ActionID = "something_else"
				return ev
			},
		},
		{
			name: "前回の実行のカード",
			event: func() models.InteractionEvent {
				ev := clickBy("U123")
				ev.BlockID = "approve-old-run"
				return ev
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &fakeUpdater{}
			approver := &fakeApprover{}
			actx := newTestContext(t, updater, approver)

			state := HandleApproveAction(context.Background(), actx, tt.event())

			assert.Equal(t, StateIgnored, state)
			assert.Empty(t, approver.Calls())
			assert.Empty(t, updater.Calls())
		})
	}
}

func TestHandleApproveAction_MalformedToken(t *testing.T) {
	updater := &fakeUpdater{}
	approver := &fakeApprover{}
	actx := newTestContext(t, updater, approver)

	ev := clickBy("U123")
	ev.Value = "not-a-token"
	state := HandleApproveAction(context.Background(), actx, ev)

	assert.Equal(t, StateApprovalFailed, state)
	assert.Empty(t, approver.Calls())
	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Msg.Text, "invalid button payload")
}

func TestHandleApproveAction_UpdateFailureIsNotFatal(t *testing.T) {
	updater := &fakeUpdater{err: &models.GatewayError{Op: "chat.update", Err: errors.New("message_not_found")}}
	approver := &fakeApprover{}
	actx := newTestContext(t, updater, approver)

	state := HandleApproveAction(context.Background(), actx, clickBy("U123"))

	assert.Equal(t, StateApproved, state)
	assert.Len(t, updater.Calls(), 1)
}

func TestHandleApproveAction_FallsBackToEventMessage(t *testing.T) {
	updater := &fakeUpdater{}
	actx := newTestContext(t, updater, &fakeApprover{})
	actx.Message = models.MessageRef{}

	ev := clickBy("U123")
	ev.Channel = "C999"
	ev.MessageTS = "9999.0001"
	HandleApproveAction(context.Background(), actx, ev)

	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.MessageRef{Channel: "C999", Timestamp: "9999.0001"}, calls[0].Ref)
}

func TestHandleApproveAction_DuplicateClickWhileApproving(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	approver := &fakeApprover{
		ApproveFunc: func(ctx context.Context, repository string, number int) (*models.ApprovalResult, error) {
			close(entered)
			<-release
			return &models.ApprovalResult{ID: 1, HTMLURL: "https://example.com/review"}, nil
		},
	}
	actx := newTestContext(t, &fakeUpdater{}, approver)

	var wg sync.WaitGroup
	var first State
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = HandleApproveAction(context.Background(), actx, clickBy("U123"))
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("承認APIが呼ばれませんでした")
	}

	second := HandleApproveAction(context.Background(), actx, clickBy("U456"))
	close(release)
	wg.Wait()

	assert.Equal(t, StateApproved, first)
	assert.Equal(t, StateIgnored, second)
	assert.Len(t, approver.Calls(), 1)
}

func TestHandleApproveAction_RetryAfterFailure(t *testing.T) {
	failed := false
	approver := &fakeApprover{}
	approver.ApproveFunc = func(ctx context.Context, repository string, number int) (*models.ApprovalResult, error) {
		if !failed {
			failed = true
			return nil, &models.ApprovalError{Status: 502, Message: "Bad Gateway"}
		}
		return &models.ApprovalResult{ID: 2, HTMLURL: "https://example.com/review"}, nil
	}
	actx := newTestContext(t, &fakeUpdater{}, approver)

	assert.Equal(t, StateApprovalFailed, HandleApproveAction(context.Background(), actx, clickBy("U123")))
	assert.Equal(t, StateApproved, HandleApproveAction(context.Background(), actx, clickBy("U456")))
	assert.Len(t, approver.Calls(), 2)
	assert.True(t, actx.Approved())
}

func TestHandleApproveAction_ClicksAfterApprovalAreIgnored(t *testing.T) {
	updater := &fakeUpdater{}
	approver := &fakeApprover{}
	actx := newTestContext(t, updater, approver)

	require.Equal(t, StateApproved, HandleApproveAction(context.Background(), actx, clickBy("U123")))

	// 承認済みのカードにボタンを戻さない
	assert.Equal(t, StateIgnored, HandleApproveAction(context.Background(), actx, clickBy("U999")))
	assert.Equal(t, StateIgnored, HandleApproveAction(context.Background(), actx, clickBy("U456")))

	assert.Len(t, approver.Calls(), 1)
	calls := updater.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Msg.Text, "approved by <@U123>")
}
