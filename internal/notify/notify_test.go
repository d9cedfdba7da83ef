package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct{ mock.Mock }

func (m *MockSender) Send(ctx context.Context, title, message string) error {
	return m.Called(ctx, title, message).Error(0)
}

func (m *MockSender) Name() string { return m.Called().String(0) }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := new(MockSender)
	s.On("Send", mock.Anything, "Trade executed", "AAPLx +$4.20").Return(nil).Once()
	s.On("Name").Return("mock").Maybe()

	n := NewNotifier([]Sender{s}, []string{"trade_executed", " daily_loss_limit "}, slog.Default())
	require.NoError(t, n.Notify(context.Background(), "opportunity_found", "Opportunity", "ignored"))
	require.NoError(t, n.Notify(context.Background(), "trade_executed", "Trade executed", "AAPLx +$4.20"))
	s.AssertExpectations(t)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := new(MockSender)
	s.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	s.On("Name").Return("mock").Maybe()

	n := NewNotifier([]Sender{s}, nil, slog.Default())
	assert.True(t, n.Enabled())
	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	s.AssertNumberOfCalls(t, "Send", 1)

	assert.False(t, NewNotifier(nil, nil, slog.Default()).Enabled())
}

func TestNotifier_OneFailureDoesNotStopOthers(t *testing.T) {
	bad := new(MockSender)
	bad.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))
	bad.On("Name").Return("bad")
	good := new(MockSender)
	good.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	good.On("Name").Return("good")

	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())
	err := n.Notify(context.Background(), "trade_failed", "Trade failed", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	good.AssertNumberOfCalls(t, "Send", 1)
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Daily loss limit", "loss <$100>"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>Daily loss limit</b>\nloss &lt;$100&gt;", got["text"])
}

func TestDiscordSender_ErrorStatusAndTruncation(t *testing.T) {
	var content string
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		content = body["content"]
		w.WriteHeader(status)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Title", strings.Repeat("x", 3000)))
	assert.Len(t, []rune(content), discordMaxContent)

	status = http.StatusTooManyRequests
	err := d.Send(context.Background(), "Title", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}
