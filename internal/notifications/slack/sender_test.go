package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/alert-garden/internal/domain"
	"github.com/bissquit/alert-garden/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSender_Type(t *testing.T) {
	assert.Equal(t, domain.ChannelTypeSlack, NewSender(0).Type())
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "⚠️ Checkout errors\nStatus: Resolved", payload["text"])

		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	err := NewSender(0).Send(context.Background(), notifications.Message{
		WebhookURL: server.URL,
		Text:       "⚠️ Checkout errors\nStatus: Resolved",
	})
	assert.NoError(t, err)
}

func TestSender_Send_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
		wantContains  string
	}{
		{"invalid token", http.StatusForbidden, false, "slack error 403"},
		{"no service", http.StatusNotFound, false, "slack error 404"},
		{"server error", http.StatusInternalServerError, true, "slack error 500"},
		{"rate limited", http.StatusTooManyRequests, true, "slack error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.status == http.StatusTooManyRequests {
					w.Header().Set("Retry-After", "1")
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := NewSender(0).Send(context.Background(), notifications.Message{WebhookURL: server.URL, Text: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
			assert.Equal(t, tt.wantRetryable, notifications.IsRetryable(err))
		})
	}
}

func TestSender_Send_ConnectionErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewSender(0).Send(context.Background(), notifications.Message{WebhookURL: url, Text: "x"})
	require.Error(t, err)
	assert.True(t, notifications.IsRetryable(err))
}
