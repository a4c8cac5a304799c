package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/trendspark/internal/httpclient"
	qtesting "github.com/teranos/trendspark/internal/testing"
)

func TestStoreRecordAndRecent(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	store := NewStore(db)

	require.NoError(t, store.Record(ChannelTelegram, "trending", "first", map[string]any{"count": 2}))
	require.NoError(t, store.Record(ChannelTelegram, "monitoring", "second", nil))

	recent, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Message)
	assert.Equal(t, "first", recent[1].Message)
	assert.Equal(t, "trending", recent[1].Category)
	assert.EqualValues(t, 2, recent[1].Payload["count"])
}

func TestTelegramSendSuccess(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	store := NewStore(db)

	var gotPath string
	var gotBody sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
	}))
	defer server.Close()

	sender := &TelegramSender{
		client:   httpclient.WrapClient(server.Client()),
		baseURL:  server.URL,
		botToken: "tok",
		chatID:   "chat-1",
		store:    store,
		log:      zap.NewNop().Sugar(),
	}

	ok := sender.Send(context.Background(), "hello", "trending", map[string]any{"count": 1})
	assert.True(t, ok)
	assert.Equal(t, "/bottok/sendMessage", gotPath)
	assert.Equal(t, "chat-1", gotBody.ChatID)
	assert.Equal(t, "hello", gotBody.Text)

	recent, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "hello", recent[0].Message)
}

func TestTelegramSendFailureIsAbsorbed(t *testing.T) {
	db := qtesting.CreateTestDB(t)
	store := NewStore(db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(sendMessageResponse{OK: false, Description: "upstream down"})
	}))
	defer server.Close()

	sender := &TelegramSender{
		client:   httpclient.WrapClient(server.Client()),
		baseURL:  server.URL,
		botToken: "tok",
		chatID:   "chat-1",
		store:    store,
		log:      zap.NewNop().Sugar(),
	}

	ok := sender.Send(context.Background(), "hello", "trending", nil)
	assert.False(t, ok)

	// Failed deliveries are not audited.
	recent, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestNopSender(t *testing.T) {
	assert.True(t, NopSender{}.Send(context.Background(), "m", "c", nil))
}
