package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"salon-chat/auth"
	"salon-chat/httpapi"
	"salon-chat/observability"
	"salon-chat/repositories"
	"salon-chat/services"
)

type apiFixture struct {
	server *httptest.Server
	tokens auth.TokenManager
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	monitor, err := observability.NewMonitor(log)
	require.NoError(t, err)

	svc := services.NewMessageService(
		repositories.NewMessageRepository(db, log, 3, 5*time.Millisecond),
		repositories.NewSearchIndex(writer, log),
		repositories.NewConversationRepository(db, log),
		nil, log, 4096, 50,
	)
	conversations := repositories.NewConversationRepository(db, log)
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	router := httpapi.NewRouter(httpapi.NewHandler(svc, conversations, monitor, log, 5*time.Second), tokens)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return apiFixture{server: server, tokens: tokens}
}

func (f apiFixture) do(t *testing.T, userID, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	request, err := http.NewRequest(method, f.server.URL+path, &payload)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := f.tokens.Generate(userID, nil)
		require.NoError(t, err)
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := f.server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func (f apiFixture) doList(t *testing.T, userID, path string) (*http.Response, []map[string]any) {
	t.Helper()
	token, err := f.tokens.Generate(userID, nil)
	require.NoError(t, err)
	request, err := http.NewRequest(http.MethodGet, f.server.URL+path, nil)
	require.NoError(t, err)
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := f.server.Client().Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	var decoded []map[string]any
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func Test_API_Requires_Bearer_Token(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	response, _ := f.do(t, "", http.MethodGet, "/api/chats/chat-1/messages", nil)
	req.Equal(http.StatusUnauthorized, response.StatusCode)
}

func Test_API_Message_Lifecycle(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	// Send.
	response, sent := f.do(t, "alice", http.MethodPost, "/api/chats/chat-1/messages",
		gin.H{"content": "hello there"})
	req.Equal(http.StatusCreated, response.StatusCode)
	req.Equal("alice", sent["sender"])
	req.Equal("hello there", sent["content"])
	messageID := sent["id"].(string)

	// The latest-message pointer is immediately queryable.
	response, latest := f.do(t, "bob", http.MethodGet, "/api/chats/chat-1/latest-message", nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.Equal(messageID, latest["id"])

	// Bob has one unseen message, alice none.
	response, count := f.do(t, "bob", http.MethodGet, "/api/chats/chat-1/unseen-count", nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.EqualValues(1, count["count"])
	_, count = f.do(t, "alice", http.MethodGet, "/api/chats/chat-1/unseen-count", nil)
	req.EqualValues(0, count["count"])

	// Bob reads it.
	response, read := f.do(t, "bob", http.MethodPost, "/api/messages/"+messageID+"/read", nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.ElementsMatch([]any{"alice", "bob"}, read["readBy"])

	// Only the author can edit.
	response, _ = f.do(t, "bob", http.MethodPatch, "/api/messages/"+messageID,
		gin.H{"content": "hijacked"})
	req.Equal(http.StatusForbidden, response.StatusCode)

	response, edited := f.do(t, "alice", http.MethodPatch, "/api/messages/"+messageID,
		gin.H{"content": "hello again"})
	req.Equal(http.StatusOK, response.StatusCode)
	req.Equal(true, edited["isEdited"])
	req.Len(edited["editHistory"], 1)

	// Search finds the current content.
	response, hits := f.doList(t, "alice", "/api/messages/search?term=again&chat=chat-1")
	req.Equal(http.StatusOK, response.StatusCode)
	req.Len(hits, 1)
	req.Equal(messageID, hits[0]["id"])

	// Pin, then delete.
	response, pinned := f.do(t, "alice", http.MethodPost, "/api/messages/"+messageID+"/pin", nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.Equal(true, pinned["isPinned"])

	response, deleted := f.do(t, "alice", http.MethodDelete, "/api/messages/"+messageID, nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.Equal(true, deleted["isDeleted"])

	// Editing the tombstone is a state conflict.
	response, _ = f.do(t, "alice", http.MethodPatch, "/api/messages/"+messageID,
		gin.H{"content": "necromancy"})
	req.Equal(http.StatusConflict, response.StatusCode)

	// The listing no longer shows it.
	response, listed := f.doList(t, "alice", "/api/chats/chat-1/messages")
	req.Equal(http.StatusOK, response.StatusCode)
	req.Empty(listed)
}

func Test_API_Rejects_Malformed_Input(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	response, _ := f.do(t, "alice", http.MethodPost, "/api/chats/chat-1/messages", gin.H{})
	req.Equal(http.StatusBadRequest, response.StatusCode)

	response, _ = f.do(t, "alice", http.MethodPost, "/api/chats/chat-1/messages",
		gin.H{"content": "hi", "replyTo": "not-a-uuid"})
	req.Equal(http.StatusBadRequest, response.StatusCode)

	response, _ = f.do(t, "alice", http.MethodPatch, "/api/messages/not-a-uuid",
		gin.H{"content": "hi"})
	req.Equal(http.StatusBadRequest, response.StatusCode)

	response, _ = f.do(t, "alice", http.MethodPatch, fmt.Sprintf("/api/messages/%s", "11111111-1111-1111-1111-111111111111"),
		gin.H{"content": "hi"})
	req.Equal(http.StatusNotFound, response.StatusCode)
}

func Test_CORS_Preflight_Uses_Wildcard_Without_Credentials(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	request, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/chats/chat-1/messages", nil)
	req.NoError(err)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", "POST")

	response, err := f.server.Client().Do(request)
	req.NoError(err)
	defer response.Body.Close()

	req.Equal(http.StatusNoContent, response.StatusCode)
	req.Equal("*", response.Header.Get("Access-Control-Allow-Origin"))
	// A wildcard origin and credentialed CORS are mutually exclusive in
	// browsers, so credentials must stay disabled.
	req.Empty(response.Header.Get("Access-Control-Allow-Credentials"))
}

func Test_Debug_Stats_Is_Open(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	response, stats := f.do(t, "", http.MethodGet, "/debug/stats", nil)
	req.Equal(http.StatusOK, response.StatusCode)
	req.Contains(stats, "goroutines")
}
