package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncService struct {
	saveOutcomes []service.SaveOutcome
	saveErr      error
	savedBatch   []model.Message

	loadResult service.LoadResult
	loadErr    error
}

func (f *fakeSyncService) Save(_ context.Context, _ string, _ uint, candidates []model.Message) ([]service.SaveOutcome, error) {
	f.savedBatch = candidates
	return f.saveOutcomes, f.saveErr
}

func (f *fakeSyncService) Load(_ context.Context, _ string) (service.LoadResult, error) {
	return f.loadResult, f.loadErr
}

type fakeConversationService struct {
	getErr error
}

func (f *fakeConversationService) Create(_ context.Context, _ uint, topic, mode string) (*model.Conversation, model.Message, error) {
	return &model.Conversation{Topic: topic, Mode: mode}, model.Message{}, nil
}

func (f *fakeConversationService) ListByUser(_ context.Context, _ uint) ([]model.Conversation, error) {
	return nil, nil
}

func (f *fakeConversationService) Get(_ context.Context, userID uint, conversationID string) (*model.Conversation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &model.Conversation{ID: conversationID, UserID: userID}, nil
}

func (f *fakeConversationService) Delete(_ context.Context, _ uint, _ string) error {
	return nil
}

// newSyncRouter 搭建只含同步路由的测试引擎，用假中间件注入已登录用户。
func newSyncRouter(syncSvc service.SyncService, convSvc service.ConversationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user", &model.User{ID: 1, Username: "alice"})
		c.Next()
	})
	h := NewSyncHandler(syncSvc, convSvc)
	r.POST("/sync/:conversationId", h.Save)
	r.GET("/sync/:conversationId", h.Load)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	return w, parsed
}

func TestSyncSaveSuccess(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	syncSvc := &fakeSyncService{
		saveOutcomes: []service.SaveOutcome{
			{Message: model.Message{Role: model.RoleUser, Content: "Hi", Timestamp: ts}, ID: "msg-1"},
		},
	}
	r := newSyncRouter(syncSvc, &fakeConversationService{})

	w, resp := doRequest(t, r, http.MethodPost, "/sync/42",
		`{"messages":[{"role":"user","content":"Hi"}]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["success"])
	results := data["perMessageResults"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "msg-1", first["id"])
	assert.Equal(t, true, first["success"])

	// 请求体被转换为批次传递给服务层
	require.Len(t, syncSvc.savedBatch, 1)
	assert.Equal(t, "42", syncSvc.savedBatch[0].ConversationID)
}

func TestSyncSaveMalformedBody(t *testing.T) {
	r := newSyncRouter(&fakeSyncService{}, &fakeConversationService{})

	cases := []struct {
		name string
		body string
	}{
		{"缺少 messages 字段", `{}`},
		{"messages 不是数组", `{"messages":"oops"}`},
		{"消息缺少 role", `{"messages":[{"content":"Hi"}]}`},
		{"role 非法", `{"messages":[{"role":"robot","content":"Hi"}]}`},
		{"非 JSON 请求体", `not json at all`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, _ := doRequest(t, r, http.MethodPost, "/sync/42", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSyncSaveAllFailed(t *testing.T) {
	syncSvc := &fakeSyncService{
		saveOutcomes: []service.SaveOutcome{
			{Message: model.Message{Role: model.RoleUser, Content: "Hi"}, Err: assert.AnError},
		},
		saveErr: service.ErrAllMessagesFailed,
	}
	r := newSyncRouter(syncSvc, &fakeConversationService{})

	w, resp := doRequest(t, r, http.MethodPost, "/sync/42",
		`{"messages":[{"role":"user","content":"Hi"}]}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, false, data["success"])
	results := data["perMessageResults"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, false, first["success"])
	assert.NotEmpty(t, first["error"])
}

func TestSyncSaveForbiddenConversation(t *testing.T) {
	r := newSyncRouter(&fakeSyncService{}, &fakeConversationService{getErr: service.ErrConversationNotOwned})

	w, _ := doRequest(t, r, http.MethodPost, "/sync/42",
		`{"messages":[{"role":"user","content":"Hi"}]}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSyncLoadSuccess(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	syncSvc := &fakeSyncService{
		loadResult: service.LoadResult{
			Messages: []model.Message{
				{ID: "msg-1", Role: model.RoleUser, Content: "Hi", Timestamp: ts},
				{ID: "msg-2", Role: model.RoleAssistant, Content: "Hello!", Timestamp: ts.Add(time.Second)},
			},
		},
	}
	r := newSyncRouter(syncSvc, &fakeConversationService{})

	w, resp := doRequest(t, r, http.MethodGet, "/sync/42", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["success"])
	assert.Equal(t, false, data["stale"])
	messages := data["messages"].([]interface{})
	require.Len(t, messages, 2)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "msg-1", first["id"])
	assert.NotEmpty(t, first["timestamp"])
}

func TestSyncLoadStale(t *testing.T) {
	syncSvc := &fakeSyncService{
		loadResult: service.LoadResult{
			Messages: []model.Message{{ID: "msg-1", Role: model.RoleUser, Content: "Hi"}},
			Stale:    true,
		},
	}
	r := newSyncRouter(syncSvc, &fakeConversationService{})

	w, resp := doRequest(t, r, http.MethodGet, "/sync/42", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["stale"])
}

func TestSyncLoadUnavailable(t *testing.T) {
	syncSvc := &fakeSyncService{loadErr: assert.AnError}
	r := newSyncRouter(syncSvc, &fakeConversationService{})

	w, _ := doRequest(t, r, http.MethodGet, "/sync/42", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSyncLoadEmptyConversation(t *testing.T) {
	syncSvc := &fakeSyncService{loadResult: service.LoadResult{Messages: []model.Message{}}}
	r := newSyncRouter(syncSvc, &fakeConversationService{})

	w, resp := doRequest(t, r, http.MethodGet, "/sync/42", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	messages := data["messages"].([]interface{})
	assert.Empty(t, messages)
}
