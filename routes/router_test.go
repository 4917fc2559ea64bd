package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"group-voting-backend/handlers"
	"group-voting-backend/models"
	"group-voting-backend/repository"
	"group-voting-backend/service"
	"group-voting-backend/websocket"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRouter struct {
	router *gin.Engine
	hub    *websocket.Hub
}

// newTestRouter 用内存存储装配与main相同的依赖
func newTestRouter(t *testing.T, limiter *handlers.IPRateLimiter) *testRouter {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore(map[string]string{
		repository.GroupsKey: `[{"id":"1","name":"Finance"}]`,
	})
	hub := websocket.NewHub(nil)
	svc := service.NewPollService(repository.NewPollRepository(store, nil), hub, nil,
		service.WithClock(func() time.Time { return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC) }),
		service.WithDateRangeCheck())
	require.NoError(t, svc.Load(context.Background()))

	polls := handlers.NewPollHandler(svc, nil, nil)
	router := SetupRouter(Dependencies{
		Polls:       polls,
		Groups:      handlers.NewGroupHandler(repository.NewGroupDirectory(store, nil)),
		Health:      handlers.NewHealthHandler(svc, "memory", func(context.Context) error { return nil }, nil),
		WebSocket:   websocket.NewHandler(hub, polls.PollExists, nil),
		RateLimiter: limiter,
		AdminRoles:  []string{"admin"},
	})
	return &testRouter{router: router, hub: hub}
}

func (r *testRouter) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.router.ServeHTTP(w, req)
	return w
}

func (r *testRouter) createPoll(t *testing.T, body gin.H) models.Poll {
	t.Helper()
	w := r.do(t, http.MethodPost, "/api/polls", body, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var poll models.Poll
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))
	return poll
}

func TestSetupRouter_PublicRoutes(t *testing.T) {
	r := newTestRouter(t, nil)
	poll := r.createPoll(t, gin.H{"title": "Q", "options": []string{"A"}})

	w := r.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = r.do(t, http.MethodGet, "/api/groups", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"groups":["Finance"]}`, w.Body.String())

	// stats是静态路由，不会被当成投票ID
	w = r.do(t, http.MethodGet, "/api/polls/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"totalPolls":1`)

	w = r.do(t, http.MethodGet, "/api/polls/"+poll.ID, nil, map[string]string{handlers.HeaderUserRole: "member"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = r.do(t, http.MethodPost, "/api/polls/"+poll.ID+"/vote", gin.H{"optionId": "opt-1"},
		map[string]string{handlers.HeaderUserRole: "member"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_AdminRoutes(t *testing.T) {
	r := newTestRouter(t, nil)
	member := map[string]string{handlers.HeaderUserRole: "member"}
	admin := map[string]string{handlers.HeaderUserRole: "admin"}

	w := r.do(t, http.MethodPost, "/api/polls", gin.H{"title": "Q"}, member)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = r.do(t, http.MethodPost, "/api/polls", gin.H{"title": "Q", "options": []string{"A"}}, admin)
	require.Equal(t, http.StatusCreated, w.Code)
	var poll models.Poll
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))

	for _, tc := range []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodPut, "/api/polls/" + poll.ID, gin.H{"title": "Q2"}},
		{http.MethodPost, "/api/polls/" + poll.ID + "/close", nil},
		{http.MethodPost, "/api/polls/" + poll.ID + "/cancel", nil},
		{http.MethodDelete, "/api/polls/" + poll.ID, nil},
	} {
		w = r.do(t, tc.method, tc.path, tc.body, member)
		assert.Equal(t, http.StatusForbidden, w.Code, tc.method+" "+tc.path)
	}

	w = r.do(t, http.MethodPut, "/api/polls/"+poll.ID, gin.H{"startDate": "2025-03-01", "endDate": "2025-02-01"}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = r.do(t, http.MethodPost, "/api/polls/"+poll.ID+"/cancel", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	w = r.do(t, http.MethodPost, "/api/polls/"+poll.ID+"/close", nil, admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = r.do(t, http.MethodDelete, "/api/polls/"+poll.ID, nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_VoteRateLimited(t *testing.T) {
	r := newTestRouter(t, handlers.NewIPRateLimiter(0.001, 1))
	poll := r.createPoll(t, gin.H{"title": "Q", "options": []string{"A"}})
	url := "/api/polls/" + poll.ID + "/vote"

	assert.Equal(t, http.StatusOK, r.do(t, http.MethodPost, url, gin.H{"optionId": "opt-1"}, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, r.do(t, http.MethodPost, url, gin.H{"optionId": "opt-1"}, nil).Code)

	// 只限制投票接口
	assert.Equal(t, http.StatusOK, r.do(t, http.MethodGet, "/api/polls/"+poll.ID, nil, nil).Code)
}

func TestSetupRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/polls", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", handlers.HeaderUserRole)
	w := httptest.NewRecorder()
	r.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRouter_WebSocketVisibility(t *testing.T) {
	r := newTestRouter(t, nil)
	restricted := r.createPoll(t, gin.H{
		"title":        "Board only",
		"options":      []string{"A"},
		"visibility":   "restricted",
		"visibleRoles": []string{"board"},
	})

	srv := httptest.NewServer(r.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/polls/" + restricted.ID + "/ws"

	_, resp, err := gws.DefaultDialer.Dial(strings.Replace(url, restricted.ID, "missing", 1), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = gws.DefaultDialer.Dial(url, http.Header{handlers.HeaderUserRole: {"member"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := gws.DefaultDialer.Dial(url, http.Header{handlers.HeaderUserRole: {"board"}})
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return r.hub.ClientCount(restricted.ID) == 1 }, time.Second, 10*time.Millisecond)

	w := r.do(t, http.MethodPost, "/api/polls/"+restricted.ID+"/vote", gin.H{"optionId": "opt-1"},
		map[string]string{handlers.HeaderUserRole: "board"})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg models.WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, restricted.ID, msg.PollID)
}
