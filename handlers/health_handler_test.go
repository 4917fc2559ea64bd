package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"group-voting-backend/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	env := SetupTestEnvironment(t, envOptions{})

	w := env.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSystemStatus(t *testing.T) {
	env := SetupTestEnvironment(t, envOptions{})

	w := env.do(t, http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info SystemInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, "memory", info.StorageBackend)
	assert.Equal(t, "ok", info.StorageStatus)
	assert.Equal(t, "disabled", info.RedisStatus)
}

func TestMetricsHandler(t *testing.T) {
	env := SetupTestEnvironment(t, envOptions{})
	poll := createTestPoll(t, env, gin.H{"title": "Q", "options": []string{"A"}})
	w := env.do(t, http.MethodPost, "/api/polls/"+poll.ID+"/vote", gin.H{"optionId": "opt-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "# TYPE polls_total gauge\npolls_total 1\n")
	assert.Contains(t, body, "votes_total 1\n")
	assert.Contains(t, body, `poll_votes_total{poll_id="`+poll.ID+`",status="active"} 1`)
}

func TestGetGroups(t *testing.T) {
	env := SetupTestEnvironment(t, envOptions{seed: map[string]string{
		repository.GroupsKey: `[{"id":"1","name":"Finance"},{"id":"2","name":"Ops"}]`,
	}})

	w := env.do(t, http.MethodGet, "/api/groups", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"groups":["Finance","Ops"]}`, w.Body.String())

	empty := SetupTestEnvironment(t, envOptions{})
	w = empty.do(t, http.MethodGet, "/api/groups", nil, nil)
	assert.JSONEq(t, `{"groups":[]}`, w.Body.String())
}

func TestIPRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(0.001, 1)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))
}
