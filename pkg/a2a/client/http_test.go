package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-a2a/maestro/pkg/a2a"
)

func TestSendTaskMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/tasks/send", r.URL.Path)

		var params a2a.SendTaskParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "task-1", params.TaskID)
		assert.Equal(t, "hello", a2a.TextOf(&params.Message))

		reply := a2a.NewTextMessage(a2a.MessageRoleAgent, "msg-reply", "world")
		task := a2a.Task{
			ID: params.TaskID,
			Status: a2a.TaskStatus{
				State:   a2a.TaskStateCompleted,
				Message: &reply,
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(task))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	msg := a2a.NewTextMessage(a2a.MessageRoleUser, "msg-1", "hello")

	task, err := c.SendTaskMessage(context.Background(), "task-1", msg, "", 0)
	require.NoError(t, err)

	assert.Equal(t, "task-1", task.ID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.Equal(t, "world", a2a.TextOf(task.Status.Message))
}

func TestSendTaskMessageBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(a2a.Task{ID: "t"}))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithToken("secret"))
	_, err := c.SendTaskMessage(context.Background(), "t", a2a.Message{}, "", 0)
	require.NoError(t, err)
}

func TestSendTaskMessageTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.SendTaskMessage(context.Background(), "t", a2a.Message{}, "", 20*time.Millisecond)
	require.Error(t, err)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, srv.URL, timeoutErr.AgentURL)
}

func TestSendTaskMessageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.SendTaskMessage(context.Background(), "t", a2a.Message{}, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestGetTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/tasks/task-9", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("historyLength"))

		task := a2a.Task{
			ID:     "task-9",
			Status: a2a.TaskStatus{State: a2a.TaskStateWorking},
		}
		require.NoError(t, json.NewEncoder(w).Encode(task))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	task, err := c.GetTask(context.Background(), "task-9", 5)
	require.NoError(t, err)

	assert.Equal(t, "task-9", task.ID)
	assert.Equal(t, a2a.TaskStateWorking, task.Status.State)
}
