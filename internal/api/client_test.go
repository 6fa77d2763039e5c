package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", "tok", "client-1", time.Second)
}

func TestFetchNotifications_Paged(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/notification", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "client-1", r.Header.Get("X-Client-Id"))
		io.WriteString(w, `{"status":"success","data":{"notifications":[
			{"notificationId":"n1","type":"event_invitation","title":"t","isRead":false},
			{"notificationId":"n2","type":"some_future_type","isRead":true,"readAt":"2024-05-01T10:00:00Z"}
		],"totalCount":50}}`)
	})

	page, err := c.FetchNotifications(context.Background(), 20, 20)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	assert.Equal(t, 50, page.TotalCount)
	assert.Equal(t, "n1", page.Notifications[0].NotificationID)
	assert.Equal(t, "some_future_type", string(page.Notifications[1].Type))
	require.NotNil(t, page.Notifications[1].ReadAt)
}

func TestFetchNotifications_Unpaged(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		io.WriteString(w, `{"status":200,"data":{"notifications":[]}}`)
	})

	page, err := c.FetchNotifications(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Notifications)
	assert.Zero(t, page.TotalCount)
}

func TestMarkRead(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/notification/n%2F2/read", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.MarkRead(context.Background(), "n/2"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRespondEvent_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/event/e1/participants/u1/update-status", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "accepted", body["status"])
		io.WriteString(w, `{"status":200}`)
	})

	res, err := c.RespondEvent(context.Background(), "e1", "u1", "accepted")
	require.NoError(t, err)
	assert.False(t, res.Conflict)
	assert.Nil(t, res.ConflictData)
}

func TestRespondEvent_ConflictInBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":200,"hasConflict":true,"message":"overlap",
			"conflictData":{"conflicts":[{"eventId":"e9","title":"Dinner"}]}}`)
	})

	res, err := c.RespondEvent(context.Background(), "e1", "u1", "accepted")
	require.NoError(t, err)
	require.True(t, res.Conflict)
	require.NotNil(t, res.ConflictData)
	assert.Equal(t, "overlap", res.ConflictData.Message)
	require.Len(t, res.ConflictData.Conflicts, 1)
	assert.Equal(t, "e9", res.ConflictData.Conflicts[0].EventID)
	assert.NotEmpty(t, res.ConflictData.Raw)
}

func TestRespondEvent_Conflict409(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"message":"schedule clash"}`)
	})

	res, err := c.RespondEvent(context.Background(), "e1", "u1", "accepted")
	require.NoError(t, err)
	assert.True(t, res.Conflict)
	assert.Equal(t, "schedule clash", res.ConflictData.Message)
}

func TestRespondEvent_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"boom"}`)
	})

	_, err := c.RespondEvent(context.Background(), "e1", "u1", "declined")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Contains(t, err.Error(), "boom")
}

func TestRespondInvites(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var body inviteRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tk", body.Token)
		assert.Equal(t, "accept", body.Action)
		io.WriteString(w, `{"message":"joined","membership":{"role":"member"}}`)
	})

	res, err := c.RespondWorkspaceInvite(context.Background(), "tk", "accept")
	require.NoError(t, err)
	assert.Equal(t, "joined", res.Message)
	assert.JSONEq(t, `{"role":"member"}`, string(res.Membership))

	_, err = c.RespondBoardInvite(context.Background(), "w1", "tk", "accept")
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/workspace/invite-response", "/api/workspace/w1/board/invite-response"}, paths)
}

func TestAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.FetchNotifications(context.Background(), 0, 20)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.False(t, IsTimeout(err))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewClient(srv.URL, "tok", "", 50*time.Millisecond)
	err := c.MarkRead(context.Background(), "n1")
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}
