package posestream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/animator"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/chat"
	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/errs"
	"github.com/normanking/talkinghead/internal/logging"
)

type fakeSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	stopped int
	busy    bool
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errs.ErrInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return "session-1", nil
}

func (f *fakeSpeaker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeSpeaker) setBusy(busy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = busy
}

func (f *fakeSpeaker) calls() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...), f.stopped
}

func (f *fakeSpeaker) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Send(context.Context, string) (string, error) {
	return f.reply, f.err
}

type fakeLogs struct{}

func (fakeLogs) History(limit int) []logging.LogEntry {
	entries := []logging.LogEntry{{Level: "info", Message: "one"}, {Level: "info", Message: "two"}}
	if limit > 0 && limit < len(entries) {
		return entries[len(entries)-limit:]
	}
	return entries
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *Hub, *fakeSpeaker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zerolog.Nop(), time.Second, 8)
	go hub.Run(ctx)

	speaker := &fakeSpeaker{}
	srv := NewServer(zerolog.Nop(), "", hub, speaker, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, hub, speaker
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func dial(t *testing.T, ts *httptest.Server, hub *Hub) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/pose"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestPoseBroadcast(t *testing.T) {
	ts, hub, _ := newTestServer(t)
	conn := dial(t, ts, hub)

	hub.WritePose(animator.Pose{Viseme: "aa", Emotion: emotion.Happy, Mouth: animator.MouthPose{Height: 0.8}})

	f := readFrame(t, conn)
	assert.Equal(t, FramePose, f.Type)
	require.NotNil(t, f.Pose)
	assert.Equal(t, "aa", f.Pose.Viseme)
	assert.Equal(t, emotion.Happy, f.Pose.Emotion)
	assert.Equal(t, 0.8, f.Pose.Mouth.Height)
}

func TestEventBroadcast(t *testing.T) {
	ts, hub, _ := newTestServer(t)
	b := bus.New()
	detach := hub.Attach(b)
	defer detach()
	conn := dial(t, ts, hub)

	b.Publish(bus.ErrorOccurred("s1", errors.New("boom")))

	f := readFrame(t, conn)
	assert.Equal(t, FrameEvent, f.Type)
	require.NotNil(t, f.Event)
	assert.Equal(t, bus.EventTypeError, f.Event.Type)
	assert.Equal(t, "boom", f.Event.Message)
	assert.Equal(t, "s1", f.Event.Session)
}

func TestWritePoseNeverBlocks(t *testing.T) {
	hub := NewHub(zerolog.Nop(), time.Second, 1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*4; i++ {
			hub.WritePose(animator.Pose{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WritePose blocked without a running hub")
	}
}

func TestClientDisconnect(t *testing.T) {
	ts, hub, _ := newTestServer(t)
	conn := dial(t, ts, hub)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestSpeak(t *testing.T) {
	ts, _, speaker := newTestServer(t)

	resp := post(t, ts.URL+"/speak", `{"text": "hello"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body SpeakResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "session-1", body.Session)
	spoken, _ := speaker.calls()
	assert.Equal(t, []string{"hello"}, spoken)
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := post(t, ts.URL+"/speak", `{"text": "  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_input", body.Error)
}

func TestSpeakRejectsBadJSON(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := post(t, ts.URL+"/speak", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStop(t *testing.T) {
	ts, _, speaker := newTestServer(t)
	resp := post(t, ts.URL+"/stop", ``)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, stopped := speaker.calls()
	assert.Equal(t, 1, stopped)
}

func TestHealth(t *testing.T) {
	ts, _, speaker := newTestServer(t)
	speaker.setBusy(true)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, HealthResponse{Status: "ok", Busy: true, Clients: 0}, body)
}

func TestMetrics(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChatDisabled(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := post(t, ts.URL+"/chat", `{"text": "hi"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatSpeaksReply(t *testing.T) {
	ts, _, speaker := newTestServer(t, WithChat(&fakeChat{reply: "Hi there!"}))

	resp := post(t, ts.URL+"/chat", `{"text": "hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, ChatResponse{Reply: "Hi there!", Session: "session-1"}, body)
	spoken, _ := speaker.calls()
	assert.Equal(t, []string{"Hi there!"}, spoken)
}

func TestChatSpeaksReplyWithoutMarkdown(t *testing.T) {
	reply := "**Sure!** Here is the plan:\n- check the `config`\n- read [the docs](http://example.com)"
	ts, _, speaker := newTestServer(t, WithChat(&fakeChat{reply: reply}))

	resp := post(t, ts.URL+"/chat", `{"text": "hello"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, reply, body.Reply, "the reply is returned as written")

	spoken, _ := speaker.calls()
	assert.Equal(t, []string{"Sure! Here is the plan: check the read the docs"}, spoken)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"busy", chat.ErrBusy, http.StatusConflict},
		{"empty", errs.ErrInvalidInput, http.StatusBadRequest},
		{"backend", chat.ErrRequestFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _, speaker := newTestServer(t, WithChat(&fakeChat{err: tt.err}))
			resp := post(t, ts.URL+"/chat", `{"text": "hello"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			spoken, _ := speaker.calls()
			assert.Empty(t, spoken)
		})
	}
}

func TestLogs(t *testing.T) {
	ts, _, _ := newTestServer(t, WithLogs(fakeLogs{}))

	resp, err := http.Get(ts.URL + "/logs?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []logging.LogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "two", entries[0].Message)

	bad := post(t, ts.URL+"/logs", ``)
	assert.Equal(t, http.StatusMethodNotAllowed, bad.StatusCode)
}
