package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkd-app/echo-flow/internal/inject"
)

type fakeInjector struct {
	mu    sync.Mutex
	busy  bool
	texts []string
}

func (f *fakeInjector) Inject(text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return "", inject.ErrBusy
	}
	f.texts = append(f.texts, text)
	return "job-1", nil
}

func (f *fakeInjector) InjectAndWait(_ context.Context, text string) (inject.Result, error) {
	id, err := f.Inject(text)
	if err != nil {
		return inject.Result{}, err
	}
	n := len([]rune(text))
	return inject.Result{JobID: id, Chars: n, Sent: n}, nil
}

func (f *fakeInjector) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

type fakeQuitter struct {
	called chan struct{}
	once   sync.Once
}

func (q *fakeQuitter) Quit() {
	q.once.Do(func() { close(q.called) })
}

const testToken = "secret"

func newTestServer() (*Server, *fakeInjector, *fakeQuitter) {
	inj := &fakeInjector{}
	q := &fakeQuitter{called: make(chan struct{})}
	s := New(Options{
		Addr:       "127.0.0.1:0",
		Token:      testToken,
		Version:    "test",
		Injector:   inj,
		Quitter:    q,
		TrayActive: func() bool { return true },
	})
	return s, inj, q
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestType_Accepted(t *testing.T) {
	s, inj, _ := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"Hi!"}`, testToken)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"Hi!"}, inj.texts)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body["job_id"])
}

func TestType_BusyReturnsConflict(t *testing.T) {
	s, inj, _ := newTestServer()
	inj.busy = true

	w := do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"x"}`, testToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"x","wait":true}`, testToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, inj.texts)
}

func TestType_BusyCallsOnRejected(t *testing.T) {
	s, inj, _ := newTestServer()
	inj.busy = true

	var rejected []int
	s.opts.OnRejected = func(source string, chars int) {
		assert.Equal(t, "control", source)
		rejected = append(rejected, chars)
	}

	w := do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"世界!"}`, testToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []int{3}, rejected)
}

func TestType_WaitReturnsResult(t *testing.T) {
	s, _, _ := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"héllo","wait":true}`, testToken)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Chars int `json:"chars"`
		Sent  int `json:"sent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Chars)
	assert.Equal(t, 5, body.Sent)
}

func TestType_BadBody(t *testing.T) {
	s, _, _ := newTestServer()
	w := do(t, s.Handler(), http.MethodPost, "/v1/type", `not json`, testToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuit(t *testing.T) {
	s, _, q := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/v1/quit", "", testToken)
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case <-q.called:
	case <-time.After(time.Second):
		t.Fatal("quit was not invoked")
	}
}

func TestStatus(t *testing.T) {
	s, inj, _ := newTestServer()
	inj.busy = true

	w := do(t, s.Handler(), http.MethodGet, "/v1/status", "", testToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"busy":true,"tray":true,"version":"test"}`, w.Body.String())
}

func TestToken(t *testing.T) {
	s, inj, _ := newTestServer()

	w := do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"a"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"a"}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, inj.texts)

	w = do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"a"}`, testToken)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestEmptyTokenRejectsEverything(t *testing.T) {
	inj := &fakeInjector{}
	s := New(Options{Addr: "127.0.0.1:0", Injector: inj})

	w := do(t, s.Handler(), http.MethodPost, "/v1/type", `{"text":"a"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, inj.texts)

	assert.ErrorIs(t, s.Start(), ErrNoToken)
	assert.Empty(t, s.Addr())
}

// 网页可以不经预检发出 text/plain 的 POST，这类请求不能触发输入
func TestType_RejectsBrowserRequests(t *testing.T) {
	s, inj, q := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/type", strings.NewReader(`{"text":"rm -rf ~\n"}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/type", strings.NewReader(`{"text":"a"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/quit", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	assert.Empty(t, inj.texts)
	select {
	case <-q.called:
		t.Fatal("quit must not be invoked")
	default:
	}
}

func TestStart_ServesOnLoopback(t *testing.T) {
	s, _, _ := newTestServer()
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	assert.Error(t, s.Start(), "second Start should fail")

	req, err := http.NewRequest(http.MethodGet, "http://"+s.Addr()+"/v1/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStart_RejectsNonLoopback(t *testing.T) {
	s := New(Options{Addr: "0.0.0.0:0", Token: testToken, Injector: &fakeInjector{}})
	assert.Error(t, s.Start())
	assert.Empty(t, s.Addr())
}
