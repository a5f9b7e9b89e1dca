package joinquant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"logMirrorBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:        srv.URL,
		Cookies:        "token=abc; PHPSESSID=xyz",
		Timeout:        2 * time.Second,
		Logger:         &mockLogger{},
		SessionQueryID: "health",
	})
	require.NoError(t, err)
	return c
}

func TestParseCookies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "token=abc", map[string]string{"token": "abc"}},
		{"spaces and trailing separator", " token=abc ;  uid=wKgy== ; ", map[string]string{"token": "abc", "uid": "wKgy=="}},
		{"items without value separator skipped", "junk; a=1; =nameless", map[string]string{"a": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := map[string]string{}
			for _, c := range ParseCookies(tt.raw) {
				got[c.Name] = c.Value
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Cookies: "a=1"})
	assert.Error(t, err, "logger required")

	_, err = New(Config{Cookies: "", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(Config{BaseURL: "::not a url", Cookies: "a=1", Logger: &mockLogger{}})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestFetch_Success(t *testing.T) {
	body := `{"data":{"logArr":["2026-03-02 09:31:00 - INFO - hello"]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/algorithm/live/log", r.URL.Path)
		assert.Equal(t, "q-123", r.URL.Query().Get("backtestId"))
		assert.Equal(t, "-1", r.URL.Query().Get("offset"))
		assert.Equal(t, "1", r.URL.Query().Get("ajax"))

		token, err := r.Cookie("token")
		require.NoError(t, err)
		assert.Equal(t, "abc", token.Value)
		sess, err := r.Cookie("PHPSESSID")
		require.NoError(t, err)
		assert.Equal(t, "xyz", sess.Value)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	p, err := c.Fetch(context.Background(), "q-123")
	require.NoError(t, err)
	assert.Equal(t, "q-123", p.QueryID)
	assert.Equal(t, body, string(p.Body))
	assert.False(t, p.FetchedAt.IsZero())
}

func TestFetch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name:    "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			wantErr: ports.ErrAuthenticationFailed,
		},
		{
			name:    "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			wantErr: ports.ErrAuthenticationFailed,
		},
		{
			name: "login redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/user/login/index?redirect=%2Falgorithm", http.StatusFound)
			},
			wantErr: ports.ErrAuthenticationFailed,
		},
		{
			name: "other redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/maintenance", http.StatusFound)
			},
			wantErr: ports.ErrSourceUnavailable,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantErr: ports.ErrSourceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(t, srv)
			p, err := c.Fetch(context.Background(), "q")
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Fetch(context.Background(), "q")
	assert.ErrorIs(t, err, ports.ErrSourceUnavailable)
}

func TestFetch_EmptyQueryID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestCheckSession(t *testing.T) {
	expired := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "health", r.URL.Query().Get("backtestId"))
		if expired {
			http.Redirect(w, r, "/user/login", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	assert.NoError(t, c.CheckSession(context.Background()))

	expired = true
	err := c.CheckSession(context.Background())
	assert.True(t, IsAuthError(err))
}
