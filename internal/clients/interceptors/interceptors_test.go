package interceptors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/agricare-client/internal/pkg/log"
	"github.com/stretchr/testify/require"
)

type capHandler struct {
	mu      sync.Mutex
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   map[string]int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})
	if h.count == nil {
		h.count = make(map[string]int)
	}
	h.count[r.Message]++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out
	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func newReq(t *testing.T, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	return req
}

func okInvoker(status int) Invoker {
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: status, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(name string) Interceptor {
		return func(ctx context.Context, req *http.Request, next Invoker) (*http.Response, error) {
			order = append(order, name+"-begin")
			resp, err := next(ctx, req)
			order = append(order, name+"-end")
			return resp, err
		}
	}

	base := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return okInvoker(http.StatusTeapot)(ctx, req)
	}

	inv := Chain(base, mk("m1"), mk("m2"))
	resp, err := inv(context.Background(), newReq(t, "http://x/chain"))
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, []string{"m1-begin", "m2-begin", "base", "m2-end", "m1-end"}, order)
}

func TestClientMetadata_SetsHeaders(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), CtxRequestID, "rid-123")

	var seen http.Header
	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		seen = req.Header.Clone()
		return okInvoker(http.StatusOK)(ctx, req)
	}, ClientWithMetadata("agricare-cli"))

	_, err := inv(ctx, newReq(t, "http://x/ml/predict"))
	require.NoError(t, err)
	require.Equal(t, "rid-123", seen.Get("X-Request-Id"))
	require.Equal(t, "agricare-cli", seen.Get("User-Agent"))
	require.Empty(t, seen.Get("Authorization"))
}

func TestClientMetadata_KeepsExplicitRequestID(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), CtxRequestID, "from-ctx")
	req := newReq(t, "http://x/auth/me")
	req.Header.Set("X-Request-Id", "explicit")

	var seen string
	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		seen = req.Header.Get("X-Request-Id")
		return okInvoker(http.StatusOK)(ctx, req)
	}, ClientWithMetadata(""))

	_, err := inv(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "explicit", seen)
}

func TestClientWithTimeout_SetsDeadline(t *testing.T) {
	t.Parallel()

	const d = 40 * time.Millisecond
	start := time.Now()

	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, ClientWithTimeout(d))

	_, err := inv(context.Background(), newReq(t, "http://x/slow"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, time.Since(start), d)
}

func TestClientWithTimeout_DoesNotOverrideExistingDeadline(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	parentDL, _ := parent.Deadline()

	var childDL time.Time
	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		childDL, _ = ctx.Deadline()
		return okInvoker(http.StatusOK)(ctx, req)
	}, ClientWithTimeout(time.Second))

	_, err := inv(parent, newReq(t, "http://x/call"))
	require.NoError(t, err)
	require.WithinDuration(t, parentDL, childDL, time.Millisecond)
}

func TestClientWithTimeout_ZeroDuration_PassThrough(t *testing.T) {
	t.Parallel()

	var hasDL bool
	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		_, hasDL = ctx.Deadline()
		return okInvoker(http.StatusOK)(ctx, req)
	}, ClientWithTimeout(0))

	_, err := inv(context.Background(), newReq(t, "http://x/ping"))
	require.NoError(t, err)
	require.False(t, hasDL)
}

func TestClientLogging_LogsAndPutsLoggerIntoContext(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		log.From(ctx).Info("inner_call")
		return okInvoker(http.StatusCreated)(ctx, req)
	}, ClientLoggingInterceptor(slog.New(h)))

	req := newReq(t, "http://x/chatbot/chat")
	req.Header.Set("Authorization", "Bearer secret-token")

	_, err := inv(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, h.count["inner_call"])
	require.Equal(t, "http", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.EqualValues(t, http.StatusCreated, h.attrs["status"])
	require.Equal(t, "/chatbot/chat", h.attrs["path"])
	_, hasDur := h.attrs["dur"]
	require.True(t, hasDur)

	rid, _ := h.attrs["request_id"].(string)
	_, perr := uuid.Parse(rid)
	require.NoError(t, perr)
	require.Equal(t, rid, req.Header.Get("X-Request-Id"))

	require.Equal(t, "Bearer [REDACTED_TOKEN]", h.attrs["auth"])
	for _, v := range h.attrs {
		if s, ok := v.(string); ok {
			require.NotContains(t, s, "secret-token")
		}
	}
}

func TestClientLogging_TransportErrorAtWarn(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}, ClientLoggingInterceptor(slog.New(h)))

	_, err := inv(context.Background(), newReq(t, "http://x/auth/login"))
	require.Error(t, err)
	require.Equal(t, slog.LevelWarn, h.lastLvl)
	require.Equal(t, "connection refused", h.attrs["err"])
}

func TestHTTPInvoker_BuffersBodyBeyondCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	resp, err := HTTPInvoker(srv.Client())(ctx, newReq(t, srv.URL))
	cancel()
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.EqualValues(t, len(body), resp.ContentLength)
}

func TestHTTPInvoker_TransportErrorDropsQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	h := &capHandler{}
	inv := Chain(HTTPInvoker(&http.Client{Transport: &http.Transport{}}), ClientLoggingInterceptor(slog.New(h)))

	_, err := inv(context.Background(), newReq(t, base+"/forecast?appid=topsecret&lat=1"))
	require.Error(t, err)
	require.NotContains(t, err.Error(), "topsecret")
	require.Contains(t, err.Error(), base+"/forecast")

	var ue *url.Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, base+"/forecast", ue.URL)

	require.Equal(t, slog.LevelWarn, h.lastLvl)
	require.NotContains(t, h.attrs["err"], "topsecret")
}

func TestClientWithTimeout_CapsLongerDeadline(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	var childDL time.Time
	inv := Chain(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		childDL, _ = ctx.Deadline()
		return okInvoker(http.StatusOK)(ctx, req)
	}, ClientWithTimeout(50*time.Millisecond))

	_, err := inv(parent, newReq(t, "http://x/auth/me"))
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(50*time.Millisecond), childDL, time.Second)
}
