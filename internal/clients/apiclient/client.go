// apiclient - HTTP-клиент бэкенда AgriCare с прозрачным обновлением токенов.
//
// Каждый запрос получает заголовок Authorization с текущим access-токеном.
// Ответ 401 на запрос без отметки Retried запускает обновление пары через
// /auth/refresh; конкурентные запросы, получившие 401 во время обновления,
// ждут его итога в FIFO-очереди и затем повторяются с новым токеном.
// Обновление выполняется не более одного раза одновременно.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/agricare-client/internal/clients/interceptors"
	"github.com/pribylovaa/agricare-client/internal/config"
	"github.com/pribylovaa/agricare-client/internal/credstore"
	apierrors "github.com/pribylovaa/agricare-client/internal/errors"
)

const (
	pathLogin    = "/auth/login"
	pathRegister = "/auth/register"
	pathRefresh  = "/auth/refresh"
	pathLogout   = "/auth/logout"
	pathMe       = "/auth/me"
)

// Client - аутентифицированный клиент бэкенда. Безопасен для конкурентного использования.
type Client struct {
	baseURL *url.URL
	store   credstore.Store
	invoke  interceptors.Invoker
	log     *slog.Logger
	now     func() time.Time
	metrics *metrics

	// Токен по умолчанию для заголовка Authorization.
	// Лениво читается из хранилища при первом запросе.
	tokenMu     sync.RWMutex
	token       string
	tokenLoaded bool

	refresh refreshState
}

type options struct {
	httpClient   *http.Client
	log          *slog.Logger
	now          func() time.Time
	reg          prometheus.Registerer
	interceptors []interceptors.Interceptor
}

type Option func(*options)

// WithHTTPClient задаёт транспорт (по умолчанию http.Client без собственного таймаута:
// таймаут навешивает интерсептор).
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithClock подменяет источник времени (для расчёта expires_at).
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithRegisterer регистрирует метрики клиента.
func WithRegisterer(reg prometheus.Registerer) Option { return func(o *options) { o.reg = reg } }

// WithInterceptors добавляет интерсепторы внутрь стандартной цепочки.
func WithInterceptors(ics ...interceptors.Interceptor) Option {
	return func(o *options) { o.interceptors = append(o.interceptors, ics...) }
}

// New создаёт клиент. Цепочка интерсепторов: metadata -> timeout -> logging -> пользовательские.
func New(cfg config.APIConfig, store credstore.Store, opts ...Option) (*Client, error) {
	const op = "apiclient.New"

	if store == nil {
		return nil, fmt.Errorf("%s: nil credential store", op)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: base url %q must be absolute", op, cfg.BaseURL)
	}

	o := options{httpClient: &http.Client{}, log: slog.Default(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	chain := append([]interceptors.Interceptor{
		interceptors.ClientWithMetadata(cfg.UserAgent),
		interceptors.ClientWithTimeout(cfg.Timeout),
		interceptors.ClientLoggingInterceptor(o.log),
	}, o.interceptors...)

	return &Client{
		baseURL: base,
		store:   store,
		invoke:  interceptors.Chain(interceptors.HTTPInvoker(o.httpClient), chain...),
		log:     o.log,
		now:     o.now,
		metrics: newMetrics(o.reg),
	}, nil
}

// Do выполняет запрос. Ответы вне 2xx возвращаются как *apierrors.BackendError,
// транспортные ошибки - как *apierrors.NetworkError. 401 без отметки Retried
// запускает протокол обновления токенов.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	sent := c.currentToken(ctx)

	resp, err := c.send(ctx, r, sent)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !r.Retried {
		return c.recoverAuth(ctx, r, sent, apierrors.FromResponse(resp.StatusCode, resp.Header, resp.Body))
	}

	return checkStatus(resp)
}

// Get - GET path с параметрами query.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// PostJSON - POST path с JSON-телом body.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	r, err := NewJSONRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	return c.Do(ctx, r)
}

// PostMultipart - POST готового multipart-тела (см. NewMultipartBody).
func (c *Client) PostMultipart(ctx context.Context, path string, body []byte, contentType string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, ContentType: contentType})
}

// recoverAuth - реакция на 401: обновление токенов (лидер), ожидание в очереди
// или немедленный повтор, если токены уже обновил кто-то другой.
func (c *Client) recoverAuth(ctx context.Context, r Request, sent string, origErr *apierrors.BackendError) (*Response, error) {
	retry := r.WithRetried()

	t := c.refresh.beginRefresh(sent, c.cachedToken)
	switch t.role {
	case roleReplay:
		return c.replay(ctx, retry, t.token)
	case roleWaiter:
		c.metrics.waiters.Inc()

		select {
		case out := <-t.wait:
			if out.err != nil {
				return nil, out.err
			}
			return c.replay(ctx, retry, out.token)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	settled := false
	settle := func(out refreshOutcome) {
		if settled {
			return
		}
		settled = true

		if n := c.refresh.settle(out); n > 0 {
			c.log.Debug("refresh_waiters_released", slog.Int("count", n), slog.Bool("ok", out.err == nil))
		}
	}
	defer settle(refreshOutcome{err: origErr})

	// Отмена исходного вызова не должна обрывать обновление, от которого зависят другие запросы.
	rctx := context.WithoutCancel(ctx)

	refreshToken, err := credstore.Lookup(rctx, c.store, credstore.KeyRefreshToken)
	if err != nil || refreshToken == "" {
		if err != nil {
			c.log.Warn("refresh_token_read_failed", slog.String("err", err.Error()))
		}
		c.metrics.refresh.WithLabelValues(refreshNoToken).Inc()
		c.dropCredentials(rctx)

		return nil, origErr
	}

	pair, err := c.refreshTokens(rctx, refreshToken)
	if err != nil {
		c.log.Warn("token_refresh_failed", slog.String("err", err.Error()))
		c.metrics.refresh.WithLabelValues(refreshFailed).Inc()
		c.dropCredentials(rctx)

		return nil, origErr
	}

	c.metrics.refresh.WithLabelValues(refreshOK).Inc()
	settle(refreshOutcome{token: pair.AccessToken})

	return c.replay(ctx, retry, pair.AccessToken)
}

// replay повторяет запрос с токеном token; повторный 401 возвращается как ошибка.
func (c *Client) replay(ctx context.Context, r Request, token string) (*Response, error) {
	resp, err := c.send(ctx, r, token)
	if err != nil {
		return nil, err
	}

	return checkStatus(resp)
}

// send собирает и отправляет один HTTP-запрос через цепочку интерсепторов.
func (c *Client) send(ctx context.Context, r Request, token string) (*Response, error) {
	const op = "apiclient.send"

	u := c.resolve(r.Path, r.Query)

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req.Header = r.header()
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.invoke(ctx, req)
	if err != nil {
		c.metrics.requests.WithLabelValues(codeNetworkError).Inc()
		return nil, &apierrors.NetworkError{Method: r.Method, URL: u, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.requests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, &apierrors.NetworkError{Method: r.Method, URL: u, Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: buf.Bytes()}, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query.Encode()

	return u.String()
}

func checkStatus(resp *Response) (*Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierrors.FromResponse(resp.StatusCode, resp.Header, resp.Body)
	}

	return resp, nil
}

// currentToken возвращает токен по умолчанию, при первом обращении читая его из хранилища.
func (c *Client) currentToken(ctx context.Context) string {
	c.tokenMu.RLock()
	if c.tokenLoaded {
		tok := c.token
		c.tokenMu.RUnlock()
		return tok
	}
	c.tokenMu.RUnlock()

	tok, err := credstore.Lookup(ctx, c.store, credstore.KeyAccessToken)
	if err != nil {
		c.log.Warn("access_token_read_failed", slog.String("err", err.Error()))
		return ""
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if !c.tokenLoaded {
		c.token, c.tokenLoaded = tok, true
	}

	return c.token
}

// cachedToken - токен по умолчанию без обращения к хранилищу.
func (c *Client) cachedToken() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()

	return c.token
}

func (c *Client) setToken(tok string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	c.token, c.tokenLoaded = tok, true
}

// dropCredentials очищает хранилище и токен по умолчанию; ошибка хранилища только логируется.
func (c *Client) dropCredentials(ctx context.Context) {
	c.setToken("")

	if err := credstore.ClearCredentials(ctx, c.store); err != nil {
		c.log.Error("credentials_clear_failed", slog.String("err", err.Error()))
	}
}

var errEmptyToken = errors.New("empty access token in response")
