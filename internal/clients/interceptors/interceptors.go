// interceptors предоставляет цепочку клиентских HTTP-интерсепторов для исходящих
// вызовов к бэкенду и внешним API.
package interceptors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type CtxKey string

const (
	CtxRequestID CtxKey = "request_id"
)

// Invoker выполняет запрос. Контракт: тело ответа уже вычитано и буферизовано,
// поэтому его можно читать после отмены ctx.
type Invoker func(ctx context.Context, req *http.Request) (*http.Response, error)

// Interceptor оборачивает вызов next.
type Interceptor func(ctx context.Context, req *http.Request, next Invoker) (*http.Response, error)

// Chain собирает цепочку: первый интерсептор внешний, base выполняется последним.
func Chain(base Invoker, ics ...Interceptor) Invoker {
	for i := len(ics) - 1; i >= 0; i-- {
		ic, next := ics[i], base
		base = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return ic(ctx, req, next)
		}
	}

	return base
}

// HTTPInvoker - базовый Invoker поверх *http.Client: выполняет запрос с ctx,
// вычитывает тело целиком и подменяет resp.Body буфером.
// В транспортных ошибках из URL убирается query: там бывают ключи внешних API.
func HTTPInvoker(client *http.Client) Invoker {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		const op = "interceptors.HTTPInvoker"

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, scrubURLError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: read body: %w", op, err)
		}

		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))

		return resp, nil
	}
}

// scrubURLError отрезает query и fragment от URL в *url.Error.
func scrubURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}

	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery, u.Fragment = "", ""
		ue.URL = u.String()
	} else if i := strings.IndexAny(ue.URL, "?#"); i >= 0 {
		ue.URL = ue.URL[:i]
	}

	return err
}
