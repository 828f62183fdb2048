package interceptors

import (
	"context"
	"net/http"
)

// ClientWithMetadata добавляет в исходящий запрос заголовки:
//   - X-Request-Id (если есть в контексте и не задан явно);
//   - User-Agent (если передан параметром).
//
// Authorization здесь не выставляется: токеном владеет API-клиент.
func ClientWithMetadata(userAgent string) Interceptor {
	return func(ctx context.Context, req *http.Request, next Invoker) (*http.Response, error) {
		if req.Header.Get("X-Request-Id") == "" {
			if rid, _ := ctx.Value(CtxRequestID).(string); rid != "" {
				req.Header.Set("X-Request-Id", rid)
			}
		}

		if userAgent != "" {
			req.Header.Set("User-Agent", userAgent)
		}

		return next(ctx, req)
	}
}
