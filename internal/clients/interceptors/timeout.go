package interceptors

import (
	"context"
	"net/http"
	"time"
)

// ClientWithTimeout ограничивает исходящий вызов таймаутом d.
//
// Контракт:
//  1. d <= 0 - не модифицирует контекст;
//  2. у ctx уже есть deadline не позже now+d - оставляет как есть;
//  3. иначе - оборачивает ctx через context.WithTimeout(ctx, d) (итоговый дедлайн -
//     min(существующий, now+d)) и вызывает cancel() после возврата next.
//     Тело ответа к этому моменту уже буферизовано (см. Invoker).
func ClientWithTimeout(d time.Duration) Interceptor {
	return func(ctx context.Context, req *http.Request, next Invoker) (*http.Response, error) {
		if d <= 0 {
			return next(ctx, req)
		}

		if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= d {
			return next(ctx, req)
		}

		cctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		return next(cctx, req)
	}
}
