package interceptors

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/agricare-client/internal/pkg/log"
	"github.com/pribylovaa/agricare-client/internal/pkg/redact"
)

// ClientLoggingInterceptor - логирование исходящих HTTP-вызовов.
// Поведение:
//   - берёт X-Request-Id из запроса (или генерирует uuid и выставляет заголовок);
//   - добавляет поля request_id/method/path, прокладывает обогащённый логгер в контекст;
//   - пишет одну финальную запись уровня Info: msg="http", status, dur
//     (при транспортной ошибке - уровень Warn и поле err).
//
// Тела запросов/ответов не логируются; заголовок Authorization попадает в запись
// только в маскированном виде (поле auth).
func ClientLoggingInterceptor(base *slog.Logger) Interceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req *http.Request, next Invoker) (*http.Response, error) {
		start := time.Now()

		rid := req.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
			req.Header.Set("X-Request-Id", rid)
		}

		l := base.With(
			slog.String("request_id", rid),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)
		if auth := req.Header.Get("Authorization"); auth != "" {
			l = l.With(slog.String("auth", redact.Authorization(auth)))
		}
		ctx = log.Into(ctx, l)

		resp, err := next(ctx, req)

		if err != nil {
			l.Warn("http",
				slog.Int("status", 0),
				slog.Duration("dur", time.Since(start)),
				slog.String("err", err.Error()),
			)
			return nil, err
		}

		l.Info("http",
			slog.Int("status", resp.StatusCode),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, nil
	}
}
