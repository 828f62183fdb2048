// errors описывает таксономию ошибок API-клиента.
//
//   - NetworkError - ответ не получен (таймаут, DNS, отказ в соединении);
//     пробрасывается вызывающему без повторов;
//   - BackendError - любой HTTP-статус вне 2xx; пробрасывается как есть;
//   - ErrAuthExpired - 401, который не удалось вылечить обновлением токенов.
//     Вызывающий получает исходную *BackendError, errors.Is(err, ErrAuthExpired) == true;
//   - ErrAuthRefresh - ошибка самого /auth/refresh. Только логируется и считается
//     в метриках: ожидающие запросы получают исходную 401.
//
// Тело ответа разбирается в двух форматах: FastAPI ({"detail": ...}) и
// унифицированный конверт {"error": {"code", "message", "request_id"}}.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrAuthExpired - сессия истекла и не может быть восстановлена.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrAuthRefresh - обновление пары токенов не удалось.
	ErrAuthRefresh = errors.New("token refresh failed")
)

// NetworkError - транспортная ошибка: ответ от бэкенда не получен.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError - бэкенд ответил статусом вне 2xx.
// Code - короткий стабильный код для машиночитаемой обработки.
// Message - безопасное описание по статусу.
// Detail - текст ошибки от бэкенда, если он есть.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
	RequestID  string
}

func (e *BackendError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error: %d %s: %s", e.StatusCode, e.Code, e.Detail)
	}

	return fmt.Sprintf("backend error: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Is позволяет проверять 401 через errors.Is(err, ErrAuthExpired).
func (e *BackendError) Is(target error) bool {
	return target == ErrAuthExpired && e.StatusCode == http.StatusUnauthorized
}

// FromResponse строит BackendError по статусу и телу ответа.
func FromResponse(status int, header http.Header, body []byte) *BackendError {
	code, msg := baseFromHTTP(status)

	e := &BackendError{
		StatusCode: status,
		Code:       code,
		Message:    msg,
		Detail:     detailFromBody(body),
	}

	if header != nil {
		e.RequestID = header.Get("X-Request-Id")
	}

	return e
}

// StatusCode возвращает HTTP-статус из цепочки ошибок или 0, если ответа не было.
func StatusCode(err error) int {
	var be *BackendError
	if errors.As(err, &be) {
		return be.StatusCode
	}

	return 0
}

// IsNetwork сообщает, что ответ от бэкенда не был получен.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// detailFromBody достаёт человекочитаемый текст ошибки из тела ответа.
func detailFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var fastapi struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &fastapi); err == nil && len(fastapi.Detail) > 0 {
		var s string
		if err := json.Unmarshal(fastapi.Detail, &s); err == nil {
			return s
		}

		// 422 от FastAPI: список {"loc": [...], "msg": "..."}.
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(fastapi.Detail, &items); err == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			return strings.Join(msgs, "; ")
		}
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		return envelope.Error.Message
	}

	return ""
}

// baseFromHTTP - маппинг HTTP-статуса в стабильный код и безопасное сообщение:
//   - 400, 422 -> invalid_argument
//   - 401 -> unauthenticated
//   - 403 -> permission_denied
//   - 404 -> not_found
//   - 409 -> already_exists
//   - 412 -> failed_precondition
//   - 429 -> resource_exhausted
//   - 499 -> canceled
//   - 501 -> unimplemented
//   - 502, 503 -> unavailable
//   - 504 -> deadline_exceeded
//   - прочее -> internal
func baseFromHTTP(status int) (string, string) {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "invalid_argument", "invalid argument"
	case http.StatusUnauthorized:
		return "unauthenticated", "unauthenticated"
	case http.StatusForbidden:
		return "permission_denied", "permission denied"
	case http.StatusNotFound:
		return "not_found", "not found"
	case http.StatusConflict:
		return "already_exists", "already exists"
	case http.StatusPreconditionFailed:
		return "failed_precondition", "failed precondition"
	case http.StatusTooManyRequests:
		return "resource_exhausted", "resource exhausted"
	case StatusClientClosedRequest:
		return "canceled", "canceled"
	case http.StatusNotImplemented:
		return "unimplemented", "unimplemented"
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return "unavailable", "service unavailable"
	case http.StatusGatewayTimeout:
		return "deadline_exceeded", "deadline exceeded"
	default:
		return "internal", "internal error"
	}
}
