package apiclient

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
)

// Request - неизменяемое описание исходящего запроса.
// Body хранится байтами, чтобы запрос можно было повторить после обновления токенов.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string
	// Retried - запрос уже повторялся после 401; второго обновления токенов не будет.
	Retried bool
}

// WithRetried возвращает копию с выставленным Retried.
func (r Request) WithRetried() Request {
	r.Retried = true
	return r
}

// NewJSONRequest сериализует body в JSON.
func NewJSONRequest(method, path string, body any) (Request, error) {
	r := Request{Method: method, Path: path}
	if body == nil {
		return r, nil
	}

	b, err := json.Marshal(body)
	if err != nil {
		return Request{}, fmt.Errorf("apiclient.NewJSONRequest: %w", err)
	}

	r.Body = b
	r.ContentType = "application/json"

	return r, nil
}

func (r Request) header() http.Header {
	h := make(http.Header, len(r.Header)+2)
	maps.Copy(h, r.Header)

	return h
}

// Response - буферизованный ответ со статусом 2xx.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON разбирает тело ответа в v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("apiclient.DecodeJSON: %w", err)
	}

	return nil
}
