package apiclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// NewMultipartBody собирает multipart/form-data с одним файлом в поле field.
// Возвращает тело целиком (для повторов) и Content-Type с boundary.
func NewMultipartBody(field, filename, contentType string, r io.Reader) ([]byte, string, error) {
	const op = "apiclient.NewMultipartBody"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
