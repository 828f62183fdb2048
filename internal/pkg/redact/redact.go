// redact маскирует чувствительные данные перед записью в лог: e-mail, токены
// и значения заголовков авторизации.
package redact

import "strings"

// Email маскирует e-mail для логирования.
//
// Правила:
//   - строка должна содержать ровно один '@', иначе возвращается "***";
//   - локальная часть заменяется на первые два символа (по рунам) + "***";
//   - если локальная часть не длиннее двух символов, возвращается "***@<domain>".
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает заглушку с последними четырьмя символами токена, чтобы в логах
// можно было отличить старый токен от нового. Короткие токены скрываются целиком.
func Token(tok string) string {
	const keep = 4
	if len(tok) < 4*keep {
		return "[REDACTED_TOKEN]"
	}

	return "[REDACTED_TOKEN]..." + tok[len(tok)-keep:]
}

// Authorization маскирует значение заголовка Authorization, сохраняя схему.
func Authorization(v string) string {
	scheme, tok, ok := strings.Cut(v, " ")
	if !ok {
		return Token(v)
	}

	return scheme + " " + Token(tok)
}
