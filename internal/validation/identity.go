// Package validation содержит функции валидации входных данных.
package validation

const maxIdentityLength = 64

// IsValidIdentity проверяет идентификатор стороны: непустая строка длиной до
// 64 символов из латинских букв, цифр и знаков '.', '_', '-', ':'.
func IsValidIdentity(identity string) bool {
	if identity == "" || len(identity) > maxIdentityLength {
		return false
	}

	for _, ch := range identity {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '.' || ch == '_' || ch == '-' || ch == ':':
		default:
			return false
		}
	}

	return true
}
