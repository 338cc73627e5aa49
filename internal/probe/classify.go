package probe

// classifyStatusCode reports whether an HTTP status code counts as the
// target being up. 401/403/405/429 mean the target responded and is
// merely refusing us, not that it is down.
func classifyStatusCode(code int) bool {
	switch {
	case code >= 200 && code < 400:
		return true
	case code == 401, code == 403, code == 405, code == 429:
		return true
	default:
		return false
	}
}
