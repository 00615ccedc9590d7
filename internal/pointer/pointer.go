// Package pointer helps with optional settings, where nil means "not configured".
package pointer

// Ref returns a pointer to a copy of t.
func Ref[T any](t T) *T {
	return &t
}

// DerefOr returns *t, or fallback when t is nil.
func DerefOr[T any](t *T, fallback T) T {
	if t == nil {
		return fallback
	}
	return *t
}
