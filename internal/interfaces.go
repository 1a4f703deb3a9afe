package internal

// Into converts a value into another representation, such as a storage row.
type Into[T any] interface {
	Into() T
}

// IntoAll converts every value in values, preserving order.
func IntoAll[T any, V Into[T]](values []V) []T {
	out := make([]T, 0, len(values))
	for _, v := range values {
		out = append(out, v.Into())
	}
	return out
}
