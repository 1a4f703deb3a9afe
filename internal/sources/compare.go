package sources

// NumericGreater reports whether a is greater than b when both are decimal
// strings without leading zeros. A longer string is always greater; strings
// of equal length compare lexicographically.
func NumericGreater(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}
