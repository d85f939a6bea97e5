package service

import "strings"

// normalizeKey folds rule dimension values so lookups ignore case and padding.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
