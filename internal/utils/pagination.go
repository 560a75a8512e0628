// Package utils holds helpers shared by the HTTP handlers that carry no
// domain logic.
package utils

import (
	"strconv"
	"strings"
)

// Paging bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// intOr parses s, falling back to def when s is blank or not an integer.
func intOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

// ClampPage turns raw page and page_size query values into a 1-based page
// and a size within [1, MaxPageSize]. Bad input falls back to page 1 and
// DefaultPageSize.
func ClampPage(rawPage, rawSize string) (page, pageSize int) {
	page = max(intOr(rawPage, 1), 1)
	pageSize = min(max(intOr(rawSize, DefaultPageSize), 1), MaxPageSize)
	return page, pageSize
}

// Offset is the row offset of page for pageSize.
func Offset(page, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	return (page - 1) * pageSize
}

// TotalPages is the number of pages needed for total items.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
