package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination holds pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// PageMeta is returned next to paginated listings.
type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// NewPagination clamps page and limit into a usable window.
func NewPagination(page, limit int) Pagination {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if page <= 0 {
		page = 1
	}
	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// ParsePagination reads page and limit query params with sane defaults.
func ParsePagination(c *fiber.Ctx) Pagination {
	return NewPagination(
		parseInt(c.Query("page", "1"), 1),
		parseInt(c.Query("limit", strconv.Itoa(DefaultPageLimit)), DefaultPageLimit),
	)
}

// Meta describes this page of a listing with total rows.
func (p Pagination) Meta(total int64) PageMeta {
	return PageMeta{Page: p.Page, Limit: p.Limit, Total: total}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
