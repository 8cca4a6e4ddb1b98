package shared

import (
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

var validOrderBy = []string{"asc", "desc"}

// CriteriaRules lists the sort fields and filter keys a listing accepts.
type CriteriaRules struct {
	SortFields []string
	FilterKeys []string
}

// Criteria describes a paginated, sorted and filtered listing request.
type Criteria struct {
	Offset  int
	Limit   int
	SortBy  string
	OrderBy string
	Filters map[string][]string
}

// NewCriteria returns criteria with listing defaults applied.
func NewCriteria() Criteria {
	return Criteria{Limit: defaultLimit, SortBy: "createdAt", OrderBy: "desc", Filters: map[string][]string{}}
}

// ParseCriteria reads offset, limit, sortBy, orderBy and filters from query values.
// Every other key is treated as a filter; `[a,b]` yields several values.
func ParseCriteria(values url.Values, rules CriteriaRules) (Criteria, error) {
	c := NewCriteria()
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		raw := strings.TrimSpace(vals[0])
		switch key {
		case "offset":
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return Criteria{}, BadRequest("Invalid offset value")
			}
			c.Offset = n
		case "limit":
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return Criteria{}, BadRequest("Invalid limit value")
			}
			c.Limit = n
		case "sortBy":
			c.SortBy = raw
		case "orderBy":
			c.OrderBy = strings.ToLower(raw)
		default:
			c.Filters[key] = splitFilter(raw)
		}
	}
	if err := c.Validate(rules); err != nil {
		return Criteria{}, err
	}
	return c, nil
}

func splitFilter(raw string) []string {
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		raw = raw[1 : len(raw)-1]
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks sort, order and filter keys against rules and clamps the limit.
func (c *Criteria) Validate(rules CriteriaRules) error {
	if c.Limit <= 0 {
		c.Limit = defaultLimit
	}
	if c.Limit > maxLimit {
		c.Limit = maxLimit
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
	if !slices.Contains(rules.SortFields, c.SortBy) {
		return BadRequest("Invalid sortBy field. Valid fields are: %s", strings.Join(rules.SortFields, ", "))
	}
	if !slices.Contains(validOrderBy, c.OrderBy) {
		return BadRequest("Invalid orderBy value. Valid values are: %s", strings.Join(validOrderBy, ", "))
	}
	for key := range c.Filters {
		if !slices.Contains(rules.FilterKeys, key) {
			return BadRequest("Invalid filter key: %s. Valid keys are: %s", key, strings.Join(rules.FilterKeys, ", "))
		}
	}
	return nil
}

// Page is one window of a listing.
type Page[T any] struct {
	Data       []T  `json:"data"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	NextPage   *int `json:"nextPage"`
	PrevPage   *int `json:"prevPage"`
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// NewPage wraps data with the page links implied by criteria and total.
func NewPage[T any](data []T, c Criteria, total int) Page[T] {
	if data == nil {
		data = []T{}
	}
	meta := NewPagination(c.Offset/max(c.Limit, 1)+1, c.Limit, total)
	page := Page[T]{Data: data, Total: total, TotalPages: meta.TotalPages}
	if meta.Page < meta.TotalPages {
		next := meta.Page + 1
		page.NextPage = &next
	}
	if meta.Page > 1 {
		prev := meta.Page - 1
		page.PrevPage = &prev
	}
	return page
}
