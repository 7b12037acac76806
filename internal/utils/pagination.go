// internal/utils/pagination.go
package utils

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// Chat history pages are read in larger chunks.
	MessagePageSize    = 50
	MaxMessagePageSize = 200
)

// PaginationParams is the query of a listing endpoint. Sort is the public
// sort key; SortColumns translates it to a column.
type PaginationParams struct {
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
	Sort     string `json:"sort"`
	Desc     bool   `json:"desc"`
	Search   string `json:"search"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

type PaginationResult struct {
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	Total      int64       `json:"total"`
	TotalPages int         `json:"total_pages"`
	Data       interface{} `json:"data"`
}

// SortColumns maps the sort keys a listing accepts to its columns.
type SortColumns map[string]string

var (
	OrderSort      = SortColumns{"created_at": "created_at", "total": "total", "status": "status", "paid_at": "paid_at"}
	SubmissionSort = SortColumns{"created_at": "created_at", "name": "business_name", "business_name": "business_name", "status": "status"}
	MarketSort     = SortColumns{"created_at": "created_at", "name": "name", "city": "city", "state": "state", "commission": "commission_percent", "commission_percent": "commission_percent"}
	VendorSort     = SortColumns{"created_at": "created_at", "name": "business_name", "business_name": "business_name"}
	ReportSort     = SortColumns{"period_start": "period_start", "created_at": "created_at", "gross_sales": "gross_sales"}
	CommissionSort = SortColumns{"created_at": "created_at", "amount": "amount", "status": "status"}
	InviteSort     = SortColumns{"created_at": "created_at", "expires_at": "expires_at", "role": "role"}
	UserSort       = SortColumns{"created_at": "created_at", "updated_at": "updated_at", "name": "full_name", "full_name": "full_name", "email": "email", "role": "role", "status": "status"}
)

func GetPaginationParams(c *gin.Context) PaginationParams {
	return GetSizedPaginationParams(c, DefaultPageSize, MaxPageSize)
}

// GetSizedPaginationParams reads page, limit, sort, status and search from
// the query string. A limit above maxLimit is clamped. Order is descending
// unless order=asc; a leading "-" on the sort key also forces descending.
func GetSizedPaginationParams(c *gin.Context, defaultLimit, maxLimit int) PaginationParams {
	params := PaginationParams{
		Page:     1,
		Limit:    defaultLimit,
		Search:   strings.TrimSpace(c.Query("search")),
		Category: strings.TrimSpace(c.Query("category")),
		Status:   strings.ToLower(strings.TrimSpace(c.Query("status"))),
	}

	if page, err := strconv.Atoi(c.Query("page")); err == nil && page > 0 {
		params.Page = page
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		params.Limit = limit
		if limit > maxLimit {
			params.Limit = maxLimit
		}
	}

	params.Desc = strings.ToLower(c.Query("order")) != "asc"
	sort := strings.TrimSpace(c.Query("sort"))
	if strings.HasPrefix(sort, "-") {
		sort = strings.TrimPrefix(sort, "-")
		params.Desc = true
	}
	params.Sort = sort

	return params
}

func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Statuses splits a comma separated status filter, e.g. "paid,fulfilled".
func (p PaginationParams) Statuses() []string {
	if p.Status == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(p.Status, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ApplyStatusFilter restricts column to the requested statuses, if any.
func ApplyStatusFilter(db *gorm.DB, column string, params PaginationParams) *gorm.DB {
	statuses := params.Statuses()
	switch len(statuses) {
	case 0:
		return db
	case 1:
		return db.Where(column+" = ?", statuses[0])
	default:
		return db.Where(column+" IN ?", statuses)
	}
}

func ApplyPagination(db *gorm.DB, params PaginationParams) *gorm.DB {
	return db.Offset(params.Offset()).Limit(params.Limit)
}

// ApplySort orders by the column for params.Sort, falling back to the
// fallback key when the request names none or one the listing does not allow.
func ApplySort(db *gorm.DB, params PaginationParams, columns SortColumns, fallback string) *gorm.DB {
	column, ok := columns[params.Sort]
	if !ok {
		column = columns[fallback]
	}
	if column == "" {
		column = "created_at"
	}
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: params.Desc})
}

// Window returns the [start, end) bounds of the page over n in-memory rows.
func (p PaginationParams) Window(n int) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit
	if end > n {
		end = n
	}
	return start, end
}

func CreatePaginationResult(data interface{}, total int64, params PaginationParams) PaginationResult {
	totalPages := 0
	if params.Limit > 0 {
		totalPages = int((total + int64(params.Limit) - 1) / int64(params.Limit))
	}

	return PaginationResult{
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		TotalPages: totalPages,
		Data:       data,
	}
}

func SetPaginationHeaders(c *gin.Context, result PaginationResult) {
	c.Header("X-Total-Count", strconv.FormatInt(result.Total, 10))
	c.Header("X-Page", strconv.Itoa(result.Page))
	c.Header("X-Per-Page", strconv.Itoa(result.Limit))
	c.Header("X-Total-Pages", strconv.Itoa(result.TotalPages))
}
