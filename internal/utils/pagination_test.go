package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func queryContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/orders?"+rawQuery, nil)
	return c
}

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DryRun: true})
	require.NoError(t, err)
	return db
}

func renderSQL(db *gorm.DB) string {
	var rows []map[string]interface{}
	return db.Table("orders").Find(&rows).Statement.SQL.String()
}

func TestGetPaginationParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  PaginationParams
	}{
		{"defaults", "", PaginationParams{Page: 1, Limit: DefaultPageSize, Desc: true}},
		{"limit is clamped", "page=3&limit=500", PaginationParams{Page: 3, Limit: MaxPageSize, Desc: true}},
		{"bad numbers fall back", "page=-2&limit=abc", PaginationParams{Page: 1, Limit: DefaultPageSize, Desc: true}},
		{"ascending sort", "sort=total&order=asc", PaginationParams{Page: 1, Limit: DefaultPageSize, Sort: "total"}},
		{"dash forces descending", "sort=-paid_at&order=asc", PaginationParams{Page: 1, Limit: DefaultPageSize, Sort: "paid_at", Desc: true}},
		{"filters", "status=Paid,Fulfilled&search=+kale+", PaginationParams{Page: 1, Limit: DefaultPageSize, Desc: true, Status: "paid,fulfilled", Search: "kale"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetPaginationParams(queryContext(tt.query)))
		})
	}
}

func TestMessagePagesAreLarger(t *testing.T) {
	params := GetSizedPaginationParams(queryContext(""), MessagePageSize, MaxMessagePageSize)
	assert.Equal(t, MessagePageSize, params.Limit)

	params = GetSizedPaginationParams(queryContext("limit=150"), MessagePageSize, MaxMessagePageSize)
	assert.Equal(t, 150, params.Limit)
}

func TestStatuses(t *testing.T) {
	assert.Nil(t, PaginationParams{}.Statuses())
	assert.Equal(t, []string{"paid", "fulfilled"}, PaginationParams{Status: "paid, ,fulfilled"}.Statuses())
}

func TestApplySortUsesMappedColumn(t *testing.T) {
	db := dryRunDB(t)

	sql := renderSQL(ApplySort(db, PaginationParams{Sort: "name"}, SubmissionSort, "created_at"))
	assert.Contains(t, sql, `ORDER BY "business_name"`)
	assert.NotContains(t, sql, "DESC")

	sql = renderSQL(ApplySort(db, PaginationParams{Sort: "password_hash; --", Desc: true}, UserSort, "created_at"))
	assert.Contains(t, sql, `ORDER BY "created_at" DESC`)
	assert.NotContains(t, sql, "password_hash")

	sql = renderSQL(ApplySort(db, PaginationParams{Desc: true}, ReportSort, "period_start"))
	assert.Contains(t, sql, `ORDER BY "period_start" DESC`)
}

func TestApplyStatusFilter(t *testing.T) {
	db := dryRunDB(t)

	assert.NotContains(t, renderSQL(ApplyStatusFilter(db, "status", PaginationParams{})), "WHERE")
	assert.Contains(t, renderSQL(ApplyStatusFilter(db, "status", PaginationParams{Status: "paid"})), "status = $1")
	assert.Contains(t, renderSQL(ApplyStatusFilter(db, "status", PaginationParams{Status: "paid,fulfilled"})), "status IN ($1,$2)")
}

func TestPaginationWindowAndResult(t *testing.T) {
	params := PaginationParams{Page: 3, Limit: 4}
	start, end := params.Window(10)
	assert.Equal(t, 8, start)
	assert.Equal(t, 10, end)

	start, end = PaginationParams{Page: 9, Limit: 4}.Window(10)
	assert.Equal(t, start, end)

	result := CreatePaginationResult([]int{1}, 10, params)
	assert.Equal(t, 3, result.TotalPages)
}
