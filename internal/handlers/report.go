// internal/handlers/report.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/farmers-market-backend/internal/i18n"
	"github.com/javajoker/farmers-market-backend/internal/services"
	"github.com/javajoker/farmers-market-backend/internal/utils"
)

type ReportHandler struct {
	reportService *services.ReportService
}

func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// POST /markets/:id/reports
func (h *ReportHandler) GenerateReport(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.GenerateReportRequest
	if !bindJSON(c, &req) {
		return
	}

	report, err := h.reportService.GenerateForMarket(c.Request.Context(), userID, role, marketID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyReportGenerated),
		"report":  report,
	})
}

// GET /markets/:id/reports
func (h *ReportHandler) ListReports(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	reports, total, err := h.reportService.ListReports(c.Request.Context(), userID, role, marketID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	paginated(c, reports, total, params)
}

// GET /reports/:id
func (h *ReportHandler) GetReport(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	reportID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	report, err := h.reportService.GetReport(c.Request.Context(), userID, role, reportID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, report)
}

// GET /reports/:id/csv
func (h *ReportHandler) ExportCSV(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	reportID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	data, filename, err := h.reportService.ExportCSV(c.Request.Context(), userID, role, reportID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// GET /markets/:id/commissions
func (h *ReportHandler) ListCommissions(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)

	commissions, total, summary, err := h.reportService.ListCommissions(c.Request.Context(), userID, role, marketID, params)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	result := utils.CreatePaginationResult(commissions, total, params)
	utils.SetPaginationHeaders(c, result)
	utils.SuccessResponseWithMeta(c, commissions, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
		"summary": summary,
	})
}

// POST /admin/markets/:id/commissions/settle
func (h *ReportHandler) SettleCommissions(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	marketID, ok := utils.ParseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req services.SettleCommissionsRequest
	if !bindJSON(c, &req) {
		return
	}

	settled, err := h.reportService.SettleCommissions(c.Request.Context(), marketID, &req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyCommissionsSettled),
		"settled": settled,
	})
}
