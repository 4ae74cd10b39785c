package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/krs-api/internal/models"
	"github.com/noah-isme/krs-api/pkg/response"
)

type ledgerAuditor interface {
	Run(ctx context.Context) (*models.LedgerAuditReport, error)
}

// AuditHandler exposes the on-demand ledger audit.
type AuditHandler struct {
	auditor ledgerAuditor
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(auditor ledgerAuditor) *AuditHandler {
	return &AuditHandler{auditor: auditor}
}

// Ledger godoc
// @Summary Audit ledger invariants
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /audit/ledger [get]
func (h *AuditHandler) Ledger(c *gin.Context) {
	report, err := h.auditor.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, map[string]interface{}{"clean": report.Clean()})
}
