package handler

import (
	"net/http"

	"churchcoin-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReconciliationHandler struct {
	service *reconciliation.Service
}

func NewReconciliationHandler(s *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{service: s}
}

func (h *ReconciliationHandler) StartSession(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}

	var payload struct {
		Month         string  `json:"month"`
		BankBalance   float64 `json:"bankBalance"`
		LedgerBalance float64 `json:"ledgerBalance"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	session, err := h.service.StartSession(church, payload.Month, payload.BankBalance, payload.LedgerBalance)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": session.ID.String(), "session": session})
}

func (h *ReconciliationHandler) ListSessions(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}
	sessions, err := h.service.ListSessions(church)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *ReconciliationHandler) SuggestMatches(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	var importID *uuid.UUID
	if raw := c.Query("importId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import ID"})
			return
		}
		importID = &id
	}

	suggestions, err := h.service.SuggestMatches(sessionID, importID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *ReconciliationHandler) ConfirmMatch(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	var payload struct {
		BankRowID     uuid.UUID `json:"bankRowId"`
		TransactionID uuid.UUID `json:"transactionId"`
		Confidence    float64   `json:"confidence"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	match, err := h.service.ConfirmMatch(sessionID, payload.BankRowID, payload.TransactionID, payload.Confidence)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match": match})
}

func (h *ReconciliationHandler) GetVarianceReport(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	report, err := h.service.GetVarianceReport(sessionID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ReconciliationHandler) UpdateProgress(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	var payload struct {
		Adjustments *float64 `json:"adjustments,omitempty"`
		Notes       *string  `json:"notes,omitempty"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.service.UpdateProgress(sessionID, payload.Adjustments, payload.Notes); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session updated"})
}

func (h *ReconciliationHandler) CloseSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	var payload struct {
		Adjustments float64 `json:"adjustments"`
		Notes       string  `json:"notes"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	session, err := h.service.CloseSession(sessionID, payload.Adjustments, payload.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}
