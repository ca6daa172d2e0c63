package handler

import (
	"io"
	"log"
	"net/http"

	"churchcoin-backend/internal/importer"
	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/services/approval"
	"churchcoin-backend/internal/services/detect"
	"churchcoin-backend/internal/services/imports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ImportHandler struct {
	imports  *imports.Service
	approval *approval.Service
	detector *detect.Detector
}

func NewImportHandler(importsSvc *imports.Service, approvalSvc *approval.Service, detector *detect.Detector) *ImportHandler {
	return &ImportHandler{imports: importsSvc, approval: approvalSvc, detector: detector}
}

// Upload parses the statement and proposes a format and column mapping.
// Nothing is persisted until the caller confirms via CreateImport.
func (h *ImportHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	parsed, err := importer.Parse(string(raw))
	if err != nil {
		fail(c, err)
		return
	}

	format := importer.DetectFormat(parsed.Headers)
	mapping := importer.DeriveMapping(parsed.Headers)

	sample := parsed.Rows
	if len(sample) > 5 {
		sample = sample[:5]
	}

	c.JSON(http.StatusOK, gin.H{
		"filename":   header.Filename,
		"headers":    parsed.Headers,
		"rowCount":   len(parsed.Rows),
		"bankFormat": format,
		"mapping":    mapping,
		"sample":     sample,
	})
}

// CreateImport persists the batch with the confirmed mapping. Rows the
// mapping cannot read are skipped and counted, the rest land atomically.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}

	var payload struct {
		Filename   string                 `json:"filename"`
		BankFormat models.BankFormat      `json:"bankFormat"`
		Mapping    importer.MappingConfig `json:"mapping"`
		Rows       []map[string]string    `json:"rows"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !payload.Mapping.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mapping is incomplete"})
		return
	}

	var inputs []imports.RowInput
	skipped := 0
	for i, fields := range payload.Rows {
		mapped, err := payload.Mapping.Apply(importer.Row{Line: i + 2, Fields: fields})
		if err != nil {
			log.Printf("skipping unreadable row: %v", err)
			skipped++
			continue
		}
		inputs = append(inputs, imports.RowInput{MappedRow: mapped, Raw: fields})
	}

	batch, err := h.imports.CreateImportWithRows(church, payload.Filename, payload.BankFormat, payload.Mapping, inputs)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"importId":    batch.ID.String(),
		"status":      batch.Status,
		"rowCount":    batch.RowCount,
		"skippedRows": skipped,
	})
}

func (h *ImportHandler) GetRows(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import ID"})
		return
	}

	status := c.Query("status")
	cursor := c.Query("cursor")
	search := c.Query("search")
	limit := 50

	rows, nextCursor, hasMore := h.imports.ListRows(batchID, status, cursor, limit, search)
	stats, _ := h.imports.BatchStats(batchID)

	c.JSON(http.StatusOK, gin.H{
		"items":       rows,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
		"stats":       stats,
	})
}

// Annotate runs duplicate and category detection over the whole batch.
func (h *ImportHandler) Annotate(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import ID"})
		return
	}

	if err := h.detector.AnnotateBatch(c.Request.Context(), batchID, church); err != nil {
		fail(c, err)
		return
	}

	batch, err := h.imports.GetBatch(batchID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          batch.Status,
		"processed_count": batch.ProcessedCount,
		"duplicate_count": batch.DuplicateCount,
	})
}

func (h *ImportHandler) ApproveRows(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import ID"})
		return
	}

	var payload struct {
		Selections []approval.Selection `json:"selections"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.approval.ApproveRows(batchID, church, payload.Selections)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ImportHandler) AutoApproveRows(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import ID"})
		return
	}

	result, err := h.approval.AutoApproveRows(batchID, church)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ImportHandler) SkipRows(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}

	var payload struct {
		RowIDs []uuid.UUID `json:"rowIds"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	skipped, err := h.approval.SkipRows(church, payload.RowIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skipped": skipped})
}

// DeleteImport is destructive: the batch, its rows, and the ledger
// transactions it produced are all removed, with exact counts reported.
func (h *ImportHandler) DeleteImport(c *gin.Context) {
	church, ok := churchID(c)
	if !ok {
		return
	}
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import ID"})
		return
	}

	result, err := h.imports.DeleteImport(batchID, church)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
