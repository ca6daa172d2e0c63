// Package detect annotates imported statement rows: duplicate detection
// against the existing ledger, category suggestion via keyword rules, human
// feedback history and an optional AI fallback, and donor attribution for
// Gift Aid.
package detect

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/repository"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// ErrBatchFinished rejects annotation of a batch that is not awaiting it:
// completed and failed are terminal and never move again, and a batch still
// waiting on its column mapping has nothing to annotate.
var ErrBatchFinished = errors.New("import batch not awaiting annotation")

// Config carries the tunable thresholds. Defaults are deliberately
// conservative; churches can loosen them per tenant.
type Config struct {
	DuplicateSimilarity  float64       // description similarity floor for a duplicate
	AutoApproveThreshold float64       // fallback when the church has none configured
	AITimeout            time.Duration // hard bound on one model call
	CacheTTL             time.Duration // AI suggestion cache lifetime
}

func DefaultConfig() Config {
	return Config{
		DuplicateSimilarity:  0.85,
		AutoApproveThreshold: 0.95,
		AITimeout:            10 * time.Second,
		CacheTTL:             24 * time.Hour,
	}
}

// Suggestion is a proposed categorization for one row.
type Suggestion struct {
	CategoryID uuid.UUID
	Confidence float64
	Source     string // feedback | keyword | ai
}

type Detector struct {
	db         *gorm.DB
	txRepo     *repository.TransactionRepository
	catRepo    *repository.CategoryRepository
	donorRepo  *repository.DonorRepository
	churchRepo *repository.ChurchRepository
	provider   Provider
	cache      *gocache.Cache
	cfg        Config
}

func NewDetector(
	db *gorm.DB,
	txRepo *repository.TransactionRepository,
	catRepo *repository.CategoryRepository,
	donorRepo *repository.DonorRepository,
	churchRepo *repository.ChurchRepository,
	provider Provider,
	cfg Config,
) *Detector {
	return &Detector{
		db:         db,
		txRepo:     txRepo,
		catRepo:    catRepo,
		donorRepo:  donorRepo,
		churchRepo: churchRepo,
		provider:   provider,
		cache:      gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:        cfg,
	}
}

// FindDuplicate applies the three-factor duplicate test: exact date, exact
// amount, description similarity above the floor. When several candidates
// qualify the most recently created transaction wins.
func FindDuplicate(date time.Time, amount float64, description string, window []models.Transaction, minSimilarity float64) *models.Transaction {
	var best *models.Transaction
	for i := range window {
		cand := &window[i]
		if !sameDay(cand.Date, date) || cand.Amount != amount {
			continue
		}
		if DescriptionSimilarity(description, cand.Description) < minSimilarity {
			continue
		}
		if best == nil || cand.CreatedAt.After(best.CreatedAt) {
			best = cand
		}
	}
	return best
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// ShouldAutoApprove is a pure threshold comparison; the boundary case is
// inclusive.
func ShouldAutoApprove(confidence, threshold float64) bool {
	return confidence >= threshold
}

// SuggestCategory proposes a category for one row. Order of precedence:
// human feedback history, keyword rules, then the AI fallback when the
// church has it enabled. Never returns an error: AI trouble degrades to no
// suggestion.
func (d *Detector) SuggestCategory(ctx context.Context, church *models.Church, description string, amount float64) *Suggestion {
	if s := d.suggestFromFeedback(church.ID, description, amount); s != nil {
		return s
	}

	keywords, err := d.catRepo.ActiveKeywords(church.ID)
	if err == nil {
		if s := SuggestFromKeywords(description, keywords); s != nil {
			return s
		}
	}

	if church.AIEnabled && d.provider != nil {
		return d.suggestFromAI(ctx, church, description, amount)
	}
	return nil
}

func (d *Detector) suggestFromFeedback(churchID uuid.UUID, description string, amount float64) *Suggestion {
	pattern := NormalizeDescription(description)
	if pattern == "" {
		return nil
	}
	feedback, err := d.catRepo.FeedbackForPattern(churchID, pattern)
	if err != nil || len(feedback) == 0 {
		return nil
	}

	// Prefer the correction recorded for the closest amount.
	best := feedback[0]
	for _, fb := range feedback[1:] {
		if math.Abs(fb.Amount-amount) < math.Abs(best.Amount-amount) {
			best = fb
		}
	}
	return &Suggestion{CategoryID: best.CorrectedCategoryID, Confidence: 0.99, Source: "feedback"}
}

// SuggestFromKeywords matches the description against active keyword rules.
// A whole-word match outranks a substring match; among equal kinds the
// longest keyword is the most specific and wins.
func SuggestFromKeywords(description string, keywords []models.CategoryKeyword) *Suggestion {
	normDesc := NormalizeDescription(description)
	words := map[string]bool{}
	for _, w := range strings.Fields(normDesc) {
		words[w] = true
	}

	best := (*models.CategoryKeyword)(nil)
	bestConf := 0.0
	for i := range keywords {
		kw := &keywords[i]
		normKw := NormalizeDescription(kw.Keyword)
		if normKw == "" {
			continue
		}

		var conf float64
		switch {
		case words[normKw]:
			conf = 0.9
		case strings.Contains(normDesc, normKw):
			conf = 0.7
		default:
			continue
		}

		if conf > bestConf || (conf == bestConf && best != nil && len(normKw) > len(NormalizeDescription(best.Keyword))) {
			best = kw
			bestConf = conf
		}
	}
	if best == nil {
		return nil
	}
	return &Suggestion{CategoryID: best.CategoryID, Confidence: bestConf, Source: "keyword"}
}

func (d *Detector) suggestFromAI(ctx context.Context, church *models.Church, description string, amount float64) *Suggestion {
	categories, err := d.catRepo.ByChurch(church.ID)
	if err != nil || len(categories) == 0 {
		return nil
	}

	names := make([]string, len(categories))
	byName := make(map[string]uuid.UUID, len(categories))
	for i, c := range categories {
		names[i] = c.Name
		byName[strings.ToLower(c.Name)] = c.ID
	}
	sort.Strings(names)

	key := suggestionKey(description, amount, names)
	if cached, ok := d.cache.Get(key); ok {
		s := cached.(Suggestion)
		return &s
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.AITimeout)
	defer cancel()

	result, err := d.provider.Categorize(ctx, CategorizeInput{
		APIKey:      church.AIAPIKey,
		Description: description,
		Amount:      amount,
		Categories:  names,
	})
	if err != nil || result == nil {
		// best effort only, never block the import
		if err != nil {
			log.Printf("ai categorization failed: %v", err)
		}
		return nil
	}

	catID, ok := byName[strings.ToLower(strings.TrimSpace(result.Category))]
	if !ok {
		return nil
	}

	s := Suggestion{CategoryID: catID, Confidence: result.Confidence, Source: "ai"}
	d.cache.Set(key, s, gocache.DefaultExpiration)
	return &s
}

func suggestionKey(description string, amount float64, categories []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.2f|%s", NormalizeDescription(description), amount, strings.Join(categories, ","))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// SuggestDonor attributes a row to a donor for Gift Aid purposes. Bank
// standing-order references are the strongest signal; a donor's full name in
// the description is the fallback.
func SuggestDonor(description, reference string, donors []models.Donor) *uuid.UUID {
	normDesc := NormalizeDescription(description)
	normRef := NormalizeDescription(reference)

	for i := range donors {
		ref := NormalizeDescription(donors[i].BankReference)
		if ref == "" {
			continue
		}
		if strings.Contains(normRef, ref) || strings.Contains(normDesc, ref) {
			return &donors[i].ID
		}
	}
	for i := range donors {
		name := NormalizeDescription(donors[i].Name)
		if name != "" && strings.Contains(normDesc, name) {
			return &donors[i].ID
		}
	}
	return nil
}

// AnnotateBatch runs duplicate, category and donor detection over every
// pending row of the batch, then marks the batch completed. Rows flagged as
// duplicates are never candidates for auto-approval.
func (d *Detector) AnnotateBatch(ctx context.Context, batchID, churchID uuid.UUID) error {
	var batch models.ImportBatch
	if err := d.db.First(&batch, "id = ?", batchID).Error; err != nil {
		return err
	}
	if batch.ChurchID != churchID {
		return models.ErrCrossTenantReference
	}
	switch batch.Status {
	case models.ImportMapping, models.ImportProcessing:
	default:
		return ErrBatchFinished
	}

	church, err := d.churchRepo.GetByID(churchID)
	if err != nil {
		return err
	}
	donors, err := d.donorRepo.ByChurch(churchID)
	if err != nil {
		return err
	}

	if err := d.db.Model(&batch).
		Where("status IN ?", []models.ImportStatus{models.ImportMapping, models.ImportProcessing}).
		Update("status", models.ImportProcessing).Error; err != nil {
		return err
	}

	var rows []models.ImportRow
	if err := d.db.Where("batch_id = ? AND status = ?", batchID, models.RowPending).Find(&rows).Error; err != nil {
		return err
	}

	processed := 0
	duplicates := 0
	for i := range rows {
		row := &rows[i]

		window, err := d.txRepo.DuplicateWindow(churchID, row.Date, row.Amount)
		if err != nil {
			return err
		}
		if dup := FindDuplicate(row.Date, row.Amount, row.Description, window, d.cfg.DuplicateSimilarity); dup != nil {
			row.Status = models.RowDuplicate
			row.DuplicateOfID = &dup.ID
			duplicates++
		} else {
			row.Status = models.RowReady
			row.SuggestedFundID = church.DefaultFundID
			if s := d.SuggestCategory(ctx, church, row.Description, row.Amount); s != nil {
				row.SuggestedCategoryID = &s.CategoryID
				row.Confidence = s.Confidence
			}
			if donorID := SuggestDonor(row.Description, row.Reference, donors); donorID != nil {
				row.SuggestedDonorID = donorID
			}
		}

		if err := d.db.Model(&models.ImportRow{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
			"status":                row.Status,
			"duplicate_of_id":       row.DuplicateOfID,
			"suggested_fund_id":     row.SuggestedFundID,
			"suggested_category_id": row.SuggestedCategoryID,
			"suggested_donor_id":    row.SuggestedDonorID,
			"confidence":            row.Confidence,
		}).Error; err != nil {
			return err
		}
		processed++
	}

	// only a batch still in processing may complete; a concurrent failure
	// marker wins
	now := time.Now()
	return d.db.Model(&models.ImportBatch{}).
		Where("id = ? AND status = ?", batchID, models.ImportProcessing).
		Updates(map[string]interface{}{
			"status":          models.ImportCompleted,
			"processed_count": processed,
			"duplicate_count": duplicates,
			"completed_at":    &now,
		}).Error
}
