// Package reconciliation manages the month-end matching workflow: open a
// session against a stated bank balance, confirm bank-row-to-transaction
// matches, track variance, and close the period.
package reconciliation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/repository"
	"churchcoin-backend/internal/services/detect"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("reconciliation session not found")
	ErrSessionClosed   = errors.New("reconciliation session is completed")
	ErrAlreadyMatched  = errors.New("bank row or transaction already matched in this session")
)

// Config carries the matching knobs.
type Config struct {
	MatchFloor float64 // minimum confidence for a suggestion to surface
}

func DefaultConfig() Config {
	return Config{MatchFloor: 0.5}
}

type Service struct {
	db     *gorm.DB
	txRepo *repository.TransactionRepository
	cfg    Config
}

func NewService(db *gorm.DB, txRepo *repository.TransactionRepository, cfg Config) *Service {
	return &Service{db: db, txRepo: txRepo, cfg: cfg}
}

// StartSession opens a new session for the month. One open session per
// (church, month) is enforced by the unique index on the table.
func (s *Service) StartSession(churchID uuid.UUID, month string, bankBalance, ledgerBalance float64) (*models.ReconciliationSession, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, fmt.Errorf("month must be YYYY-MM: %w", err)
	}

	session := &models.ReconciliationSession{
		ID:            uuid.New(),
		ChurchID:      churchID,
		Month:         month,
		Status:        models.SessionOpen,
		BankBalance:   bankBalance,
		LedgerBalance: ledgerBalance,
		CreatedAt:     time.Now(),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// MatchSuggestion is one proposed pairing, confidence in [0,1].
type MatchSuggestion struct {
	BankRowID     uuid.UUID `json:"bankRowId"`
	TransactionID uuid.UUID `json:"transactionId"`
	Confidence    float64   `json:"confidence"`
}

// SuggestMatches pairs unmatched bank rows against unreconciled in-period
// transactions. Amount must match exactly; description similarity and date
// proximity set the confidence. Pairs below the floor are dropped and
// already-confirmed sides never reappear.
func (s *Service) SuggestMatches(sessionID uuid.UUID, importID *uuid.UUID) ([]MatchSuggestion, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	start, end := monthBounds(session.Month)

	matchedRows, matchedTxns, err := s.confirmedSides(sessionID)
	if err != nil {
		return nil, err
	}

	rowQuery := s.db.Where("church_id = ?", session.ChurchID)
	if importID != nil {
		rowQuery = rowQuery.Where("batch_id = ?", *importID)
	} else {
		rowQuery = rowQuery.Where("date >= ? AND date < ?", start, end)
	}
	var bankRows []models.ImportRow
	if err := rowQuery.Find(&bankRows).Error; err != nil {
		return nil, err
	}

	txns, err := s.txRepo.UnreconciledInPeriod(session.ChurchID, start, end)
	if err != nil {
		return nil, err
	}

	// candidate transactions per exact amount
	byAmount := make(map[float64][]*models.Transaction)
	for i := range txns {
		if matchedTxns[txns[i].ID] {
			continue
		}
		byAmount[txns[i].Amount] = append(byAmount[txns[i].Amount], &txns[i])
	}

	var suggestions []MatchSuggestion
	for i := range bankRows {
		row := &bankRows[i]
		if matchedRows[row.ID] {
			continue
		}
		candidates := byAmount[row.Amount]
		for _, txn := range candidates {
			conf := scoreMatch(row, txn, len(candidates))
			if conf < s.cfg.MatchFloor {
				continue
			}
			suggestions = append(suggestions, MatchSuggestion{
				BankRowID:     row.ID,
				TransactionID: txn.ID,
				Confidence:    conf,
			})
		}
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions, nil
}

// scoreMatch blends description similarity, date proximity and an ambiguity
// penalty when several transactions share the amount.
func scoreMatch(row *models.ImportRow, txn *models.Transaction, candidateCount int) float64 {
	descScore := detect.DescriptionSimilarity(row.Description, txn.Description)
	dateScore := dateProximity(row.Date, txn.Date)
	ambiguity := 1.0
	if candidateCount > 1 {
		ambiguity = 0.8
	}
	return 0.6*descScore + 0.3*dateScore + 0.1*ambiguity
}

func dateProximity(a, b time.Time) float64 {
	days := a.Sub(b).Hours() / 24
	if days < 0 {
		days = -days
	}
	switch {
	case days < 1:
		return 1
	case days <= 3:
		return 0.9
	case days <= 7:
		return 0.7
	case days <= 15:
		return 0.5
	default:
		return 0.3
	}
}

// ConfirmMatch records a pairing and marks the transaction reconciled. Either
// side already being matched in this session fails the call; nothing else is
// touched.
func (s *Service) ConfirmMatch(sessionID, bankRowID, transactionID uuid.UUID, confidence float64) (*models.ReconciliationMatch, error) {
	var match *models.ReconciliationMatch

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session models.ReconciliationSession
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.Status == models.SessionCompleted {
			return ErrSessionClosed
		}

		var taken int64
		err := tx.Model(&models.ReconciliationMatch{}).
			Where("session_id = ?", sessionID).
			Where("bank_row_id = ? OR transaction_id = ?", bankRowID, transactionID).
			Count(&taken).Error
		if err != nil {
			return err
		}
		if taken > 0 {
			return ErrAlreadyMatched
		}

		var txn models.Transaction
		if err := tx.First(&txn, "id = ?", transactionID).Error; err != nil {
			return err
		}
		if txn.ChurchID != session.ChurchID {
			return models.ErrCrossTenantReference
		}
		var row models.ImportRow
		if err := tx.First(&row, "id = ?", bankRowID).Error; err != nil {
			return err
		}
		if row.ChurchID != session.ChurchID {
			return models.ErrCrossTenantReference
		}

		match = &models.ReconciliationMatch{
			ID:            uuid.New(),
			SessionID:     sessionID,
			BankRowID:     bankRowID,
			TransactionID: transactionID,
			Confidence:    confidence,
			CreatedAt:     time.Now(),
		}
		if err := tx.Create(match).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Transaction{}).
			Where("id = ?", transactionID).
			Update("reconciled", true).Error; err != nil {
			return err
		}

		if session.Status == models.SessionOpen {
			if err := tx.Model(&session).Update("status", models.SessionInProgress).Error; err != nil {
				return err
			}
		}

		return writeAudit(tx, session.ChurchID, "reconciliation.match_confirmed", match.ID, map[string]interface{}{
			"session_id":     sessionID.String(),
			"bank_row_id":    bankRowID.String(),
			"transaction_id": transactionID.String(),
			"confidence":     confidence,
		})
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// VarianceReport is a pure read over the session's period.
type VarianceReport struct {
	PendingTotal      float64 `json:"pendingTotal"`
	UnreconciledTotal float64 `json:"unreconciledTotal"`
	Adjustments       float64 `json:"adjustments"`
	Variance          float64 `json:"variance"`
}

func (s *Service) GetVarianceReport(sessionID uuid.UUID) (VarianceReport, error) {
	var report VarianceReport

	session, err := s.getSession(sessionID)
	if err != nil {
		return report, err
	}
	start, end := monthBounds(session.Month)

	pending, err := s.txRepo.SumPending(session.ChurchID)
	if err != nil {
		return report, err
	}
	unreconciled, err := s.txRepo.SumUnreconciledInPeriod(session.ChurchID, start, end)
	if err != nil {
		return report, err
	}

	report.PendingTotal = pending
	report.UnreconciledTotal = unreconciled
	report.Adjustments = session.Adjustments
	report.Variance = Variance(session.BankBalance, session.LedgerBalance, session.Adjustments, pending)
	return report, nil
}

// Variance is the one formula everything else checks against:
// bank - (ledger + adjustments - pendingTotal).
func Variance(bankBalance, ledgerBalance, adjustments, pendingTotal float64) float64 {
	return bankBalance - (ledgerBalance + adjustments - pendingTotal)
}

// UpdateProgress mutates only adjustments and notes, and only while the
// session is not completed.
func (s *Service) UpdateProgress(sessionID uuid.UUID, adjustments *float64, notes *string) error {
	session, err := s.getSession(sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.SessionCompleted {
		return ErrSessionClosed
	}

	updates := map[string]interface{}{}
	if adjustments != nil {
		updates["adjustments"] = *adjustments
	}
	if notes != nil {
		updates["notes"] = *notes
	}
	if len(updates) == 0 {
		return nil
	}

	// the status condition guards against a close landing between the read
	// above and this write; frozen values must never be overwritten
	res := s.db.Model(&models.ReconciliationSession{}).
		Where("id = ? AND status <> ?", sessionID, models.SessionCompleted).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionClosed
	}
	return nil
}

// CloseSession freezes balances, adjustments and variance as of close time
// and transitions to completed. Irreversible.
func (s *Service) CloseSession(sessionID uuid.UUID, adjustments float64, notes string) (*models.ReconciliationSession, error) {
	var closed *models.ReconciliationSession

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session models.ReconciliationSession
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		if session.Status == models.SessionCompleted {
			return ErrSessionClosed
		}

		pending, err := s.txRepo.SumPending(session.ChurchID)
		if err != nil {
			return err
		}

		now := time.Now()
		session.Status = models.SessionCompleted
		session.Adjustments = adjustments
		session.Notes = notes
		session.PendingTotal = pending
		session.Variance = Variance(session.BankBalance, session.LedgerBalance, adjustments, pending)
		session.CompletedAt = &now

		if err := tx.Save(&session).Error; err != nil {
			return err
		}
		closed = &session

		return writeAudit(tx, session.ChurchID, "reconciliation.session_closed", session.ID, map[string]interface{}{
			"month":    session.Month,
			"variance": session.Variance,
		})
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *Service) ListSessions(churchID uuid.UUID) ([]models.ReconciliationSession, error) {
	var sessions []models.ReconciliationSession
	err := s.db.Where("church_id = ?", churchID).Order("month DESC").Find(&sessions).Error
	return sessions, err
}

func (s *Service) getSession(sessionID uuid.UUID) (*models.ReconciliationSession, error) {
	var session models.ReconciliationSession
	if err := s.db.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Service) confirmedSides(sessionID uuid.UUID) (map[uuid.UUID]bool, map[uuid.UUID]bool, error) {
	var matches []models.ReconciliationMatch
	if err := s.db.Where("session_id = ?", sessionID).Find(&matches).Error; err != nil {
		return nil, nil, err
	}
	rows := make(map[uuid.UUID]bool, len(matches))
	txns := make(map[uuid.UUID]bool, len(matches))
	for _, m := range matches {
		rows[m.BankRowID] = true
		txns[m.TransactionID] = true
	}
	return rows, txns, nil
}

func monthBounds(month string) (time.Time, time.Time) {
	start, _ := time.Parse("2006-01", month)
	return start, start.AddDate(0, 1, 0)
}

func writeAudit(tx *gorm.DB, churchID uuid.UUID, action string, entityID uuid.UUID, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.Create(&models.AuditLog{
		ID:        uuid.New(),
		ChurchID:  churchID,
		Action:    action,
		EntityID:  entityID,
		Payload:   raw,
		CreatedAt: time.Now(),
	}).Error
}
