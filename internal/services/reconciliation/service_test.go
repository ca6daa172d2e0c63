package reconciliation

import (
	"errors"
	"testing"
	"time"

	"churchcoin-backend/internal/models"
	"churchcoin-backend/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	churchID uuid.UUID
	fundID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Church{}, &models.Fund{},
		&models.ImportBatch{}, &models.ImportRow{}, &models.Transaction{},
		&models.ReconciliationSession{}, &models.ReconciliationMatch{}, &models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{
		db:       db,
		svc:      NewService(db, repository.NewTransactionRepository(db), DefaultConfig()),
		churchID: uuid.New(),
		fundID:   uuid.New(),
	}
	db.Create(&models.Church{ID: f.churchID, Name: "St Mary"})
	db.Create(&models.Fund{ID: f.fundID, ChurchID: f.churchID, Name: "General"})
	return f
}

func (f *fixture) addTransaction(t *testing.T, day string, desc string, amount float64, pending bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	status := models.PendingNone
	if pending {
		status = models.PendingPending
	}
	date, _ := time.Parse("2006-01-02", day)
	if err := f.db.Create(&models.Transaction{
		ID: id, ChurchID: f.churchID, FundID: f.fundID,
		Date: date, Description: desc, Amount: amount,
		Type: models.TransactionType(amount), Source: models.SourceManual,
		PendingStatus: status, CreatedAt: time.Now(),
	}).Error; err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return id
}

func (f *fixture) addBankRow(t *testing.T, day string, desc string, amount float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	date, _ := time.Parse("2006-01-02", day)
	if err := f.db.Create(&models.ImportRow{
		ID: id, BatchID: uuid.New(), ChurchID: f.churchID,
		Date: date, Description: desc, Amount: amount,
		Status: models.RowReady, CreatedAt: time.Now(),
	}).Error; err != nil {
		t.Fatalf("create bank row: %v", err)
	}
	return id
}

func TestStartSessionValidatesMonth(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.StartSession(f.churchID, "March 2024", 1000, 950); err == nil {
		t.Fatal("bad month label should fail")
	}
	s, err := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.Status != models.SessionOpen {
		t.Fatalf("want open, got %s", s.Status)
	}
}

func TestSuggestMatchesScoresAndSorts(t *testing.T) {
	f := newFixture(t)
	session, _ := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)

	txExact := f.addTransaction(t, "2024-03-05", "GAS BILL BRITISH GAS", -80, false)
	f.addTransaction(t, "2024-03-20", "UNRELATED PAYEE", -80, false)
	f.addTransaction(t, "2024-03-05", "OFFERING", 50, false)

	rowID := f.addBankRow(t, "2024-03-05", "BRITISH GAS DD", -80)

	suggestions, err := f.svc.SuggestMatches(session.ID, nil)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatal("want at least one suggestion")
	}
	best := suggestions[0]
	if best.BankRowID != rowID || best.TransactionID != txExact {
		t.Fatalf("best suggestion should pair the gas bill, got %+v", best)
	}
	if best.Confidence < 0.5 || best.Confidence > 1 {
		t.Fatalf("confidence out of range: %v", best.Confidence)
	}
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].Confidence > suggestions[i-1].Confidence {
			t.Fatal("suggestions not sorted descending")
		}
	}
}

func TestSuggestMatchesExcludesConfirmedPairs(t *testing.T) {
	f := newFixture(t)
	session, _ := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)

	txID := f.addTransaction(t, "2024-03-05", "OFFERING", 50, false)
	rowID := f.addBankRow(t, "2024-03-05", "OFFERING", 50)

	if _, err := f.svc.ConfirmMatch(session.ID, rowID, txID, 0.98); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	suggestions, err := f.svc.SuggestMatches(session.ID, nil)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	for _, s := range suggestions {
		if s.BankRowID == rowID || s.TransactionID == txID {
			t.Fatalf("confirmed pair resurfaced: %+v", s)
		}
	}
}

func TestConfirmMatchNoDoubleMatching(t *testing.T) {
	f := newFixture(t)
	session, _ := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)

	txID := f.addTransaction(t, "2024-03-05", "OFFERING", 50, false)
	rowID := f.addBankRow(t, "2024-03-05", "OFFERING", 50)
	otherRow := f.addBankRow(t, "2024-03-05", "OFFERING CASH", 50)
	otherTx := f.addTransaction(t, "2024-03-06", "OFFERING", 50, false)

	if _, err := f.svc.ConfirmMatch(session.ID, rowID, txID, 0.98); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := f.svc.ConfirmMatch(session.ID, otherRow, txID, 0.9); !errors.Is(err, ErrAlreadyMatched) {
		t.Fatalf("transaction reuse must fail, got %v", err)
	}
	if _, err := f.svc.ConfirmMatch(session.ID, rowID, otherTx, 0.9); !errors.Is(err, ErrAlreadyMatched) {
		t.Fatalf("bank row reuse must fail, got %v", err)
	}

	var txn models.Transaction
	f.db.First(&txn, "id = ?", txID)
	if !txn.Reconciled {
		t.Fatal("confirmed transaction should be reconciled")
	}

	var session2 models.ReconciliationSession
	f.db.First(&session2, "id = ?", session.ID)
	if session2.Status != models.SessionInProgress {
		t.Fatalf("session should advance to in_progress, got %s", session2.Status)
	}
}

func TestConfirmMatchCrossTenant(t *testing.T) {
	f := newFixture(t)
	session, _ := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)
	rowID := f.addBankRow(t, "2024-03-05", "OFFERING", 50)

	foreignTx := uuid.New()
	f.db.Create(&models.Transaction{
		ID: foreignTx, ChurchID: uuid.New(), FundID: uuid.New(),
		Date: time.Now(), Description: "X", Amount: 50, Type: "income", Source: models.SourceManual,
	})

	if _, err := f.svc.ConfirmMatch(session.ID, rowID, foreignTx, 0.9); !errors.Is(err, models.ErrCrossTenantReference) {
		t.Fatalf("want ErrCrossTenantReference, got %v", err)
	}
}

func TestVarianceFormula(t *testing.T) {
	f := newFixture(t)
	session, _ := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)

	// one pending cheque not yet cleared by the bank
	f.addTransaction(t, "2024-03-10", "CHEQUE 100123", -30, true)

	report, err := f.svc.GetVarianceReport(session.ID)
	if err != nil {
		t.Fatalf("variance: %v", err)
	}
	if report.PendingTotal != -30 {
		t.Fatalf("pending total want -30, got %v", report.PendingTotal)
	}
	want := 1000.0 - (950.0 + 0 - (-30.0))
	if report.Variance != want {
		t.Fatalf("variance want %v, got %v", want, report.Variance)
	}

	// adjustments feed straight into the formula
	adj := 30.0
	if err := f.svc.UpdateProgress(session.ID, &adj, nil); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	report, _ = f.svc.GetVarianceReport(session.ID)
	if got, want := report.Variance, Variance(1000, 950, 30, -30); got != want {
		t.Fatalf("variance want %v, got %v", want, got)
	}
}

func TestCloseSessionIsTerminal(t *testing.T) {
	f := newFixture(t)
	session, _ := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)

	closed, err := f.svc.CloseSession(session.ID, 12.5, "month end")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != models.SessionCompleted || closed.CompletedAt == nil {
		t.Fatalf("unexpected closed session: %+v", closed)
	}
	if closed.Variance != Variance(1000, 950, 12.5, closed.PendingTotal) {
		t.Fatalf("frozen variance wrong: %+v", closed)
	}

	if _, err := f.svc.CloseSession(session.ID, 0, ""); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("closing twice must fail with SessionClosed, got %v", err)
	}
	if err := f.svc.UpdateProgress(session.ID, nil, strPtr("late note")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("progress on closed session must fail, got %v", err)
	}
	rowID := f.addBankRow(t, "2024-03-05", "OFFERING", 50)
	txID := f.addTransaction(t, "2024-03-05", "OFFERING", 50, false)
	if _, err := f.svc.ConfirmMatch(session.ID, rowID, txID, 0.9); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("confirm on closed session must fail, got %v", err)
	}

	// state unchanged after the failed mutations
	var check models.ReconciliationSession
	f.db.First(&check, "id = ?", session.ID)
	if check.Notes != "month end" || check.Adjustments != 12.5 {
		t.Fatalf("closed session mutated: %+v", check)
	}
}

func TestCloseSessionWritesAudit(t *testing.T) {
	f := newFixture(t)
	session, _ := f.svc.StartSession(f.churchID, "2024-03", 1000, 950)
	if _, err := f.svc.CloseSession(session.ID, 0, ""); err != nil {
		t.Fatalf("close: %v", err)
	}

	var count int64
	f.db.Model(&models.AuditLog{}).
		Where("church_id = ? AND action = ?", f.churchID, "reconciliation.session_closed").
		Count(&count)
	if count != 1 {
		t.Fatalf("want one audit entry, got %d", count)
	}
}

func strPtr(s string) *string { return &s }
