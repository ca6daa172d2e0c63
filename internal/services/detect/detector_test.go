package detect

import (
	"context"
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

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestShouldAutoApprove(t *testing.T) {
	cases := []struct {
		confidence, threshold float64
		want                  bool
	}{
		{0.96, 0.95, true},
		{0.95, 0.95, true}, // boundary is inclusive
		{0.9499, 0.95, false},
		{0, 0.95, false},
		{1, 1, true},
	}
	for _, c := range cases {
		if got := ShouldAutoApprove(c.confidence, c.threshold); got != c.want {
			t.Fatalf("ShouldAutoApprove(%v, %v) = %v, want %v", c.confidence, c.threshold, got, c.want)
		}
	}
}

func TestDescriptionSimilarity(t *testing.T) {
	if got := DescriptionSimilarity("TESCO STORES 2041", "tesco stores 2041"); got != 1 {
		t.Fatalf("identical descriptions should score 1, got %v", got)
	}
	if got := DescriptionSimilarity("STANDING ORDER J SMITH", "GAS BILL BRITISH GAS"); got > 0.5 {
		t.Fatalf("unrelated descriptions scored too high: %v", got)
	}
	if got := DescriptionSimilarity("", "anything"); got != 0 {
		t.Fatalf("empty description should score 0, got %v", got)
	}
}

func TestFindDuplicateThreeFactorContract(t *testing.T) {
	day := mustDate("2024-03-01")
	window := []models.Transaction{
		{ID: uuid.New(), Date: day, Amount: 50, Description: "Offering", CreatedAt: mustDate("2024-03-02")},
		{ID: uuid.New(), Date: day, Amount: 50, Description: "Offering", CreatedAt: mustDate("2024-03-05")},
		{ID: uuid.New(), Date: day, Amount: 50, Description: "Completely different payee", CreatedAt: mustDate("2024-03-06")},
		{ID: uuid.New(), Date: day.AddDate(0, 0, 1), Amount: 50, Description: "Offering", CreatedAt: mustDate("2024-03-07")},
		{ID: uuid.New(), Date: day, Amount: 50.01, Description: "Offering", CreatedAt: mustDate("2024-03-08")},
	}

	dup := FindDuplicate(day, 50, "Offering", window, 0.85)
	if dup == nil {
		t.Fatal("identical date/amount/description must flag a duplicate")
	}
	// tie-break: most recently created qualifying transaction wins
	if !dup.CreatedAt.Equal(mustDate("2024-03-05")) {
		t.Fatalf("tie-break picked wrong candidate: %v", dup.CreatedAt)
	}

	if FindDuplicate(day, 99, "Offering", window, 0.85) != nil {
		t.Fatal("different amount must never be a duplicate")
	}
	if FindDuplicate(mustDate("2024-04-01"), 50, "Offering", window, 0.85) != nil {
		t.Fatal("different date must never be a duplicate")
	}
}

func TestSuggestFromKeywords(t *testing.T) {
	giving := uuid.New()
	utilities := uuid.New()
	keywords := []models.CategoryKeyword{
		{ID: uuid.New(), CategoryID: giving, Keyword: "offering"},
		{ID: uuid.New(), CategoryID: utilities, Keyword: "gas"},
	}

	s := SuggestFromKeywords("SUNDAY OFFERING CASH", keywords)
	if s == nil || s.CategoryID != giving {
		t.Fatalf("want giving category, got %+v", s)
	}
	if s.Confidence != 0.9 {
		t.Fatalf("whole-word match should score 0.9, got %v", s.Confidence)
	}

	// substring only
	s = SuggestFromKeywords("BRITISHGAS DD", keywords)
	if s == nil || s.CategoryID != utilities {
		t.Fatalf("want utilities category, got %+v", s)
	}
	if s.Confidence != 0.7 {
		t.Fatalf("substring match should score 0.7, got %v", s.Confidence)
	}

	if s := SuggestFromKeywords("PARISH HALL HIRE", keywords); s != nil {
		t.Fatalf("no keyword should match, got %+v", s)
	}
}

func TestSuggestDonor(t *testing.T) {
	donors := []models.Donor{
		{ID: uuid.New(), Name: "Jane Smith", BankReference: "SO-JSMITH-01"},
		{ID: uuid.New(), Name: "Bob Jones"},
	}

	if got := SuggestDonor("STANDING ORDER", "SO-JSMITH-01", donors); got == nil || *got != donors[0].ID {
		t.Fatalf("bank reference should win, got %v", got)
	}
	if got := SuggestDonor("GIFT FROM BOB JONES", "", donors); got == nil || *got != donors[1].ID {
		t.Fatalf("name fallback should match, got %v", got)
	}
	if got := SuggestDonor("ANONYMOUS CASH", "", donors); got != nil {
		t.Fatalf("no donor should match, got %v", got)
	}
}

func TestParseModelResponse(t *testing.T) {
	r, err := parseModelResponse("Category: Utilities\nConfidence: 82%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Category != "Utilities" || r.Confidence != 0.82 {
		t.Fatalf("unexpected result: %+v", r)
	}

	r, err = parseModelResponse("Category: Giving")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Confidence != 0.6 {
		t.Fatalf("missing confidence should fall back, got %v", r.Confidence)
	}

	if _, err := parseModelResponse("I am not sure."); err == nil {
		t.Fatal("want error when no category line present")
	}
}

// slowProvider never answers before the deadline.
type slowProvider struct{}

func (slowProvider) Categorize(ctx context.Context, _ CategorizeInput) (*CategorizeResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func openDetectorDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Church{}, &models.Fund{}, &models.Donor{},
		&models.Category{}, &models.CategoryKeyword{}, &models.AIFeedback{},
		&models.ImportBatch{}, &models.ImportRow{}, &models.Transaction{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestDetector(db *gorm.DB, provider Provider, cfg Config) *Detector {
	return NewDetector(
		db,
		repository.NewTransactionRepository(db),
		repository.NewCategoryRepository(db),
		repository.NewDonorRepository(db),
		repository.NewChurchRepository(db),
		provider,
		cfg,
	)
}

func TestAnnotateBatchFlagsDuplicatesAndSuggests(t *testing.T) {
	db := openDetectorDB(t)
	churchID := uuid.New()
	fundID := uuid.New()
	giving := uuid.New()

	db.Create(&models.Church{ID: churchID, Name: "St Mary", DefaultFundID: &fundID})
	db.Create(&models.Fund{ID: fundID, ChurchID: churchID, Name: "General", Type: "general"})
	db.Create(&models.Category{ID: giving, ChurchID: churchID, Name: "Giving", Type: "income"})
	db.Create(&models.CategoryKeyword{ID: uuid.New(), ChurchID: churchID, CategoryID: giving, Keyword: "offering", Active: true})

	day := mustDate("2024-03-01")
	db.Create(&models.Transaction{
		ID: uuid.New(), ChurchID: churchID, FundID: fundID,
		Date: day, Description: "Offering", Amount: 50, Type: "income",
		Source: models.SourceManual, CreatedAt: time.Now(),
	})

	batchID := uuid.New()
	db.Create(&models.ImportBatch{
		ID: batchID, ChurchID: churchID, Filename: "march.csv",
		BankFormat: models.FormatGeneric, Status: models.ImportMapping, RowCount: 3,
	})
	// two rows identical to the existing transaction, one fresh
	for i := 0; i < 2; i++ {
		db.Create(&models.ImportRow{
			ID: uuid.New(), BatchID: batchID, ChurchID: churchID,
			Date: day, Description: "Offering", Amount: 50, Status: models.RowPending,
		})
	}
	freshID := uuid.New()
	db.Create(&models.ImportRow{
		ID: freshID, BatchID: batchID, ChurchID: churchID,
		Date: day, Description: "SUNDAY OFFERING CASH", Amount: 75, Status: models.RowPending,
	})

	d := newTestDetector(db, nil, DefaultConfig())
	if err := d.AnnotateBatch(context.Background(), batchID, churchID); err != nil {
		t.Fatalf("annotate: %v", err)
	}

	var dupCount int64
	db.Model(&models.ImportRow{}).Where("batch_id = ? AND status = ?", batchID, models.RowDuplicate).Count(&dupCount)
	if dupCount != 2 {
		t.Fatalf("want 2 duplicate rows, got %d", dupCount)
	}

	var fresh models.ImportRow
	db.First(&fresh, "id = ?", freshID)
	if fresh.Status != models.RowReady {
		t.Fatalf("fresh row should be ready, got %s", fresh.Status)
	}
	if fresh.SuggestedCategoryID == nil || *fresh.SuggestedCategoryID != giving {
		t.Fatalf("fresh row should carry the keyword suggestion, got %+v", fresh.SuggestedCategoryID)
	}
	if fresh.SuggestedFundID == nil || *fresh.SuggestedFundID != fundID {
		t.Fatalf("fresh row should default to the church fund")
	}

	var batch models.ImportBatch
	db.First(&batch, "id = ?", batchID)
	if batch.Status != models.ImportCompleted || batch.DuplicateCount != 2 || batch.ProcessedCount != 3 {
		t.Fatalf("unexpected batch state: %+v", batch)
	}
}

func TestAnnotateBatchCrossTenant(t *testing.T) {
	db := openDetectorDB(t)
	churchID := uuid.New()
	db.Create(&models.Church{ID: churchID, Name: "St Mary"})
	batchID := uuid.New()
	db.Create(&models.ImportBatch{ID: batchID, ChurchID: churchID, Status: models.ImportMapping})

	d := newTestDetector(db, nil, DefaultConfig())
	if err := d.AnnotateBatch(context.Background(), batchID, uuid.New()); err != models.ErrCrossTenantReference {
		t.Fatalf("want ErrCrossTenantReference, got %v", err)
	}
}

func TestAnnotateBatchLeavesTerminalStatusesAlone(t *testing.T) {
	db := openDetectorDB(t)
	churchID := uuid.New()
	db.Create(&models.Church{ID: churchID, Name: "St Mary"})
	d := newTestDetector(db, nil, DefaultConfig())

	for _, status := range []models.ImportStatus{models.ImportFailed, models.ImportCompleted} {
		batchID := uuid.New()
		db.Create(&models.ImportBatch{ID: batchID, ChurchID: churchID, Status: status})

		if err := d.AnnotateBatch(context.Background(), batchID, churchID); !errors.Is(err, ErrBatchFinished) {
			t.Fatalf("%s batch: want ErrBatchFinished, got %v", status, err)
		}

		var batch models.ImportBatch
		db.First(&batch, "id = ?", batchID)
		if batch.Status != status {
			t.Fatalf("terminal %s batch regressed to %s", status, batch.Status)
		}
	}
}

func TestAITimeoutDegradesToNoSuggestion(t *testing.T) {
	db := openDetectorDB(t)
	churchID := uuid.New()
	db.Create(&models.Church{ID: churchID, Name: "St Mary", AIEnabled: true, AIAPIKey: "k"})
	db.Create(&models.Category{ID: uuid.New(), ChurchID: churchID, Name: "Giving", Type: "income"})

	cfg := DefaultConfig()
	cfg.AITimeout = 10 * time.Millisecond
	d := newTestDetector(db, slowProvider{}, cfg)

	church, _ := repository.NewChurchRepository(db).GetByID(churchID)
	start := time.Now()
	s := d.SuggestCategory(context.Background(), church, "MYSTERY PAYMENT", 12.34)
	if s != nil {
		t.Fatalf("timed-out AI call must yield no suggestion, got %+v", s)
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout was not honoured")
	}
}

func TestGeminiProviderReusesClients(t *testing.T) {
	p := NewGeminiProvider()

	a, err := p.client(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	b, err := p.client(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if a != b {
		t.Fatal("same key must reuse the cached client")
	}

	if _, err := p.client(context.Background(), "key-b"); err != nil {
		t.Fatalf("client: %v", err)
	}
	if n := p.clients.ItemCount(); n != 2 {
		t.Fatalf("want 2 cached clients, got %d", n)
	}
}

func TestFeedbackOutranksKeywords(t *testing.T) {
	db := openDetectorDB(t)
	churchID := uuid.New()
	keywordCat := uuid.New()
	correctedCat := uuid.New()

	db.Create(&models.Church{ID: churchID, Name: "St Mary"})
	db.Create(&models.Category{ID: keywordCat, ChurchID: churchID, Name: "Giving", Type: "income"})
	db.Create(&models.Category{ID: correctedCat, ChurchID: churchID, Name: "Hall Hire", Type: "income"})
	db.Create(&models.CategoryKeyword{ID: uuid.New(), ChurchID: churchID, CategoryID: keywordCat, Keyword: "offering", Active: true})
	db.Create(&models.AIFeedback{
		ID: uuid.New(), ChurchID: churchID,
		DescriptionPattern:  NormalizeDescription("OFFERING HALL LET"),
		Amount:              120,
		CorrectedCategoryID: correctedCat,
	})

	d := newTestDetector(db, nil, DefaultConfig())
	church, _ := repository.NewChurchRepository(db).GetByID(churchID)

	s := d.SuggestCategory(context.Background(), church, "OFFERING HALL LET", 120)
	if s == nil || s.CategoryID != correctedCat {
		t.Fatalf("feedback must outrank the keyword rule, got %+v", s)
	}
	if s.Source != "feedback" {
		t.Fatalf("want feedback source, got %s", s.Source)
	}
}
