package numbering

import (
	"math/rand"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/backoffice/services/salesflow/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
}

func TestGenerateShape(t *testing.T) {
	g := NewGenerator(WithSource(rand.NewSource(1)), WithClock(fixedClock))

	ref := g.Generate(models.StageQuotation)
	require.Regexp(t, regexp.MustCompile(`^QUO-2026-\d{4}$`), ref)

	ref = g.Generate(models.StageInvoice)
	require.Regexp(t, regexp.MustCompile(`^INV-2026-\d{4}$`), ref)
}

func TestSeedIsIdempotent(t *testing.T) {
	g := NewGenerator(WithSource(rand.NewSource(1)), WithClock(fixedClock))
	agg := models.NewDocumentAggregate("co-1")

	g.Seed(agg, models.StageQuotation)
	first := agg.Steps.Quotation.QuotationNo
	require.NotEmpty(t, first)

	// Re-render or unrelated edits must not regenerate.
	g.Seed(agg, models.StageQuotation)
	g.Seed(agg, models.StageQuotation)
	require.Equal(t, first, agg.Steps.Quotation.QuotationNo)
}

func TestManualReferenceSeedsInitialValueOnly(t *testing.T) {
	g := NewGenerator(WithSource(rand.NewSource(1)), WithClock(fixedClock))
	agg := models.NewDocumentAggregate("co-1")
	agg.Steps.Invoice.ManualInvoiceNo = "INV/2026/017"

	g.Seed(agg, models.StageInvoice)
	require.Equal(t, "INV/2026/017", agg.Steps.Invoice.InvoiceNo)

	// A later manual edit must not retroactively overwrite the auto field.
	agg.Steps.Invoice.ManualInvoiceNo = "INV/2026/099"
	g.Seed(agg, models.StageInvoice)
	require.Equal(t, "INV/2026/017", agg.Steps.Invoice.InvoiceNo)
}

func TestSeedAllFillsEveryStage(t *testing.T) {
	g := NewGenerator(WithSource(rand.NewSource(7)), WithClock(fixedClock))
	agg := models.NewDocumentAggregate("co-1")

	g.SeedAll(agg)

	for _, stage := range models.StageOrder {
		require.NotEmpty(t, *agg.AutoReference(stage), "stage %s", stage)
	}
}

func TestGenerateFromConcurrentSessions(t *testing.T) {
	g := NewGenerator(WithSource(rand.NewSource(1)), WithClock(fixedClock))
	shape := regexp.MustCompile(`^QUO-2026-\d{4}$`)

	const goroutines = 8
	const perGoroutine = 200

	refs := make([][]string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := make([]string, 0, perGoroutine)
			for j := 0; j < perGoroutine; j++ {
				out = append(out, g.Generate(models.StageQuotation))
			}
			refs[i] = out
		}(i)
	}
	wg.Wait()

	for _, out := range refs {
		require.Len(t, out, perGoroutine)
		for _, ref := range out {
			require.Regexp(t, shape, ref)
		}
	}
}

func TestPrefixOverride(t *testing.T) {
	g := NewGenerator(
		WithSource(rand.NewSource(1)),
		WithClock(fixedClock),
		WithPrefixes(map[models.Stage]string{models.StageQuotation: "EST"}),
	)

	require.Regexp(t, regexp.MustCompile(`^EST-2026-\d{4}$`), g.Generate(models.StageQuotation))
	// Unlisted stages keep their defaults.
	require.Regexp(t, regexp.MustCompile(`^PAY-2026-\d{4}$`), g.Generate(models.StagePayment))
}
