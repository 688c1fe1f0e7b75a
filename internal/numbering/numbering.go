package numbering

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"example.com/backoffice/services/salesflow/internal/models"
)

// Default stage prefixes. Overridable through configuration.
var DefaultPrefixes = map[models.Stage]string{
	models.StageQuotation:       "QUO",
	models.StageSalesOrder:      "SO",
	models.StageDeliveryChallan: "DC",
	models.StageInvoice:         "INV",
	models.StagePayment:         "PAY",
}

// Generator produces auto references of the shape
// {PREFIX}-{year}-{4-digit-random}. Uniqueness is probabilistic within
// the 4-digit space; that is the upstream contract and is kept rather
// than strengthened.
// One Generator is shared by every workflow session; the mutex
// serializes draws because rand.Rand is not safe for concurrent use.
type Generator struct {
	prefixes map[models.Stage]string

	mu   sync.Mutex
	rand *rand.Rand

	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithPrefixes overrides the stage prefix table.
func WithPrefixes(prefixes map[models.Stage]string) Option {
	return func(g *Generator) {
		for stage, p := range prefixes {
			if p != "" {
				g.prefixes[stage] = p
			}
		}
	}
}

// WithSource injects a deterministic random source for tests.
func WithSource(src rand.Source) Option {
	return func(g *Generator) {
		g.rand = rand.New(src)
	}
}

// WithClock injects the time source used for the year token.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a reference number generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		prefixes: make(map[models.Stage]string, len(DefaultPrefixes)),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for stage, p := range DefaultPrefixes {
		g.prefixes[stage] = p
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a fresh reference for the stage. Pure aside from
// the random draw; it never fails.
func (g *Generator) Generate(stage models.Stage) string {
	prefix, ok := g.prefixes[stage]
	if !ok {
		prefix = "DOC"
	}
	g.mu.Lock()
	n := g.rand.Intn(10000)
	g.mu.Unlock()
	return fmt.Sprintf("%s-%d-%04d", prefix, g.now().Year(), n)
}

// Seed fills the stage's auto reference exactly once. A non-empty auto
// reference is never overwritten. When the step already carries a
// manual reference at first request, that value seeds the auto field
// instead of a generated one; later manual edits do not touch an
// already-set auto field.
func (g *Generator) Seed(agg *models.DocumentAggregate, stage models.Stage) {
	auto := agg.AutoReference(stage)
	if auto == nil || *auto != "" {
		return
	}
	if manual := agg.ManualReference(stage); manual != "" {
		*auto = manual
		return
	}
	*auto = g.Generate(stage)
}

// SeedAll fills every stage's auto reference that is still empty.
// Called when a workflow session opens on a blank document.
func (g *Generator) SeedAll(agg *models.DocumentAggregate) {
	for _, stage := range models.StageOrder {
		g.Seed(agg, stage)
	}
}
