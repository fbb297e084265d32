package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

var (
	companyCodes  = []string{"1000", "2000", "3000", "4000"}
	documentTypes = []string{"SA", "KR", "DR", "KZ", "DZ", "AA", "PR"}
	currencies    = []string{"USD", "EUR", "GBP"}
	users         = []string{"jsmith", "mgarcia", "lchen", "akumar", "batch01"}
	accounts      = []string{"100000", "110000", "140000", "200000", "210000", "400000", "500000", "600000", "610000"}
	costCenters   = []string{"CC100", "CC200", "CC300", "CC400"}
	anomalyTypes  = []string{"round_amount", "weekend_posting", "unbalanced", "duplicate_reference"}
)

// qualityIssueRate is the fraction of records given a data quality defect
// when quality issues are enabled.
const qualityIssueRate = 0.01

// GeneratorOptions shapes the records a Generator produces.
type GeneratorOptions struct {
	// LinesPerEntry is the average number of lines. Entries have at least two.
	LinesPerEntry int

	// StartDate is the first posting date. Dates advance over one year.
	StartDate time.Time
}

// Shape controls per-record content and follows the current degradation actions.
type Shape struct {
	// AnomalyRate is the probability that a record is flagged as an anomaly.
	AnomalyRate float64

	// QualityIssues enables data quality defects.
	QualityIssues bool

	// Compact omits optional fields.
	Compact bool
}

// Generator produces deterministic journal entries from a seed.
// A Generator is not safe for concurrent use; give each producer its own.
type Generator struct {
	src  *rand.ChaCha8
	rng  *rand.Rand
	opts GeneratorOptions
}

// NewGenerator creates a generator. Equal seeds produce equal sequences.
func NewGenerator(seed uint64, opts GeneratorOptions) *Generator {
	if opts.LinesPerEntry < 2 {
		opts.LinesPerEntry = 2
	}
	if opts.StartDate.IsZero() {
		opts.StartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	src := rand.NewChaCha8(key)

	return &Generator{
		src:  src,
		rng:  rand.New(src),
		opts: opts,
	}
}

// Next returns the record with sequence number seq.
func (g *Generator) Next(seq uint64, shape Shape) Record {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		// ChaCha8 reads never fail.
		panic(fmt.Sprintf("record: generate id: %v", err))
	}

	r := Record{
		ID:           id,
		Seq:          seq,
		CompanyCode:  pick(g.rng, companyCodes),
		PostingDate:  g.opts.StartDate.AddDate(0, 0, g.rng.IntN(365)),
		DocumentType: pick(g.rng, documentTypes),
		Currency:     pick(g.rng, currencies),
		CreatedBy:    pick(g.rng, users),
		HeaderText:   fmt.Sprintf("Posting %d", seq),
		Reference:    fmt.Sprintf("REF-%08d", g.rng.IntN(100000000)),
	}
	r.Lines = g.lines()

	if shape.AnomalyRate > 0 && g.rng.Float64() < shape.AnomalyRate {
		g.injectAnomaly(&r)
	}
	if shape.QualityIssues && g.rng.Float64() < qualityIssueRate {
		g.injectQualityIssue(&r)
	}
	if shape.Compact {
		r = r.Compact()
	}
	return r
}

// lines produces n-1 debit lines balanced by one credit line.
func (g *Generator) lines() []Line {
	n := 2
	if spread := 2 * (g.opts.LinesPerEntry - 2); spread > 0 {
		n += g.rng.IntN(spread + 1)
	}

	lines := make([]Line, n)
	var total float64
	for i := 0; i < n-1; i++ {
		amount := cents(10 + g.rng.ExpFloat64()*1000)
		total += amount
		lines[i] = Line{
			Number:     i + 1,
			Account:    pick(g.rng, accounts),
			Debit:      amount,
			CostCenter: pick(g.rng, costCenters),
			Text:       fmt.Sprintf("Line item %d", i+1),
		}
	}
	lines[n-1] = Line{
		Number:     n,
		Account:    pick(g.rng, accounts),
		Credit:     cents(total),
		CostCenter: pick(g.rng, costCenters),
		Text:       "Offset",
	}
	return lines
}

func (g *Generator) injectAnomaly(r *Record) {
	kind := pick(g.rng, anomalyTypes)
	r.IsAnomaly = true
	r.AnomalyType = kind

	last := len(r.Lines) - 1
	switch kind {
	case "round_amount":
		var total float64
		for i := 0; i < last; i++ {
			r.Lines[i].Debit = math.Round(r.Lines[i].Debit/1000)*1000 + 1000
			total += r.Lines[i].Debit
		}
		r.Lines[last].Credit = total
	case "weekend_posting":
		for r.PostingDate.Weekday() != time.Saturday {
			r.PostingDate = r.PostingDate.AddDate(0, 0, 1)
		}
	case "unbalanced":
		r.Lines[last].Credit = cents(r.Lines[last].Credit + 0.01 + g.rng.Float64()*100)
	case "duplicate_reference":
		r.Reference = "REF-00000000"
	}
}

func (g *Generator) injectQualityIssue(r *Record) {
	i := g.rng.IntN(len(r.Lines))
	r.Lines[i].Account = ""
	r.QualityIssue = "missing_account"
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
