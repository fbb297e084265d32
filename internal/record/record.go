// Package record defines the synthetic journal entries that flow through the
// pipeline and the seeded generator that produces them.
package record

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// balanceTolerance absorbs cent rounding when comparing debit and credit totals.
const balanceTolerance = 0.005

// Record is one journal entry with its posting lines.
type Record struct {
	ID           uuid.UUID
	Seq          uint64
	CompanyCode  string
	PostingDate  time.Time
	DocumentType string
	Currency     string
	CreatedBy    string

	// Optional fields, cleared by Compact.
	HeaderText string
	Reference  string

	IsAnomaly    bool
	AnomalyType  string
	QualityIssue string

	Lines []Line
}

// Line is a single debit or credit posting.
type Line struct {
	Number  int
	Account string
	Debit   float64
	Credit  float64

	// Optional fields, cleared by Compact.
	CostCenter string
	Text       string
}

// TotalDebit sums the debit side.
func (r *Record) TotalDebit() float64 {
	var sum float64
	for _, l := range r.Lines {
		sum += l.Debit
	}
	return sum
}

// TotalCredit sums the credit side.
func (r *Record) TotalCredit() float64 {
	var sum float64
	for _, l := range r.Lines {
		sum += l.Credit
	}
	return sum
}

// Balanced reports whether debits equal credits to the cent.
func (r *Record) Balanced() bool {
	return math.Abs(r.TotalDebit()-r.TotalCredit()) < balanceTolerance
}

// Compact returns a copy without optional text fields.
func (r Record) Compact() Record {
	r.HeaderText = ""
	r.Reference = ""
	lines := make([]Line, len(r.Lines))
	for i, l := range r.Lines {
		l.CostCenter = ""
		l.Text = ""
		lines[i] = l
	}
	r.Lines = lines
	return r
}

// SizeHint approximates the encoded size of the record in bytes. It is used
// to ask the disk monitor for room before a write.
func (r *Record) SizeHint() uint64 {
	n := 96 + len(r.CompanyCode) + len(r.DocumentType) + len(r.Currency) +
		len(r.CreatedBy) + len(r.HeaderText) + len(r.Reference) +
		len(r.AnomalyType) + len(r.QualityIssue)
	for _, l := range r.Lines {
		n += 40 + len(l.Account) + len(l.CostCenter) + len(l.Text)
	}
	return uint64(n)
}

// SizeHint sums SizeHint over records.
func SizeHint(records []Record) uint64 {
	var total uint64
	for i := range records {
		total += records[i].SizeHint()
	}
	return total
}

// =============================================================================
// Struct conversion
// =============================================================================

// ToStruct converts the record to a protobuf Struct. Empty optional fields
// are omitted.
func (r *Record) ToStruct() (*structpb.Struct, error) {
	lines := make([]any, len(r.Lines))
	for i, l := range r.Lines {
		m := map[string]any{
			"number":  l.Number,
			"account": l.Account,
			"debit":   l.Debit,
			"credit":  l.Credit,
		}
		putOptional(m, "cost_center", l.CostCenter)
		putOptional(m, "text", l.Text)
		lines[i] = m
	}

	m := map[string]any{
		"id":              r.ID.String(),
		"seq":             float64(r.Seq),
		"company_code":    r.CompanyCode,
		"posting_date_ms": float64(r.PostingDate.UnixMilli()),
		"document_type":   r.DocumentType,
		"currency":        r.Currency,
		"created_by":      r.CreatedBy,
		"is_anomaly":      r.IsAnomaly,
		"lines":           lines,
	}
	putOptional(m, "header_text", r.HeaderText)
	putOptional(m, "reference", r.Reference)
	putOptional(m, "anomaly_type", r.AnomalyType)
	putOptional(m, "quality_issue", r.QualityIssue)

	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.Seq, err)
	}
	return s, nil
}

// FromStruct rebuilds a record produced by ToStruct.
func FromStruct(s *structpb.Struct) (Record, error) {
	f := s.GetFields()

	id, err := uuid.Parse(f["id"].GetStringValue())
	if err != nil {
		return Record{}, fmt.Errorf("parse id: %w", err)
	}

	r := Record{
		ID:           id,
		Seq:          uint64(f["seq"].GetNumberValue()),
		CompanyCode:  f["company_code"].GetStringValue(),
		PostingDate:  time.UnixMilli(int64(f["posting_date_ms"].GetNumberValue())).UTC(),
		DocumentType: f["document_type"].GetStringValue(),
		Currency:     f["currency"].GetStringValue(),
		CreatedBy:    f["created_by"].GetStringValue(),
		HeaderText:   f["header_text"].GetStringValue(),
		Reference:    f["reference"].GetStringValue(),
		IsAnomaly:    f["is_anomaly"].GetBoolValue(),
		AnomalyType:  f["anomaly_type"].GetStringValue(),
		QualityIssue: f["quality_issue"].GetStringValue(),
	}

	for _, v := range f["lines"].GetListValue().GetValues() {
		lf := v.GetStructValue().GetFields()
		r.Lines = append(r.Lines, Line{
			Number:     int(lf["number"].GetNumberValue()),
			Account:    lf["account"].GetStringValue(),
			Debit:      lf["debit"].GetNumberValue(),
			Credit:     lf["credit"].GetNumberValue(),
			CostCenter: lf["cost_center"].GetStringValue(),
			Text:       lf["text"].GetStringValue(),
		})
	}

	return r, nil
}

func putOptional(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
