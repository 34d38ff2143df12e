// Package rowmap turns raw spreadsheet rows into keyed records using
// per-connector column synonym tables. A Mapper is built once from the
// header row and then applied to every data row of the sheet.
package rowmap

import (
	"strings"

	"github.com/go-faster/errors"
)

// Discard is the mapping target for columns that are recognized but
// intentionally ignored. They never appear in mapped rows or in Rest.
const Discard = "__discard__"

// ColumnMap binds one header synonym to a canonical field name. Multi
// fields collect every matching column into a slice instead of taking
// the first match only.
type ColumnMap struct {
	Header string
	Field  string
	Multi  bool
}

// Stack layers overlay on top of base: overlay entries win for headers
// both define, base entries fill in the rest. Order within each layer is
// preserved, overlay first.
func Stack(base, overlay []ColumnMap) []ColumnMap {
	seen := make(map[string]struct{}, len(overlay))
	out := make([]ColumnMap, 0, len(base)+len(overlay))
	for _, cm := range overlay {
		seen[normalize(cm.Header)] = struct{}{}
		out = append(out, cm)
	}
	for _, cm := range base {
		if _, ok := seen[normalize(cm.Header)]; ok {
			continue
		}
		out = append(out, cm)
	}
	return out
}

// Row is one mapped data row. Values holds single-valued fields, Multi
// holds multi-valued ones, and Rest keeps unmapped cells in column order
// keyed by their original header.
type Row struct {
	Values map[string]string
	Multi  map[string][]string
	Rest   []Cell
}

// Cell is one unmapped spreadsheet cell.
type Cell struct {
	Header string
	Value  string
}

// Get returns the trimmed value of a single-valued field, or "" when the
// field was not present in the sheet.
func (r Row) Get(field string) string {
	return r.Values[field]
}

// Has reports whether the field has a non-empty value.
func (r Row) Has(field string) bool {
	return r.Values[field] != ""
}

// RestValue returns the value of an unmapped cell by its original
// header, matched the same way mapped headers are. Empty when no such
// cell survived mapping.
func (r Row) RestValue(header string) string {
	key := normalize(header)
	for _, c := range r.Rest {
		if normalize(c.Header) == key {
			return c.Value
		}
	}
	return ""
}

// Mapper maps data rows according to a header row matched against a
// column map.
type Mapper struct {
	columns []columnBinding
}

type columnBinding struct {
	header string
	field  string
	multi  bool
}

// NewMapper builds a Mapper from the sheet's header row. Headers are
// matched case-insensitively with surrounding and internal runs of
// whitespace collapsed. For single-valued fields the first matching
// column wins; later columns with the same meaning fall through to Rest.
func NewMapper(headers []string, columnMaps []ColumnMap) *Mapper {
	byHeader := make(map[string][]ColumnMap, len(columnMaps))
	for _, cm := range columnMaps {
		key := normalize(cm.Header)
		byHeader[key] = append(byHeader[key], cm)
	}

	taken := make(map[string]bool)
	m := &Mapper{columns: make([]columnBinding, len(headers))}
	for i, h := range headers {
		binding := columnBinding{header: strings.TrimSpace(h)}
		for _, cm := range byHeader[normalize(h)] {
			if !cm.Multi && taken[cm.Field] {
				continue
			}
			binding.field = cm.Field
			binding.multi = cm.Multi
			if !cm.Multi {
				taken[cm.Field] = true
			}
			break
		}
		m.columns[i] = binding
	}
	return m
}

// Map applies the header mapping to one data row. Rows shorter than the
// header are padded with empty cells; extra cells go to Rest under a
// blank header.
func (m *Mapper) Map(cells []string) Row {
	row := Row{
		Values: map[string]string{},
		Multi:  map[string][]string{},
	}
	for i, binding := range m.columns {
		var value string
		if i < len(cells) {
			value = strings.TrimSpace(cells[i])
		}
		switch {
		case binding.field == Discard:
		case binding.field == "":
			if value != "" {
				row.Rest = append(row.Rest, Cell{Header: binding.header, Value: value})
			}
		case binding.multi:
			if value != "" {
				row.Multi[binding.field] = append(row.Multi[binding.field], value)
			}
		default:
			row.Values[binding.field] = value
		}
	}
	for i := len(m.columns); i < len(cells); i++ {
		value := strings.TrimSpace(cells[i])
		if value != "" {
			row.Rest = append(row.Rest, Cell{Value: value})
		}
	}
	return row
}

// Fields lists every canonical field the header row actually bound, in
// column order.
func (m *Mapper) Fields() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range m.columns {
		if b.field == "" || b.field == Discard || seen[b.field] {
			continue
		}
		seen[b.field] = true
		out = append(out, b.field)
	}
	return out
}

// RequireFields verifies that every listed canonical field was bound by
// the header row, returning one error naming all the missing ones.
func (m *Mapper) RequireFields(fields ...string) error {
	bound := make(map[string]bool)
	for _, b := range m.columns {
		if b.field != "" && b.field != Discard {
			bound[b.field] = true
		}
	}
	var missing []string
	for _, f := range fields {
		if !bound[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("required columns missing from sheet: %s", strings.Join(missing, ", "))
	}
	return nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
