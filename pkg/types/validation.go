package types

// InvalidField describes one failed validation rule on a record. Records
// report them in declaration order so callers can rely on the first entry
// being stable.
type InvalidField struct {
	Field   string
	Problem string
}
