package model

// TextAttribute is the synthetic attribute name carrying an element's text content.
const TextAttribute = "text"

// ElementKind classifies a committed element. It is computed once at commit time.
type ElementKind string

const (
	ElementKindPlain ElementKind = "plain"
	ElementKindImage ElementKind = "image"
	ElementKindVideo ElementKind = "video"
	ElementKindAudio ElementKind = "audio"
)

// SelectionRecord is one confirmed element.
type SelectionRecord struct {
	Selector   string            `json:"selector"`
	Attributes []string          `json:"attributes"`
	Values     map[string]string `json:"values,omitempty"`
	Kind       ElementKind       `json:"kind,omitempty"`
	Remote     bool              `json:"remote,omitempty"`
}

// SelectionList is an ordered list of records with unique selectors.
// It is not safe for concurrent use; the owner serializes access.
type SelectionList struct {
	records []SelectionRecord
	index   map[string]int
}

// NewSelectionList creates an empty SelectionList.
func NewSelectionList() *SelectionList {
	return &SelectionList{index: make(map[string]int)}
}

// Add appends rec unless a record with the same selector already exists.
// It returns false for duplicates and empty selectors.
func (l *SelectionList) Add(rec SelectionRecord) bool {
	if rec.Selector == "" {
		return false
	}
	if _, ok := l.index[rec.Selector]; ok {
		return false
	}
	l.index[rec.Selector] = len(l.records)
	l.records = append(l.records, rec)
	return true
}

// Contains reports whether selector is already in the list.
func (l *SelectionList) Contains(selector string) bool {
	_, ok := l.index[selector]
	return ok
}

// Len returns the number of records.
func (l *SelectionList) Len() int {
	return len(l.records)
}

// Records returns a copy of the records in insertion order.
func (l *SelectionList) Records() []SelectionRecord {
	out := make([]SelectionRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Selectors returns the selectors in insertion order.
func (l *SelectionList) Selectors() []string {
	out := make([]string, len(l.records))
	for i, r := range l.records {
		out[i] = r.Selector
	}
	return out
}

// Attributes returns the union of all record attributes, first-seen order.
func (l *SelectionList) Attributes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range l.records {
		for _, a := range r.Attributes {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// Clear removes all records.
func (l *SelectionList) Clear() {
	l.records = nil
	l.index = make(map[string]int)
}
