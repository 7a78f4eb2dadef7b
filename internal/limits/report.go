package limits

// LimitCount is the number of report entries for one limit across all files.
type LimitCount struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// ReportReader is the read-only view of a Report handed to presenters.
type ReportReader interface {
	Files() []string
	Entries(file string) []Entry
	Aggregate() []LimitCount
	Len() int
}

// Report maps log files to their qualifying entries, keeping files in the
// order they were added. Files without entries are never recorded.
type Report struct {
	files   []string
	entries map[string][]Entry
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{entries: make(map[string][]Entry)}
}

// Add records the entries of file. An empty list is ignored; adding a file
// twice replaces its entries and keeps its position.
func (r *Report) Add(file string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	if _, exists := r.entries[file]; !exists {
		r.files = append(r.files, file)
	}
	r.entries[file] = entries
}

// Reset removes all files.
func (r *Report) Reset() {
	r.files = nil
	r.entries = make(map[string][]Entry)
}

// Files returns the recorded files in insertion order.
func (r *Report) Files() []string {
	out := make([]string, len(r.files))
	copy(out, r.files)
	return out
}

// Entries returns a copy of the entries recorded for file.
func (r *Report) Entries(file string) []Entry {
	src := r.entries[file]
	if src == nil {
		return nil
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Len returns the number of files in the report.
func (r *Report) Len() int {
	return len(r.files)
}

// Aggregate counts entries per limit description across all files, in the
// order each limit first appears.
func (r *Report) Aggregate() []LimitCount {
	var counts []LimitCount
	index := make(map[string]int)
	for _, file := range r.files {
		for _, e := range r.entries[file] {
			i, ok := index[e.Description]
			if !ok {
				i = len(counts)
				index[e.Description] = i
				counts = append(counts, LimitCount{Description: e.Description})
			}
			counts[i].Count++
		}
	}
	return counts
}
