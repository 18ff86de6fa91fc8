package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Occurrence is one rewritten reference to an external URL.
type Occurrence struct {
	// FilePath is the slash-separated path of the file that contained the
	// reference, relative to the working directory when possible.
	FilePath string `json:"filePath"`

	// Replace is the value the reference was rewritten to, without quotes.
	Replace string `json:"replace"`

	// Status is the download status of the URL once it has been attempted.
	// It is empty while the URL is still pending.
	Status Status `json:"status,omitempty"`
}

// Reference is one external reference found in a source file, flattened
// out of Provenance for persistence and reporting.
type Reference struct {
	// OriginalURL is the normalized URL, the identity of the reference.
	OriginalURL string `json:"original_url"`

	// SourceFile is the file that contained the reference.
	SourceFile string `json:"source_file"`

	// RewrittenValue is what the reference now reads.
	RewrittenValue string `json:"rewritten_value"`

	// Status is the download status of OriginalURL.
	Status Status `json:"status,omitempty"`
}

// Provenance records, for every original URL, the ordered list of source
// occurrences that were rewritten. It is append-only.
//
// Entries are keyed strictly by the normalized URL string (quotes stripped,
// protocol-relative URLs resolved to http:). Keys keep first-seen order so
// the exported mapping file is stable within a run.
type Provenance struct {
	keys    []string
	entries map[string][]Occurrence
}

// NewProvenance creates an empty Provenance.
func NewProvenance() *Provenance {
	return &Provenance{
		keys:    make([]string, 0),
		entries: make(map[string][]Occurrence),
	}
}

// Record appends an occurrence for url. An occurrence without a status
// inherits the status already stamped on url, so a URL referenced again
// after its download keeps reporting the same status everywhere.
func (p *Provenance) Record(url string, occ Occurrence) {
	occs, ok := p.entries[url]
	if !ok {
		p.keys = append(p.keys, url)
	}
	if occ.Status == "" && len(occs) > 0 {
		occ.Status = occs[0].Status
	}
	p.entries[url] = append(occs, occ)
}

// MarkStatus sets the download status on every occurrence of url.
// Unknown URLs are ignored; URLs found only at runtime have no occurrences.
func (p *Provenance) MarkStatus(url string, status Status) {
	occs, ok := p.entries[url]
	if !ok {
		return
	}
	for i := range occs {
		occs[i].Status = status
	}
}

// URLs returns the recorded URLs in first-seen order.
func (p *Provenance) URLs() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Occurrences returns a copy of the occurrences recorded for url.
func (p *Provenance) Occurrences(url string) []Occurrence {
	occs := p.entries[url]
	out := make([]Occurrence, len(occs))
	copy(out, occs)
	return out
}

// References flattens every occurrence in key order.
func (p *Provenance) References() []Reference {
	out := make([]Reference, 0, len(p.keys))
	for _, key := range p.keys {
		for _, occ := range p.entries[key] {
			out = append(out, Reference{
				OriginalURL:    key,
				SourceFile:     occ.FilePath,
				RewrittenValue: occ.Replace,
				Status:         occ.Status,
			})
		}
	}
	return out
}

// Len returns the number of distinct URLs recorded.
func (p *Provenance) Len() int {
	return len(p.keys)
}

// MarshalJSON encodes the provenance as a JSON object whose keys appear in
// first-seen order.
func (p *Provenance) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.entries[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object produced by MarshalJSON, keeping key order.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("provenance: expected object, got %v", tok)
	}

	p.keys = make([]string, 0)
	p.entries = make(map[string][]Occurrence)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("provenance: expected string key, got %v", tok)
		}
		var occs []Occurrence
		if err := dec.Decode(&occs); err != nil {
			return err
		}
		for _, occ := range occs {
			p.Record(key, occ)
		}
	}

	_, err = dec.Token()
	return err
}
