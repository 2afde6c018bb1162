package state

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// UploadRecord describes one identifier archived to permanent storage.
type UploadRecord struct {
	ImageTxID  string    `json:"imageTxId"`
	ImageURL   string    `json:"imageUrl"`
	ImageSize  int       `json:"imageSize"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type manifestDoc struct {
	// Keys are decimal identifiers; the document predates the Go port
	// and JSON objects only key on strings.
	Uploads       map[string]UploadRecord `json:"uploads"`
	TotalUploaded int                     `json:"totalUploaded"`
	StartedAt     time.Time               `json:"startedAt,omitzero"`
	LastUpdated   time.Time               `json:"lastUpdated,omitzero"`
}

// Manifest is the file-backed archival checkpoint. An identifier present in
// the manifest is never re-uploaded; it is the sole resume point for the
// batch uploader.
type Manifest struct {
	path string

	mu  sync.Mutex
	doc manifestDoc
}

// OpenManifest loads the manifest at path, or starts empty.
func OpenManifest(path string) (*Manifest, error) {
	m := &Manifest{path: path}
	if err := loadJSON(path, &m.doc); err != nil {
		return nil, err
	}
	if m.doc.Uploads == nil {
		m.doc.Uploads = make(map[string]UploadRecord)
		m.doc.StartedAt = time.Now().UTC()
	}
	m.doc.TotalUploaded = len(m.doc.Uploads)
	return m, nil
}

// Has reports whether an identifier is already archived.
func (m *Manifest) Has(id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.doc.Uploads[strconv.Itoa(id)]
	return ok
}

// Get returns the upload record for an identifier, if present.
func (m *Manifest) Get(id int) (UploadRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.doc.Uploads[strconv.Itoa(id)]
	return rec, ok
}

// ImageURL returns the archived image URL for an identifier, if present.
func (m *Manifest) ImageURL(id int) (string, bool) {
	rec, ok := m.Get(id)
	return rec.ImageURL, ok
}

// Merge records a group of successful uploads and flushes once. Re-merging
// an identifier already present is a no-op for that entry, so replaying a
// group after a crash is safe.
func (m *Manifest) Merge(records map[int]UploadRecord) error {
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range records {
		key := strconv.Itoa(id)
		if _, ok := m.doc.Uploads[key]; ok {
			continue
		}
		m.doc.Uploads[key] = rec
	}
	m.doc.TotalUploaded = len(m.doc.Uploads)
	m.doc.LastUpdated = time.Now().UTC()

	if err := saveJSON(m.path, &m.doc); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	return nil
}

// Count returns the number of archived identifiers.
func (m *Manifest) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.TotalUploaded
}
