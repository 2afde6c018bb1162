package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/execute007/x1punks/internal/punks"
)

// ErrAlreadyInscribed is returned when an inscription record already exists
// for an identifier. The first write is authoritative.
var ErrAlreadyInscribed = errors.New("already inscribed")

// Inscription is the immutable provenance record for one punk.
type Inscription struct {
	PunkID      int             `json:"punkId"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Owner       string          `json:"owner"`
	InscribedAt time.Time       `json:"inscribedAt"`
	OnChain     OnChainRefs     `json:"onChain"`
	Metadata    *punks.Metadata `json:"metadata"`
}

// OnChainRefs holds the ledger addresses for one inscription.
type OnChainRefs struct {
	MintAddress  string `json:"mintAddress"`
	JSONAccount  string `json:"jsonAccount"`
	ImageAccount string `json:"imageAccount"`
	MemoSig      string `json:"memoSignature"`
	JSONSize     int    `json:"jsonSize"`
	ImageSize    int    `json:"imageSize"`
	ImageHash    string `json:"imageHash"`
}

type inscriptionsDoc struct {
	Program        string        `json:"program"`
	Inscriptions   []Inscription `json:"inscriptions"`
	TotalInscribed int           `json:"totalInscribed"`
	LastUpdated    time.Time     `json:"lastUpdated,omitzero"`
}

// InscriptionIndex is the file-backed inscription record set: at most one
// immutable record per identifier.
type InscriptionIndex struct {
	path string

	mu   sync.Mutex
	doc  inscriptionsDoc
	byID map[int]int // punk id -> index into doc.Inscriptions
}

// OpenInscriptionIndex loads the index at path, or starts empty.
func OpenInscriptionIndex(path, program string) (*InscriptionIndex, error) {
	ix := &InscriptionIndex{path: path, byID: make(map[int]int)}
	if err := loadJSON(path, &ix.doc); err != nil {
		return nil, err
	}
	if ix.doc.Program == "" {
		ix.doc.Program = program
	}
	for i, ins := range ix.doc.Inscriptions {
		ix.byID[ins.PunkID] = i
	}
	ix.doc.TotalInscribed = len(ix.doc.Inscriptions)
	return ix, nil
}

// Add records an inscription and flushes the document. A second record for
// the same identifier is rejected with ErrAlreadyInscribed.
func (ix *InscriptionIndex) Add(ins Inscription) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.byID[ins.PunkID]; ok {
		return fmt.Errorf("punk #%d: %w", ins.PunkID, ErrAlreadyInscribed)
	}

	ix.doc.Inscriptions = append(ix.doc.Inscriptions, ins)
	ix.doc.TotalInscribed = len(ix.doc.Inscriptions)
	ix.doc.LastUpdated = time.Now().UTC()

	if err := saveJSON(ix.path, &ix.doc); err != nil {
		ix.doc.Inscriptions = ix.doc.Inscriptions[:len(ix.doc.Inscriptions)-1]
		ix.doc.TotalInscribed = len(ix.doc.Inscriptions)
		return fmt.Errorf("persist inscription index: %w", err)
	}

	ix.byID[ins.PunkID] = len(ix.doc.Inscriptions) - 1
	return nil
}

// Get returns the inscription for an identifier, if present.
func (ix *InscriptionIndex) Get(id int) (Inscription, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	i, ok := ix.byID[id]
	if !ok {
		return Inscription{}, false
	}
	return ix.doc.Inscriptions[i], true
}

// Count returns the number of inscriptions.
func (ix *InscriptionIndex) Count() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.doc.TotalInscribed
}

// LastUpdated returns the timestamp of the most recent addition.
func (ix *InscriptionIndex) LastUpdated() time.Time {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.doc.LastUpdated
}

// Inscriptions returns a copy of all inscription records.
func (ix *InscriptionIndex) Inscriptions() []Inscription {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make([]Inscription, len(ix.doc.Inscriptions))
	copy(out, ix.doc.Inscriptions)
	return out
}
