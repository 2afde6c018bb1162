package state

import (
	"fmt"
	"sync"
	"time"
)

// InscriptionRefs aggregates the on-chain addresses produced by one
// provisioning run.
type InscriptionRefs struct {
	JSONAccount  string `json:"jsonAccount"`
	ImageAccount string `json:"imageAccount"`
	MemoSig      string `json:"memoSignature"`
	JSONSize     int    `json:"jsonSize"`
	ImageSize    int    `json:"imageSize"`
	ImageHash    string `json:"imageHash"`
}

// MintRecord is one entry in the ordered mint sequence.
type MintRecord struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Owner       string          `json:"owner"`
	ImageURL    string          `json:"imageUrl"`
	PaymentSig  string          `json:"txSignature"`
	MintAddress string          `json:"mintAddress"`
	InscribedAt time.Time       `json:"inscribedAt"`
	OnChain     bool            `json:"onChain"`
	Inscription InscriptionRefs `json:"inscription"`
}

type mintStateDoc struct {
	MintedCount int          `json:"mintedCount"`
	MintedIDs   []int        `json:"mintedIds"`
	Mints       []MintRecord `json:"mints"`
}

// MintState is the file-backed mint ledger. All mutation goes through the
// internal mutex; every mutating call flushes the document to disk.
type MintState struct {
	path string

	mu  sync.Mutex
	doc mintStateDoc
}

// OpenMintState loads the mint-state document at path, or starts empty.
// A mintedIds field absent from an older document is rebuilt from mints.
// mintedIds is authoritative for the count: it is what allocation and the
// sold-out check consult, and a hand-edited document may carry assigned
// identifiers without full mint records.
func OpenMintState(path string) (*MintState, error) {
	s := &MintState{path: path}
	if err := loadJSON(path, &s.doc); err != nil {
		return nil, err
	}
	if s.doc.MintedIDs == nil {
		for _, m := range s.doc.Mints {
			s.doc.MintedIDs = append(s.doc.MintedIDs, m.ID)
		}
	}
	s.doc.MintedCount = len(s.doc.MintedIDs)
	return s, nil
}

// Append records a successful mint and flushes the document. It maintains
// mintedCount == len(mints) == len(mintedIds).
func (s *MintState) Append(rec MintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.doc.MintedIDs {
		if id == rec.ID {
			return fmt.Errorf("punk #%d already minted", rec.ID)
		}
	}

	s.doc.Mints = append(s.doc.Mints, rec)
	s.doc.MintedIDs = append(s.doc.MintedIDs, rec.ID)
	s.doc.MintedCount = len(s.doc.MintedIDs)

	if err := saveJSON(s.path, &s.doc); err != nil {
		// Roll back the in-memory append so memory and disk agree.
		s.doc.Mints = s.doc.Mints[:len(s.doc.Mints)-1]
		s.doc.MintedIDs = s.doc.MintedIDs[:len(s.doc.MintedIDs)-1]
		s.doc.MintedCount = len(s.doc.MintedIDs)
		return fmt.Errorf("persist mint state: %w", err)
	}
	return nil
}

// MintedIDs returns the set of assigned identifiers.
func (s *MintState) MintedIDs() map[int]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[int]struct{}, len(s.doc.MintedIDs))
	for _, id := range s.doc.MintedIDs {
		ids[id] = struct{}{}
	}
	return ids
}

// Count returns the number of minted assets.
func (s *MintState) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.MintedCount
}

// Mints returns a copy of the ordered mint sequence.
func (s *MintState) Mints() []MintRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MintRecord, len(s.doc.Mints))
	copy(out, s.doc.Mints)
	return out
}
