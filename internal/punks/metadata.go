// Package punks builds the descriptive metadata for each collection item
// from the trait table.
package punks

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/execute007/x1punks/internal/config"
)

// Traits describes one punk: its base type and accessory list.
type Traits struct {
	Type        string
	Accessories []string
}

// TraitTable is the process-scoped trait cache, loaded once from the CSV
// and reloadable on demand.
type TraitTable struct {
	path string

	mu   sync.RWMutex
	byID map[int]Traits
}

// LoadTraits reads the trait CSV at path. Row N of the body (the header row
// is skipped) describes punk N: `type,accessory1,accessory2,...`. A missing
// file yields an empty table, matching the deployment where traits ship
// separately from the binary.
func LoadTraits(path string) (*TraitTable, error) {
	t := &TraitTable{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the trait CSV, replacing the cached table.
func (t *TraitTable) Reload() error {
	byID := make(map[int]Traits)

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.mu.Lock()
			t.byID = byID
			t.mu.Unlock()
			return nil
		}
		return fmt.Errorf("open traits %s: %w", t.path, err)
	}
	defer f.Close()

	// Punk N lives on physical body row N, so blank rows must keep their
	// position rather than shift every later id.
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			continue // header
		}
		row := strings.Split(sc.Text(), ",")
		tr := Traits{Type: "Unknown"}
		if strings.TrimSpace(row[0]) != "" {
			tr.Type = strings.TrimSpace(row[0])
		}
		for _, acc := range row[1:] {
			if acc = strings.TrimSpace(acc); acc != "" {
				tr.Accessories = append(tr.Accessories, acc)
			}
		}
		byID[line-2] = tr
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read traits %s: %w", t.path, err)
	}

	t.mu.Lock()
	t.byID = byID
	t.mu.Unlock()
	return nil
}

// Get returns the traits for an identifier, defaulting to an accessory-less
// "Unknown" punk when the table has no row for it.
func (t *TraitTable) Get(id int) Traits {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tr, ok := t.byID[id]
	if !ok {
		return Traits{Type: "Unknown"}
	}
	return tr
}

// Len returns the number of rows in the table.
func (t *TraitTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// Rarity maps a punk type to its rarity tier.
func Rarity(punkType string) string {
	switch punkType {
	case "Alien":
		return "Legendary"
	case "Ape":
		return "Epic"
	case "Zombie":
		return "Rare"
	default:
		return "Common"
	}
}

// Name returns the display name for an identifier.
func Name(id int) string {
	return fmt.Sprintf("%s #%d", config.CollectionName, id)
}

// ImagePath returns the conventional payload location for an identifier.
func ImagePath(generatedDir string, id int) string {
	return filepath.Join(generatedDir, fmt.Sprintf("punk_%d.png", id))
}

// Attribute is one trait_type/value pair in the metadata document.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// File references a payload inside the metadata properties block.
type File struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// Properties is the metadata properties block.
type Properties struct {
	Category string `json:"category"`
	Files    []File `json:"files"`
}

// Collection identifies the collection a punk belongs to.
type Collection struct {
	Name   string `json:"name"`
	Family string `json:"family"`
}

// InscriptionInfo records the inscription protocol parameters.
type InscriptionInfo struct {
	Protocol  string `json:"protocol"`
	Version   string `json:"version"`
	Chain     string `json:"chain"`
	ProgramID string `json:"programId"`
}

// Metadata is the full descriptive document persisted on-chain for a punk.
type Metadata struct {
	Name        string           `json:"name"`
	Symbol      string           `json:"symbol"`
	Description string           `json:"description"`
	Collection  Collection       `json:"collection"`
	Attributes  []Attribute      `json:"attributes"`
	Properties  Properties       `json:"properties"`
	Inscription *InscriptionInfo `json:"inscription,omitempty"`
}

// BuildMetadata assembles the metadata document for an identifier. The
// result is deterministic for a given trait table.
func BuildMetadata(table *TraitTable, id int, programID string) *Metadata {
	tr := table.Get(id)

	attrs := []Attribute{
		{TraitType: "Type", Value: tr.Type},
		{TraitType: "Rarity", Value: Rarity(tr.Type)},
	}
	for i, acc := range tr.Accessories {
		attrs = append(attrs, Attribute{
			TraitType: fmt.Sprintf("Accessory %d", i+1),
			Value:     acc,
		})
	}

	return &Metadata{
		Name:   Name(id),
		Symbol: config.CollectionSymbol,
		Description: fmt.Sprintf(
			"X1 Punk #%d - Unique pixel punk fully inscribed on the X1 blockchain. Image and metadata stored 100%% on-chain.",
			id),
		Collection: Collection{Name: config.CollectionName, Family: config.ProgramName},
		Attributes: attrs,
		Properties: Properties{
			Category: "image",
			Files:    []File{{Type: "image/png", URI: "inscription"}},
		},
		Inscription: &InscriptionInfo{
			Protocol:  "metaplex-inscription",
			Version:   "1.0",
			Chain:     "x1",
			ProgramID: programID,
		},
	}
}
