package punks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `type,trait1,trait2,trait3
Male,Earring,Mohawk,
Zombie,Cigarette,,
Alien,Cap Forward,Pipe,Small Shades
Female,,,
`

func writeTraits(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "punks.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTraits_ParsesRows(t *testing.T) {
	table, err := LoadTraits(writeTraits(t, testCSV))
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())

	tr := table.Get(0)
	assert.Equal(t, "Male", tr.Type)
	assert.Equal(t, []string{"Earring", "Mohawk"}, tr.Accessories)

	tr = table.Get(3)
	assert.Equal(t, "Female", tr.Type)
	assert.Empty(t, tr.Accessories)
}

func TestLoadTraits_BlankRowKeepsPositions(t *testing.T) {
	csv := "type,trait1\nMale,Earring\n\nAlien,Pipe\n"
	table, err := LoadTraits(writeTraits(t, csv))
	require.NoError(t, err)

	assert.Equal(t, "Male", table.Get(0).Type)
	assert.Equal(t, "Unknown", table.Get(1).Type)
	assert.Equal(t, "Alien", table.Get(2).Type)
	assert.Equal(t, []string{"Pipe"}, table.Get(2).Accessories)
}

func TestLoadTraits_MissingFileIsEmpty(t *testing.T) {
	table, err := LoadTraits(filepath.Join(t.TempDir(), "missing.csv"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, "Unknown", table.Get(7).Type)
}

func TestTraitTable_Reload(t *testing.T) {
	path := writeTraits(t, testCSV)
	table, err := LoadTraits(path)
	require.NoError(t, err)
	require.Equal(t, 4, table.Len())

	require.NoError(t, os.WriteFile(path, []byte("type,trait1\nApe,Knitted Cap\n"), 0644))
	require.NoError(t, table.Reload())

	assert.Equal(t, 1, table.Len())
	assert.Equal(t, "Ape", table.Get(0).Type)
}

func TestTraitTable_UnknownID(t *testing.T) {
	table, err := LoadTraits(writeTraits(t, testCSV))
	require.NoError(t, err)

	tr := table.Get(9999)
	assert.Equal(t, "Unknown", tr.Type)
	assert.Empty(t, tr.Accessories)
}

func TestRarity(t *testing.T) {
	assert.Equal(t, "Legendary", Rarity("Alien"))
	assert.Equal(t, "Epic", Rarity("Ape"))
	assert.Equal(t, "Rare", Rarity("Zombie"))
	assert.Equal(t, "Common", Rarity("Male"))
	assert.Equal(t, "Common", Rarity("Unknown"))
}

func TestName(t *testing.T) {
	assert.Equal(t, "X1 Punk #0", Name(0))
	assert.Equal(t, "X1 Punk #9999", Name(9999))
}

func TestImagePath(t *testing.T) {
	assert.Equal(t, filepath.Join("generated", "punk_17.png"), ImagePath("generated", 17))
}

func TestBuildMetadata(t *testing.T) {
	table, err := LoadTraits(writeTraits(t, testCSV))
	require.NoError(t, err)

	meta := BuildMetadata(table, 2, "1NSCRfGeyo7wPUazGbaPBUsTM49e1k2aXewHGARfzSo")

	assert.Equal(t, "X1 Punk #2", meta.Name)
	assert.Equal(t, "X1PUNK", meta.Symbol)
	assert.Equal(t, "X1 Punk", meta.Collection.Name)
	assert.Equal(t, "X1 Punks", meta.Collection.Family)

	require.Len(t, meta.Attributes, 5)
	assert.Equal(t, Attribute{TraitType: "Type", Value: "Alien"}, meta.Attributes[0])
	assert.Equal(t, Attribute{TraitType: "Rarity", Value: "Legendary"}, meta.Attributes[1])
	assert.Equal(t, Attribute{TraitType: "Accessory 1", Value: "Cap Forward"}, meta.Attributes[2])
	assert.Equal(t, Attribute{TraitType: "Accessory 3", Value: "Small Shades"}, meta.Attributes[4])

	require.NotNil(t, meta.Inscription)
	assert.Equal(t, "x1", meta.Inscription.Chain)
}

func TestBuildMetadata_Deterministic(t *testing.T) {
	table, err := LoadTraits(writeTraits(t, testCSV))
	require.NoError(t, err)

	a, err := json.Marshal(BuildMetadata(table, 1, "prog"))
	require.NoError(t, err)
	b, err := json.Marshal(BuildMetadata(table, 1, "prog"))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
}
