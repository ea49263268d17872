package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgency(t *testing.T) {
	assert.Equal(t, "Harcourts success", Agency("  HARCOURTS SUCCESS "))
	assert.Equal(t, "Re/max", Agency("RE/MAX"))
	assert.Equal(t, "Unknown", Agency(""))
	assert.Equal(t, "Unknown", Agency("   "))
}

func TestAgent(t *testing.T) {
	assert.Equal(t, "Jane citizen", Agent("jane   CITIZEN"))
	assert.Equal(t, "Unknown", Agent(""))
}

func TestSuburb_CollapsesFormattingVariants(t *testing.T) {
	table := DefaultSuburbs()

	a := table.Suburb("pullenvale qld (4069)")
	b := table.Suburb("Pullenvale QLD 4069")
	c := table.Suburb("Pullenvale")

	assert.Equal(t, "PULLENVALE 4069", a)
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestSuburb_Miss(t *testing.T) {
	table := DefaultSuburbs()
	assert.Equal(t, Unknown, table.Suburb("Nowhereville"))
	assert.Equal(t, Unknown, table.Suburb(""))
	// Bare postcode is not a suburb name.
	assert.Equal(t, Unknown, table.Suburb("4069"))
}

func TestSuburb_MultiWordWithState(t *testing.T) {
	table := DefaultSuburbs()
	assert.Equal(t, "FIG TREE POCKET 4069", table.Suburb("Fig  Tree Pocket NSW"))
	assert.Equal(t, "MOUNT CROSBY 4306", table.Suburb("mount crosby qld 4306"))
}

func TestStreet(t *testing.T) {
	assert.Equal(t, "main st", Street("  Main   St "))
	assert.Equal(t, "", Street("  "))
	// Exact-after-normalization matching: abbreviations stay distinct.
	assert.NotEqual(t, Street("Main St"), Street("Main Street"))
}

func TestStreetKey(t *testing.T) {
	assert.Equal(t, "MOGGILL 4070: main st", StreetKey("MOGGILL 4070", "Main  St"))
}

func TestLoadSuburbs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suburbs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Graceville: GRACEVILLE 4075\n"), 0o644))

	table, err := LoadSuburbs(path)
	require.NoError(t, err)
	assert.Equal(t, "GRACEVILLE 4075", table.Suburb("graceville QLD"))
}

func TestLoadSuburbs_MissingFile(t *testing.T) {
	_, err := LoadSuburbs(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
