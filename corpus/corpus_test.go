package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rushteam/reckit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecords() []Record {
	return []Record{
		{ID: "1", Vector: []float64{1, 0}, Meta: Metadata{Popularity: 0.9, WR: 0.5, Language: "en", Decade: 1990}},
		{ID: "2", Vector: []float64{0, 1}, Meta: Metadata{Popularity: 0.1, WR: 0.2, Language: "fr", Decade: 2000}},
		{ID: "3", Vector: []float64{0, 0}},
	}
}

func TestNew(t *testing.T) {
	c, err := New(testRecords())
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 2, c.Dim())
	assert.Equal(t, "2", c.ID(1))

	i, ok := c.Lookup("3")
	require.True(t, ok)
	assert.Equal(t, 2, i)
	assert.Equal(t, UnknownLanguage, c.Meta(2).Language)

	_, ok = c.Lookup("404")
	assert.False(t, ok)

	m, ok := c.MetaByID("1")
	require.True(t, ok)
	assert.Equal(t, 1990, m.Decade)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{"empty", nil},
		{"zero dimension", []Record{{ID: "1"}}},
		{"empty id", []Record{{ID: "", Vector: []float64{1}}}},
		{"duplicate id", []Record{{ID: "1", Vector: []float64{1}}, {ID: "1", Vector: []float64{2}}}},
		{"ragged", []Record{{ID: "1", Vector: []float64{1, 2}}, {ID: "2", Vector: []float64{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.records)
			require.Error(t, err)
			de := core.GetDomainError(err)
			require.NotNil(t, de)
			assert.Equal(t, core.ModuleCorpus, de.Module)
		})
	}
}

func TestSimilarities(t *testing.T) {
	c, err := New(testRecords())
	require.NoError(t, err)

	sims, err := c.Similarities([]float64{1, 1})
	require.NoError(t, err)
	require.Len(t, sims, 3)
	assert.InDelta(t, 0.7071, sims[0], 1e-4)
	assert.InDelta(t, 0.7071, sims[1], 1e-4)
	assert.Equal(t, 0.0, sims[2], "zero-norm row")

	zero, err := c.Similarities([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, zero)

	_, err = c.Similarities([]float64{1})
	assert.True(t, core.IsInvalidInput(err))
}

func TestSimilaritiesClamped(t *testing.T) {
	c, err := New([]Record{{ID: "a", Vector: []float64{0.1, 0.2, 0.3}}})
	require.NoError(t, err)

	sims, err := c.Similarities([]float64{0.1, 0.2, 0.3})
	require.NoError(t, err)
	assert.LessOrEqual(t, sims[0], 1.0)
	assert.InDelta(t, 1.0, sims[0], 1e-12)
}

func TestMean(t *testing.T) {
	assert.Nil(t, Mean(nil))
	assert.Equal(t, []float64{2, 3}, Mean([][]float64{{1, 2}, {3, 4}}))
}

func TestLoadSaveRoundTrip(t *testing.T) {
	c, err := New(testRecords())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, Save(dir, c))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, c.IDs(), loaded.IDs())
	assert.Equal(t, c.Vector(1), loaded.Vector(1))
	assert.Equal(t, c.Meta(0), loaded.Meta(0))
}

func TestLoadNumericIDsAndMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write(EmbeddingsFile, `[[1,0],[0,1]]`)
	write(IDsFile, `[27205, 155]`)
	write(MetadataFile, `{"27205": {"popularity": 1, "wr": 0.8, "language": "en", "decade": 2010}}`)

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"27205", "155"}, c.IDs())

	m, ok := c.MetaByID("155")
	require.True(t, ok)
	assert.Equal(t, DefaultMetadata(), m)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing files", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.True(t, core.IsUnavailable(err))
	})

	t.Run("length mismatch", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, EmbeddingsFile), []byte(`[[1]]`), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, IDsFile), []byte(`[1, 2]`), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(`{}`), 0o644))
		_, err := Load(dir)
		require.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, EmbeddingsFile), []byte(`[[1,`), 0o644))
		_, err := Load(dir)
		require.Error(t, err)
	})
}
