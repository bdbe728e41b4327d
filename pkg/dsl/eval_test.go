package dsl

import (
	"testing"

	"github.com/rushteam/reckit/core"
	"github.com/rushteam/reckit/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem() *core.Item {
	it := core.NewItem("550", 3)
	it.Features["similarity"] = 0.42
	it.Features["wr"] = 0.8
	it.Features["decade"] = 1990
	it.Labels["language"] = utils.Label{Value: "en", Source: "corpus"}
	it.Labels["recall_source"] = utils.Label{Value: "corpus", Source: "recall"}
	return it
}

func TestProgramEval(t *testing.T) {
	rctx := &core.RecommendContext{
		GroupID: "g1",
		History: []string{"1"},
		Query:   &core.Query{RefDecade: 1990, RefLanguage: "en"},
	}
	tests := []struct {
		expr string
		want bool
	}{
		{`item.decade >= 1980`, true},
		{`item.decade < 1990`, false},
		{`item.similarity > 0.4`, true},
		{`item.features.wr >= 0.5 && item.language == "en"`, true},
		{`item.language in ["fr", "de"]`, false},
		{`label.recall_source == "corpus"`, true},
		{`item.decade == rctx.ref_decade`, true},
		{`item.language == rctx.ref_language`, true},
		{`item.id == "550"`, true},
		{`item.decade > 1985.5`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := p.Eval(testItem(), rctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.expr, p.String())
		})
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(`item.decade >=`)
	assert.Error(t, err)

	_, err = Compile(`1 + 2`)
	assert.Error(t, err, "non-boolean expression")
}

func TestEvalMissingKey(t *testing.T) {
	p, err := Compile(`item.features.missing > 1`)
	require.NoError(t, err)
	_, err = p.Eval(testItem(), nil)
	assert.Error(t, err)
}

func TestEvalHelper(t *testing.T) {
	ok, err := Eval("", testItem(), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Eval(`item.index == 3`, testItem(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
