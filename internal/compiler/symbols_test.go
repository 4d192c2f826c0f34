package compiler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/respack/internal/value"
)

func TestSymbolFor(t *testing.T) {
	tests := map[string]string{
		"title":        "TITLE",
		"hero.idle":    "HERO_IDLE",
		"2x-scale":     "R_2X_SCALE",
		"snake_case":   "SNAKE_CASE",
		"":             "R_",
		"ünïcode name": "_N_CODE_NAME",
	}
	for name, want := range tests {
		assert.Equal(t, want, SymbolFor(name), name)
	}
}

func TestBuildSymbols_Collisions(t *testing.T) {
	names := []string{"a.b", "a-b", "a_b", "logo"}
	got := BuildSymbols(names, map[string]string{"logo": "A_B"})

	assert.Equal(t, map[string]string{
		"A_B":   "logo",
		"A_B_2": "a-b",
		"A_B_3": "a.b",
		"A_B_4": "a_b",
	}, got)
}

func TestBuildSymbols_DuplicateExplicit(t *testing.T) {
	got := BuildSymbols([]string{"one", "two"}, map[string]string{"one": "X", "two": "X"})
	assert.Equal(t, "one", got["X"])
	assert.Equal(t, "two", got["TWO"])
}

func TestRecorder_Metadata(t *testing.T) {
	r := newRecorder()
	r.addFile("", "/src/main.json", 10)
	r.addFile("sheet", "/src/b.png", 20)
	r.addFile("sheet", "/src/a.png", 30)
	r.inherit("sheet.idle", "sheet")
	r.inherit("orphan", "nobody")
	r.addAux("strings.h", []byte("#define X"))
	r.setSymbol("sheet", "SHEET")

	m := r.metadata([]string{"sheet", "sheet.idle"}, []string{"/src/main.json"}, time.Unix(5, 0))

	assert.Equal(t, []string{"/src/a.png", "/src/b.png", "/src/main.json"}, m.FileNames())
	assert.Equal(t, []string{"/src/a.png", "/src/b.png"}, m.ResourceFiles["sheet"])
	assert.Equal(t, m.ResourceFiles["sheet"], m.ResourceFiles["sheet.idle"])
	_, ok := m.ResourceFiles["orphan"]
	assert.False(t, ok)
	assert.Equal(t, []string{"strings.h"}, m.AuxFiles)
	assert.Equal(t, map[string]string{"SHEET": "sheet", "SHEET_IDLE": "sheet.idle"}, m.Symbols)
}

func TestMetadataFromDict_RejectsBadTimestamp(t *testing.T) {
	m := NewMetadata()
	m.Files["/a"] = 1
	d := m.ToDict()
	files, _ := lookupDict(d, "files")
	files.Put("/a", stringVector([]string{"x"}))

	_, err := MetadataFromDict(d)
	require.Error(t, err)

	empty, err := MetadataFromDict(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Files)
}

func TestNode_FinishOnce(t *testing.T) {
	n := NewNode(nopFactory{}, nil, "/x")
	assert.False(t, n.Finished())
	n.markDone(errors.New("first"))
	n.markDone(nil)

	assert.True(t, n.Finished())
	assert.EqualError(t, n.Err(), "first")
	select {
	case <-n.Done():
	default:
		t.Fatal("done channel not closed")
	}
	assert.Equal(t, "object(like)", n.String())
	assert.True(t, n.Equal(n))
	assert.False(t, n.Equal(NewFinishedNode(nopFactory{}, nil, "/x")))
}

type nopFactory struct{}

func (nopFactory) TypeName() string { return "like" }

func (nopFactory) BuildFromSource(*value.Dict, *BuildContext) (Object, error) { return nil, nil }

func (nopFactory) BuildFromCache(*value.Dict, *LoadContext) (Object, error) { return nil, nil }

func (nopFactory) Save(Object) (*value.Dict, error) { return value.NewDict(), nil }
