package templates

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type option struct {
	ID, Name string
	Selected bool
}

func TestDefaultFragments(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	html, err := r.Render("layer-picker", map[string]any{
		"Enabled":  true,
		"Bases":    []option{{ID: "streets-osm", Name: "Streets", Selected: true}, {ID: "toner", Name: "Toner"}},
		"Overlays": []option{},
	})
	require.NoError(t, err)
	assert.Contains(t, html, `value="streets-osm" checked`)
	assert.Contains(t, html, "No overlays")

	html, err = r.Render("layer-picker", map[string]any{"Enabled": false})
	require.NoError(t, err)
	assert.NotContains(t, html, "fieldset")

	_, err = r.Render("no-such-template", nil)
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	require.NoError(t, r.Reload(fstest.MapFS{
		"fragments/x.html": {Data: []byte(`{{define "hello"}}hi {{.}}{{end}}`)},
	}))
	out, err := r.Render("hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)

	assert.Error(t, r.Reload(fstest.MapFS{}), "no fragments matched")
}
