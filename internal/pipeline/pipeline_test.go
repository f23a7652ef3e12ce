package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledmatrix/internal/blocks"
	"github.com/coreman2200/ledmatrix/internal/store"
)

func load(t *testing.T, name string) []byte {
	t.Helper()
	b, err := LoadFile("testdata/" + name)
	require.NoError(t, err)
	return b
}

func TestBuildRainbow(t *testing.T) {
	raw := load(t, "rainbow.json")
	p, err := Build(raw)
	require.NoError(t, err)
	assert.Len(t, p.Blocks, 4)
	assert.Len(t, p.Snapshot.Scalars, 13)
	assert.Equal(t, Fingerprint(raw), p.Fingerprint)
	assert.NotEmpty(t, p.Fingerprint)

	s, err := store.New(p.Snapshot)
	require.NoError(t, err)
	s.SetScalar(store.ScalarX, 10)
	for _, b := range p.Blocks {
		b.Execute(s)
	}
	// hue = frac(10 * 0.00847), full saturation at v=0.6 leaves one channel dark
	c := s.Color(store.ColorOutput)
	assert.NotEqual(t, store.Color{}, c)
	assert.Equal(t, uint8(0), c.B)
}

func TestBuildImageDocument(t *testing.T) {
	p, err := Build(load(t, "image.json"))
	require.NoError(t, err)

	s, err := store.New(p.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, store.Data{255, 0, 0, 0, 255, 0}, s.Data(0))

	s.SetScalar(store.ScalarX, 1)
	p.Blocks[0].Execute(s)
	assert.Equal(t, store.Color{G: 255}, s.Color(0))
}

func TestFingerprintStable(t *testing.T) {
	raw := load(t, "rainbow.json")
	assert.Equal(t, Fingerprint(raw), Fingerprint(append([]byte(nil), raw...)))
	assert.NotEqual(t, Fingerprint(raw), Fingerprint(load(t, "image.json")))
}

func TestBuildRejects(t *testing.T) {
	const vars = `"vars":{"float":[0,0,0,1],"color":[{"r":0,"g":0,"b":0}]}`
	cases := []struct {
		name   string
		raw    string
		schema bool
		want   error
	}{
		{name: "empty", raw: " ", want: ErrEmpty},
		{name: "not json", raw: `{"vars":`, schema: true},
		{name: "missing primitives", raw: `{` + vars + `}`, schema: true},
		{name: "unknown top-level key", raw: `{` + vars + `,"primitives":[],"extra":1}`, schema: true},
		{name: "too few scalars", raw: `{"vars":{"float":[0,0],"color":[{"r":0,"g":0,"b":0}]},"primitives":[]}`, schema: true},
		{name: "color out of byte range", raw: `{"vars":{"float":[0,0,0],"color":[{"r":300,"g":0,"b":0}]},"primitives":[]}`, schema: true},
		{name: "bad base64", raw: `{"vars":{"float":[0,0,0],"color":[{"r":0,"g":0,"b":0}],"data":["***"]},"primitives":[]}`},
		{name: "string index", raw: `{` + vars + `,"primitives":[{"type":"scalar_add","inputs":{"a":"0","b":1},"outputs":{"o":3}}]}`, schema: true},
		{name: "unknown block", raw: `{` + vars + `,"primitives":[{"type":"warp","inputs":{},"outputs":{}}]}`, want: blocks.ErrUnknownType},
		{name: "missing key", raw: `{` + vars + `,"primitives":[{"type":"scalar_add","inputs":{"a":0},"outputs":{"o":3}}]}`, want: blocks.ErrMissing},
		{name: "index past vars", raw: `{` + vars + `,"primitives":[{"type":"scalar_add","inputs":{"a":0,"b":9},"outputs":{"o":3}}]}`, want: blocks.ErrOutOfRange},
		{name: "macc lengths", raw: `{` + vars + `,"primitives":[{"type":"scalar_macc","inputs":{"m":[0,1],"x":[2]},"outputs":{"o":3}}]}`, want: blocks.ErrLength},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, err := Build([]byte(c.raw))
			require.Error(t, err)
			assert.Nil(t, p)
			if c.schema {
				var se *SchemaError
				assert.True(t, errors.As(err, &se), "want schema error, got %v", err)
			}
			if c.want != nil {
				assert.True(t, errors.Is(err, c.want), "got %v", err)
			}
		})
	}
}

func TestCompileIsAllOrNothing(t *testing.T) {
	doc := Document{
		Vars: store.Snapshot{Scalars: []float64{0, 0, 0, 0}, Colors: []store.Color{{}}},
		Primitives: []blocks.Descriptor{
			{Type: "scalar_add", Inputs: raw(`{"a":0,"b":1}`), Outputs: raw(`{"o":3}`)},
			{Type: "scalar_add", Inputs: raw(`{"a":0}`), Outputs: raw(`{"o":3}`)},
		},
	}
	p, err := NewBuilder().Compile(doc)
	assert.Nil(t, p)
	var be *blocks.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 1, be.Index)
	assert.Equal(t, "b", be.Key)
}
