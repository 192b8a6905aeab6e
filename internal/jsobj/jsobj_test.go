package jsobj

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	v, err := Decode(`{"a": [1, "x"]}`)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": []any{float64(1), "x"}}, v)
}

func TestDecodeJavaScriptLiteral(t *testing.T) {
	t.Parallel()

	v, err := DecodeObject(`{title: 'hello', list: [{img: 'a.jpg'}, {img: 'b.jpg'}], n: 2};`)
	require.NoError(t, err)
	require.Equal(t, "hello", v["title"])
	require.Equal(t, float64(2), v["n"])
	list, ok := v["list"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	first, ok := list[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "a.jpg", first["img"])
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	_, err := Decode("   ")
	require.ErrorIs(t, err, ErrEmpty)
	_, err = Decode("{a: ")
	require.Error(t, err)
	_, err = DecodeObject("[1,2]")
	require.Error(t, err)
}

func TestDecodeHaltsRunawayScripts(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := decode("(function(){ while (true) {} })()", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Less(t, time.Since(start), 5*time.Second)

	v, err := decode("{a: 1}", 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": float64(1)}, v)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"data": map[string]any{
			"inner": `{"list": [1]}`,
			"name":  "n",
		},
	}
	require.Equal(t, "n", Lookup(data, "data|name"))
	require.Equal(t, []any{float64(1)}, Lookup(data, "data|inner|list"))
	require.Nil(t, Lookup(data, "data|missing|x"))
	require.Nil(t, Lookup(data, ""))
	require.Nil(t, Lookup(nil, "data"))
}
