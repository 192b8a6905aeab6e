package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const matchConfig = `{
  "qq.com": {
    "configs": {
      "plain": {"title": {"params": {"name": "h1"}}},
      "news":  {"title": {"params": {"name": "h2"}}},
      "tail":  {"title": {"params": {"name": "h3"}}},
      "outer": {"source": "腾讯"}
    },
    "match": {
      "qq.com": ["plain"],
      "news.qq.com/a/": ["news"],
      "qq.com/1.htm$": ["tail"]
    },
    "outer": {"redirect": ["outer"]}
  }
}`

func names(cfgs []Config) []string {
	out := make([]string, len(cfgs))
	for i, c := range cfgs {
		out[i] = c.Name
	}
	return out
}

func TestSnapshotMatch(t *testing.T) {
	t.Parallel()

	snap, err := ParseSnapshot([]byte(matchConfig))
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())

	tests := []struct {
		url  string
		want []string
	}{
		{"http://news.qq.com/a/2017/1.htm", []string{"news", "tail", "plain"}},
		{"http://www.qq.com/b/2.html", []string{"plain"}},
		{"http://www.qq.com/x/1.htm", []string{"tail", "plain"}},
		{"http://news.qq.com/redirect?u=1", []string{"outer", "plain"}},
		{"http://sina.com.cn/a/1.htm", []string{}},
		{"http://qq.com.evil.org/a", []string{}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, names(snap.Match(tc.url)))
		})
	}
}

func TestSnapshotRejectsUnknownRefs(t *testing.T) {
	t.Parallel()

	_, err := ParseSnapshot([]byte(`{"a.com": {"configs": {}, "match": {"a.com": ["x"]}}}`))
	require.Error(t, err)
}

func TestRuleUnmarshal(t *testing.T) {
	t.Parallel()

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{
		"source": "literal",
		"title": {"method": "select", "params": {"selector": "h1"}, "attribute": "title"},
		"date": [{"params": {"name": "time"}}, {"params": {"class_": "date"}}],
		"content": null
	}`), &cfg))
	require.Equal(t, "literal", cfg.Source.Literal)
	require.Len(t, cfg.Title.Selectors, 1)
	require.Equal(t, "title", cfg.Title.Selectors[0].Attribute)
	require.Len(t, cfg.Date.Selectors, 2)
	require.True(t, cfg.Content.IsZero())

	var bad Rule
	require.Error(t, json.Unmarshal([]byte(`12`), &bad))
}

func TestConfigStoreReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qq.json"), []byte(matchConfig), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_draft.json"), []byte(`not json`), 0o600))

	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	first := store.Current()
	require.Equal(t, 1, first.Len())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o600))
	require.Error(t, store.Reload())
	require.Same(t, first, store.Current())

	require.NoError(t, os.Remove(filepath.Join(dir, "broken.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sina.json"), []byte(`{"sina.com.cn": {"configs": {"1": {}}, "match": {"sina.com.cn": ["1"]}}}`), 0o600))
	require.NoError(t, store.Reload())
	require.Equal(t, 2, store.Current().Len())
	require.NotSame(t, first, store.Current())
}
