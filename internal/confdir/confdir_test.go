package confdir

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type names struct {
	list []string
}

func parseNames(docs ...[]byte) (*names, error) {
	out := &names{}
	for _, doc := range docs {
		var name string
		if err := json.Unmarshal(doc, &name); err != nil {
			return nil, err
		}
		out.list = append(out.list, name)
	}
	return out, nil
}

func TestReadSkipsDraftsAndSorts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`"b"`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`"a"`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_skip.json"), []byte(`"x"`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`x`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.json"), []byte(`"c"`), 0o600))

	docs, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, `"a"`, string(docs[0]))
	require.Equal(t, `"b"`, string(docs[1]))
	require.Equal(t, `"c"`, string(docs[2]))
}

func TestStoreReloadKeepsLastGoodSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(`"a"`), 0o600))

	store, err := New[names](dir, parseNames)
	require.NoError(t, err)
	first := store.Current()
	require.Equal(t, []string{"a"}, first.list)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{`), 0o600))
	require.Error(t, store.Reload())
	require.Same(t, first, store.Current())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`"b"`), 0o600))
	require.NoError(t, store.Reload())
	require.Equal(t, []string{"a", "b"}, store.Current().list)
}

func TestStaticStore(t *testing.T) {
	t.Parallel()

	snap := &names{list: []string{"x"}}
	store := Static(snap)
	require.NoError(t, store.Reload())
	require.Same(t, snap, store.Current())
	require.Empty(t, store.Dir())
}
