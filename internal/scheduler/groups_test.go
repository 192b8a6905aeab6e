package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhidu-qidian/Spiders/internal/queue"
)

type namedPipeline struct{}

func named(name string) ([]string, error) { return []string{name}, nil }

func (namedPipeline) Redistribute(context.Context, string) ([]string, error) {
	return named("redistribute")
}
func (namedPipeline) List(context.Context, string) ([]string, error)     { return named("list") }
func (namedPipeline) Download(context.Context, string) ([]string, error) { return named("download") }
func (namedPipeline) Detail(context.Context, string) ([]string, error)   { return named("detail") }
func (namedPipeline) Clean(context.Context, string) ([]string, error)    { return named("clean") }
func (namedPipeline) Resource(context.Context, string) ([]string, error) { return named("resource") }
func (namedPipeline) Prepare(context.Context, string) ([]string, error)  { return named("prepare") }
func (namedPipeline) Store(context.Context, string) ([]string, error)    { return named("store") }
func (namedPipeline) Video(context.Context, string) ([]string, error)    { return named("video") }
func (namedPipeline) Joke(context.Context, string) ([]string, error)     { return named("joke") }

func TestGroupsRouteQueues(t *testing.T) {
	t.Parallel()

	type hop struct{ handler, next string }
	want := map[string]map[string]hop{
		GroupLong: {
			queue.KeyResource: {"resource", queue.KeyPrepare},
		},
		GroupMiddle: {
			queue.KeyList:     {"list", queue.KeyDownload},
			queue.KeyDownload: {"download", queue.KeyDetail},
			queue.KeyVideo:    {"video", queue.KeyClean},
			queue.KeyJoke:     {"joke", queue.KeyClean},
		},
		GroupShort: {
			queue.KeySchedule: {"redistribute", ""},
			queue.KeyDetail:   {"detail", queue.KeyClean},
			queue.KeyClean:    {"clean", queue.KeyResource},
			queue.KeyPrepare:  {"prepare", queue.KeyStore},
			queue.KeyStore:    {"store", ""},
		},
	}

	for name, hops := range want {
		g, err := GroupFor(name, namedPipeline{})
		require.NoError(t, err)
		require.Len(t, g, len(hops), name)
		for key, h := range hops {
			route, ok := g[key]
			require.True(t, ok, "%s misses %s", name, key)
			ids, err := route.Handler(context.Background(), "id")
			require.NoError(t, err)
			require.Equal(t, []string{h.handler}, ids)
			require.Equal(t, h.next, route.Next)
		}
	}
}

func TestGroupForNames(t *testing.T) {
	t.Parallel()

	_, err := GroupFor(" Short ", namedPipeline{})
	require.NoError(t, err)
	_, err = GroupFor("LONG", namedPipeline{})
	require.NoError(t, err)

	_, err = GroupFor("fast", namedPipeline{})
	require.ErrorIs(t, err, ErrUnknownGroup)
	require.ErrorContains(t, err, "only support long, middle, short")
}
