package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhidu-qidian/Spiders/internal/queue"
)

// Queue group names.
const (
	GroupLong   = "long"
	GroupMiddle = "middle"
	GroupShort  = "short"
)

// ErrUnknownGroup is returned for group names other than long, middle and
// short.
var ErrUnknownGroup = errors.New("only support long, middle, short")

// Handler processes one popped id and returns the ids to push to the next
// queue.
type Handler func(ctx context.Context, id string) ([]string, error)

// Route binds a queue to its handler and to the queue its results go to.
// An empty Next drops the results.
type Route struct {
	Handler Handler
	Next    string
}

// Group is the set of queues one scheduler process services.
type Group map[string]Route

// Pipeline is the set of stage handlers the groups are built from.
type Pipeline interface {
	Redistribute(ctx context.Context, id string) ([]string, error)
	List(ctx context.Context, id string) ([]string, error)
	Download(ctx context.Context, id string) ([]string, error)
	Detail(ctx context.Context, id string) ([]string, error)
	Clean(ctx context.Context, id string) ([]string, error)
	Resource(ctx context.Context, id string) ([]string, error)
	Prepare(ctx context.Context, id string) ([]string, error)
	Store(ctx context.Context, id string) ([]string, error)
	Video(ctx context.Context, id string) ([]string, error)
	Joke(ctx context.Context, id string) ([]string, error)
}

// Groups returns the three queue groups. Resource work is slow and gets a
// group of its own; fetch-bound stages share the middle group.
func Groups(p Pipeline) map[string]Group {
	return map[string]Group{
		GroupLong: {
			queue.KeyResource: {Handler: p.Resource, Next: queue.KeyPrepare},
		},
		GroupMiddle: {
			queue.KeyList:     {Handler: p.List, Next: queue.KeyDownload},
			queue.KeyDownload: {Handler: p.Download, Next: queue.KeyDetail},
			queue.KeyVideo:    {Handler: p.Video, Next: queue.KeyClean},
			queue.KeyJoke:     {Handler: p.Joke, Next: queue.KeyClean},
		},
		GroupShort: {
			queue.KeySchedule: {Handler: p.Redistribute},
			queue.KeyDetail:   {Handler: p.Detail, Next: queue.KeyClean},
			queue.KeyClean:    {Handler: p.Clean, Next: queue.KeyResource},
			queue.KeyPrepare:  {Handler: p.Prepare, Next: queue.KeyStore},
			queue.KeyStore:    {Handler: p.Store},
		},
	}
}

// GroupFor resolves a group name case-insensitively.
func GroupFor(name string, p Pipeline) (Group, error) {
	g, ok := Groups(p)[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("group %q: %w", name, ErrUnknownGroup)
	}
	return g, nil
}
