package stage

import (
	"context"
	"fmt"

	"github.com/zhidu-qidian/Spiders/internal/queue"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Redistribute routes a config id from the schedule queue to the queue that
// crawls it. Channels without a first category are parked.
func (s *Stages) Redistribute(ctx context.Context, id string) ([]string, error) {
	_, ch, err := s.configAndChannel(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Category1 == "" {
		return nil, nil
	}
	key, err := routeKey(ch)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", id, err)
	}
	if s.deps.Broker == nil {
		return nil, fmt.Errorf("no broker to route config %s", id)
	}
	if err := s.deps.Broker.Add(ctx, key, id); err != nil {
		return nil, fmt.Errorf("route config %s to %s: %w", id, key, err)
	}
	return nil, nil
}

func routeKey(ch spider.Channel) (string, error) {
	if ch.Site == SiteWeixin {
		return queue.KeyWeixin, nil
	}
	switch ch.Form {
	case spider.FormNews, spider.FormAtlas:
		return queue.KeyList, nil
	case spider.FormJoke:
		return queue.KeyJoke, nil
	case spider.FormVideo:
		return queue.KeyVideo, nil
	default:
		return "", spider.NotSupported("not support form: %s", ch.Form)
	}
}
