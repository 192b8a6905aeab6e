package redis

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	channel string
	message any
	err     error
}

func (f *fakeClient) Publish(_ context.Context, channel string, message any) *goredis.IntCmd {
	f.channel = channel
	f.message = message
	return goredis.NewIntResult(2, f.err)
}

func TestPublish(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{}
	id, err := New(fake).Publish(context.Background(), "spiders:stored", map[string]string{"col": "v1_joke"})
	require.NoError(t, err)
	require.Equal(t, "2", id)
	require.Equal(t, "spiders:stored", fake.channel)
	require.JSONEq(t, `{"col":"v1_joke"}`, string(fake.message.([]byte)))

	fake.err = errors.New("conn closed")
	_, err = New(fake).Publish(context.Background(), "c", "x")
	require.Error(t, err)

	_, err = New(fake).Publish(context.Background(), "c", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}
