package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStage(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		KeySchedule: "redistribute",
		KeyList:     "list",
		KeyResource: "resource",
		KeyWeixin:   "weixin",
		"custom":    "custom",
	}
	for key, want := range cases {
		require.Equal(t, want, Stage(key), key)
	}
}
