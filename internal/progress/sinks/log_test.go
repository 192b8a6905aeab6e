package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zhidu-qidian/Spiders/internal/progress"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TS: now, Stage: "prepare", RecordID: "r1", Outcome: progress.OutcomeOK, Returned: 1},
		{TS: now, Stage: "detail", RecordID: "r2", Outcome: progress.OutcomeNotSupported, Note: "no config matches"},
		{
			TS:        now,
			Stage:     "resource",
			RecordID:  "r3",
			Outcome:   progress.OutcomeDownload,
			Procedure: spider.ProcedureResourceDownloadError,
			Note:      "download image",
		},
	}))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, "stage prepare", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	fields := entries[2].ContextMap()
	require.Equal(t, "r3", fields["id"])
	require.Equal(t, "resource_download_error", fields["procedure"])
	require.Equal(t, "download image", fields["note"])
}

func TestLogSinkSkipsDisabledLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TS: time.Now(), Stage: "list", RecordID: "c1", Outcome: progress.OutcomeEmpty},
		{TS: time.Now(), Stage: "store", RecordID: "r9", Outcome: progress.OutcomeStore},
	}))
	require.Equal(t, 1, logs.Len())
	require.NoError(t, NewLogSink(nil).Close(context.Background()))
}
