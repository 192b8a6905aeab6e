package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/zhidu-qidian/Spiders/internal/store"
)

func TestRecordFailuresInsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	audit, err := NewAuditStoreWithPool(mock, "")
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	failures := []store.Failure{
		{RunID: runID, Stage: "detail", RecordID: "r1", Outcome: "not_supported", Procedure: 21000, Message: "no config", OccurredAt: now},
		{RunID: runID, Stage: "clean", RecordID: "r2", Outcome: "invalid", Procedure: 31000, OccurredAt: now},
	}

	mock.ExpectExec(`INSERT INTO stage_failures .* VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7\), \(\$8`).
		WithArgs(
			runID, "detail", "r1", "not_supported", 21000, "no config", now,
			runID, "clean", "r2", "invalid", 31000, "", now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, audit.RecordFailures(context.Background(), failures))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailuresEmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	audit, err := NewAuditStoreWithPool(mock, "audit")
	require.NoError(t, err)
	require.NoError(t, audit.RecordFailures(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFailuresWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	audit, err := NewAuditStoreWithPool(mock, "")
	require.NoError(t, err)

	boom := errors.New("conn reset")
	mock.ExpectExec("INSERT INTO stage_failures").WillReturnError(boom)
	err = audit.RecordFailures(context.Background(), []store.Failure{{Stage: "store", Outcome: "store_error"}})
	require.ErrorIs(t, err, boom)
}

func TestListFailuresScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	audit, err := NewAuditStoreWithPool(mock, "")
	require.NoError(t, err)

	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	rows := mock.NewRows([]string{"run_id", "stage", "record_id", "outcome", "procedure", "message", "occurred_at"}).
		AddRow(runID, "resource", "r9", "download_error", 41000, "timeout", now)
	mock.ExpectQuery("SELECT run_id, stage, record_id").
		WithArgs("resource", pgxmock.AnyArg(), maxListLimit, 0).
		WillReturnRows(rows)

	got, err := audit.ListFailures(context.Background(), store.FailureFilter{Stage: "resource", Limit: 10000, Offset: -3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, runID, got[0].RunID)
	require.Equal(t, 41000, got[0].Procedure)
	require.Equal(t, "timeout", got[0].Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSummarizeFailures(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	audit, err := NewAuditStoreWithPool(mock, "")
	require.NoError(t, err)

	since := time.Unix(1700000000, 0).UTC()
	rows := mock.NewRows([]string{"stage", "outcome", "count", "max"}).
		AddRow("detail", "missing_field", int64(12), since.Add(time.Hour)).
		AddRow("clean", "invalid", int64(3), since.Add(time.Minute))
	mock.ExpectQuery("SELECT stage, outcome, count").WithArgs(since).WillReturnRows(rows)

	got, err := audit.SummarizeFailures(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(12), got[0].Count)
	require.Equal(t, "invalid", got[1].Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStoreRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewAuditStoreWithPool(mock, "failures; DROP TABLE x")
	require.Error(t, err)
	_, err = NewAuditStoreWithPool(nil, "")
	require.Error(t, err)
	_, err = NewAuditStore(context.Background(), AuditStoreConfig{})
	require.Error(t, err)
}

func TestAuditStorePing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	audit, err := NewAuditStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, audit.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = audit.Ping(context.Background())
	require.ErrorContains(t, err, "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
