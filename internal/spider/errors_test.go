package spider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageErrorMatching(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("detail: %w", NotSupported("form %s", FormVideo))
	require.ErrorIs(t, err, ErrNotSupported)
	require.NotErrorIs(t, err, ErrMissingField)
	require.Equal(t, KindNotSupported, KindOf(err))
	require.Equal(t, "detail: form video", err.Error())

	cause := errors.New("connection reset")
	dl := DownloadError("image batch", cause)
	require.ErrorIs(t, dl, ErrDownload)
	require.ErrorIs(t, dl, cause)
	require.Equal(t, "image batch: connection reset", dl.Error())

	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestWithProcedure(t *testing.T) {
	t.Parallel()

	err := WithProcedure(MissingField("title"), ProcedureDetailMissField)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, ProcedureDetailMissField, se.Procedure)
	require.ErrorIs(t, err, ErrMissingField)

	plain := WithProcedure(errors.New("boom"), ProcedureStoreError)
	require.ErrorAs(t, plain, &se)
	require.Equal(t, KindUnknown, se.Kind)
	require.Equal(t, "boom", plain.Error())
	require.ErrorIs(t, StoreError("insert", errors.New("x")), ErrStore)
	require.ErrorIs(t, Invalid("short title"), ErrInvalid)
}
