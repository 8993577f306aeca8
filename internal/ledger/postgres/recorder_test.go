package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/census-pipeline/internal/ledger"
)

func TestRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec, err := NewWithPool(mock, "publish_ledger")
	require.NoError(t, err)

	e := ledger.Entry{
		RunID:      "0190c5b4-7c1e-7000-8000-000000000000",
		Dataset:    "lodes",
		Key:        "lodes/year=2022/geography=tract/origin=home/state=wi/lodes-2022-tract-home-wi.parquet",
		MD5:        "5eb63bbbe01eeed093cb22bb8f5acdc3",
		Action:     ledger.ActionUploaded,
		URI:        "s3://public/lodes/x.parquet",
		RecordedAt: time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO publish_ledger").
		WithArgs(e.RunID, e.Dataset, e.Key, e.MD5, e.Action, e.URI, e.RecordedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, rec.Record(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO publish_ledger").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	err = rec.Record(context.Background(), ledger.Entry{Key: "k"})
	require.ErrorContains(t, err, "insert ledger entry")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "ledger; DROP TABLE x")
	require.Error(t, err)
	_, err = NewWithPool(nil, "publish_ledger")
	require.Error(t, err)

	rec, err := NewWithPool(mock, "publish_ledger")
	require.NoError(t, err)
	require.Error(t, rec.Record(context.Background(), ledger.Entry{}))

	var nilRec *Recorder
	require.Error(t, nilRec.Record(context.Background(), ledger.Entry{Key: "k"}))
	nilRec.Close()

	_, err = New(context.Background(), Config{})
	require.Error(t, err)
}
