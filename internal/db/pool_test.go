package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"snapshot_records"}, []string{"snapshot_id", "cve_id", "record"}).
		WillReturnResult(2)

	rows := [][]any{
		{"snap-1", "CVE-2024-0001", []byte(`{}`)},
		{"snap-1", "CVE-2024-0002", []byte(`{}`)},
	}
	n, err := CopyFrom(context.Background(), mock, "snapshot_records", []string{"snapshot_id", "cve_id", "record"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	n, err := CopyFrom(context.Background(), mock, "snapshot_records", []string{"a"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
