package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "pitching_sessions", []string{"id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"pitching_sessions"}, []string{"id", "athlete_id"}).WillReturnResult(2)

	rows := [][]any{{"s1", "a1"}, {"s2", "a1"}}
	n, err := CopyFrom(context.Background(), mock, "pitching_sessions", []string{"id", "athlete_id"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"pitching_sessions"}, []string{"id"}).WillReturnError(fmt.Errorf("connection reset"))

	_, err = CopyFrom(context.Background(), mock, "pitching_sessions", []string{"id"}, [][]any{{"s1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO pitching_sessions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
