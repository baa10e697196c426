package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type affectedResult struct {
	n   int64
	err error
}

func (r affectedResult) LastInsertId() (int64, error) { return 0, errors.New("unsupported") }
func (r affectedResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestRowsAffected(t *testing.T) {
	t.Run("driver failure is an error, not a conflict", func(t *testing.T) {
		boom := errors.New("connection reset")
		n, err := rowsAffected(affectedResult{n: 0, err: boom}, "refresh reference holders")
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "refresh reference holders rows affected")
		assert.Zero(t, n)
	})

	t.Run("count passes through", func(t *testing.T) {
		n, err := rowsAffected(affectedResult{n: 1}, "update reference")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}
