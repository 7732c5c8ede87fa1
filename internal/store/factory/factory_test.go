package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	sq "github.com/agenticscrum/agentmon/internal/store/sqlite"
)

func TestNewFromDSNSQLite(t *testing.T) {
	dir := t.TempDir()

	for _, dsn := range []string{
		filepath.Join(dir, "bare.db"),
		"sqlite://" + filepath.Join(dir, "scheme.db"),
	} {
		st, err := NewFromDSN(dsn)
		require.NoError(t, err, dsn)
		require.IsType(t, &sq.DB{}, st)
		require.NoError(t, st.EnsureSchema(context.Background()))
		require.NoError(t, st.Close())
	}
}

func TestNewFromDSNEmpty(t *testing.T) {
	_, err := NewFromDSN("   ")
	require.Error(t, err)
}
