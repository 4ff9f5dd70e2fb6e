package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	assert.Contains(t, files, "000001_init.up.sql")
	assert.Contains(t, files, "000001_init.down.sql")
	assert.Zero(t, len(files)%2)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
