package backup

import (
	"errors"
	"testing"

	"github.com/runningman84/zfs-auto-backup/pkg/backup/backuptest"
	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverImportsImportablePool(t *testing.T) {
	vm := backuptest.New()
	vm.Importable["backup0"] = true

	state, err := NewResolver(vm).Acquire("backup0")
	require.NoError(t, err)
	assert.Equal(t, models.PoolImported, state)
	assert.Equal(t, []string{"import backup0"}, vm.Calls)
}

func TestResolverAlreadyImported(t *testing.T) {
	vm := backuptest.New()
	vm.Imported["backup0"] = &models.PoolStatus{Name: "backup0", State: "ONLINE"}

	state, err := NewResolver(vm).Acquire("backup0")
	require.NoError(t, err)
	assert.Equal(t, models.PoolImported, state)
	assert.Empty(t, vm.Calls, "an imported pool must not be imported again")
}

func TestResolverAbsentPool(t *testing.T) {
	vm := backuptest.New()

	state, err := NewResolver(vm).Acquire("backup0")
	require.NoError(t, err)
	assert.Equal(t, models.PoolUnavailable, state)
	assert.Empty(t, vm.Calls)
}

func TestResolverImportFailure(t *testing.T) {
	vm := backuptest.New()
	vm.Importable["backup0"] = true
	vm.ImportErr["backup0"] = errors.New("cannot import 'backup0': pool is busy")

	state, err := NewResolver(vm).Acquire("backup0")
	assert.Equal(t, models.PoolUnavailable, state)

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, "backup0", importErr.Pool)
}

func TestResolverDiscoveryFailure(t *testing.T) {
	vm := backuptest.New()
	vm.ImportListErr = errors.New("zpool: permission denied")

	state, err := NewResolver(vm).Acquire("backup0")
	assert.Equal(t, models.PoolUnavailable, state)

	var importErr *ImportError
	assert.ErrorAs(t, err, &importErr)
	assert.Empty(t, vm.Calls)
}

func TestResolverDiscover(t *testing.T) {
	vm := backuptest.New()
	vm.Importable["backup0"] = true
	vm.Imported["backup1"] = &models.PoolStatus{Name: "backup1", State: "ONLINE"}
	r := NewResolver(vm)

	tests := []struct {
		pool string
		want models.PoolState
	}{
		{pool: "backup0", want: models.PoolImportable},
		{pool: "backup1", want: models.PoolImported},
		{pool: "backup2", want: models.PoolUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.pool, func(t *testing.T) {
			state, err := r.Discover(tt.pool)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
	assert.Empty(t, vm.Calls, "discovery must not change anything")
}
