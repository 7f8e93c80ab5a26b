package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/inventomatic/internal/store"
	"github.com/kiranshivaraju/inventomatic/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	tenant := seedTenant(t, s, "Optics")
	p := newPrincipal(&tenant.ID, models.RoleStaff, "optics.staff")
	seedPrincipal(t, s, p)

	got, err := s.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	got.Role = models.RoleManager
	*got.TenantID = uuid.Nil

	again, err := s.GetPrincipal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, again.Role)
	assert.Equal(t, tenant.ID, *again.TenantID)
}

func TestMemoryStore_ConcurrentTransactionsAreSerialized(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	tenant := seedTenant(t, s, "Astronomy")
	p := newPrincipal(&tenant.ID, models.RoleManager, "astro.mgr")
	seedPrincipal(t, s, p)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.InTx(ctx, func(tx store.Tx) error {
				return tx.UpdatePrincipalRole(ctx, p.ID, models.RoleManager, models.RoleStaff)
			})
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, store.ErrConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, conflicts)
}
