package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

func integrationDispute(orderID, providerID string) domain.DisputeRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.DisputeRecord{
		ID:          uuid.NewString(),
		ProviderID:  providerID,
		OrderID:     orderID,
		Status:      domain.DisputeStatusOpen,
		AmountMinor: 1500,
		Currency:    "USD",
		Reason:      "fraudulent",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestDisputeRepository_PostgresCreateIfAbsent(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	repo := NewDisputeRepository(store)

	order := integrationOrder(t, store, nil)
	require.NoError(t, orders.Create(order))

	providerID := "dp_" + uuid.NewString()
	dispute := integrationDispute(order.ID, providerID)

	stored, created, err := repo.CreateIfAbsent(dispute)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, dispute.ID, stored.ID)

	// Повторная доставка того же webhook не создаёт вторую запись.
	replay := integrationDispute(order.ID, providerID)
	stored, created, err = repo.CreateIfAbsent(replay)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, dispute.ID, stored.ID)

	all, err := repo.ListByOrder(order.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestDisputeRepository_PostgresSaveResolution(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	orders := NewOrderRepository(store)
	repo := NewDisputeRepository(store)

	order := integrationOrder(t, store, nil)
	require.NoError(t, orders.Create(order))

	dispute := integrationDispute(order.ID, "dp_"+uuid.NewString())
	_, _, err := repo.CreateIfAbsent(dispute)
	require.NoError(t, err)

	resolvedAt := time.Now().UTC().Truncate(time.Microsecond)
	dispute.Status = domain.DisputeStatusLost
	dispute.ResolvedAt = &resolvedAt
	dispute.UpdatedAt = resolvedAt
	require.NoError(t, repo.Save(dispute))

	got, err := repo.GetByProviderID(dispute.ProviderID)
	require.NoError(t, err)
	require.Equal(t, domain.DisputeStatusLost, got.Status)
	require.NotNil(t, got.ResolvedAt)

	missing := dispute
	missing.ID = uuid.NewString()
	require.ErrorIs(t, repo.Save(missing), domain.ErrDisputeNotFound)

	list, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
