package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"savingsbank/core/events"
	"savingsbank/core/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func event(eventType string, attrs map[string]string) *types.Event {
	evt := types.NewEvent(eventType)
	for k, v := range attrs {
		evt.Attributes[k] = v
	}
	return evt
}

func TestAppendBuildsHashChain(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, event("savings.deposit.created", map[string]string{"depositId": "1"}))
	require.NoError(t, err)
	second, err := store.Append(ctx, event("savings.deposit.withdrawn", map[string]string{"depositId": "1"}))
	require.NoError(t, err)

	require.Equal(t, uint64(1), first.Sequence)
	require.Empty(t, first.PrevHash)
	require.Equal(t, uint64(2), second.Sequence)
	require.Equal(t, first.Hash, second.PrevHash)
	require.Len(t, second.Hash, 64)
	require.NoError(t, store.Verify(ctx))

	head, err := store.Head(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, head.ID)
}

func TestVerifyDetectsTampering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.Append(ctx, event("plans.created", map[string]string{"planId": fmt.Sprint(i + 1)}))
		require.NoError(t, err)
	}
	require.NoError(t, store.db.Model(&Record{}).Where("sequence = ?", 2).
		Update("attributes", `{"planId":"99"}`).Error)

	err := store.Verify(ctx)
	require.True(t, errors.Is(err, ErrChainBroken))
}

func TestListFiltersAndPages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Emit(events.Wrap(event("savings.deposit.created", nil)))
	store.Emit(events.Wrap(event("vault.liquidity.deposited", map[string]string{"amount": "5"})))
	store.Emit(events.Wrap(event("savings.deposit.renewed", nil)))

	all, err := store.List(ctx, 0, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	savingsOnly, err := store.List(ctx, 0, 10, "savings.")
	require.NoError(t, err)
	require.Len(t, savingsOnly, 2)

	page, err := store.List(ctx, 1, 1, "")
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "vault.liquidity.deposited", page[0].Type)
	require.Equal(t, "5", page[0].Decoded()["amount"])
}

func TestAppendRejectsEmptyType(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Append(context.Background(), &types.Event{})
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", nil)
	require.Error(t, err)
}
