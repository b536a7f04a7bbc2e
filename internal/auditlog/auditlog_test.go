package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenClose(t *testing.T) {
	store := NewMemoryStore()
	log := New(store, true)
	ctx := context.Background()

	id := log.Open(ctx, "purchase", map[string]string{"product_id": "7"})
	require.NotZero(t, id)

	e, ok := store.Get(id)
	require.True(t, ok)
	assert.False(t, e.Closed)
	assert.Equal(t, "purchase", e.Type)

	log.CloseSuccess(ctx, id, "purchase", 42)

	e, ok = store.Get(id)
	require.True(t, ok)
	assert.True(t, e.Closed)
	assert.True(t, e.Result)
	assert.Equal(t, int64(42), e.TransID)
	assert.Empty(t, e.ErrorCode)
}

func TestCloseRejected(t *testing.T) {
	store := NewMemoryStore()
	log := New(store, true)
	ctx := context.Background()

	id := log.Open(ctx, "purchase", nil)
	log.CloseRejected(ctx, id, "purchase", "NO_PRODUCT_ID")

	e, ok := store.Get(id)
	require.True(t, ok)
	assert.True(t, e.Closed)
	assert.False(t, e.Result)
	assert.Equal(t, "NO_PRODUCT_ID", e.ErrorCode)
	assert.Zero(t, e.TransID)
}

func TestDisabled(t *testing.T) {
	store := NewMemoryStore()
	log := New(store, false)
	ctx := context.Background()

	id := log.Open(ctx, "purchase", nil)
	assert.Zero(t, id)
	log.CloseSuccess(ctx, id, "purchase", 1)
	assert.Empty(t, store.All())
}

func TestNilStore(t *testing.T) {
	log := New(nil, true)
	ctx := context.Background()

	// Must not panic, must report disabled via the zero id.
	id := log.Open(ctx, "refund", map[string]string{"payment_id": "1"})
	assert.Zero(t, id)
	log.CloseFailed(ctx, id, "refund", "LEDGER_WRITE_FAILED")
}

type failingStore struct{}

func (failingStore) Create(ctx context.Context, e *Entry) error { return errors.New("db down") }
func (failingStore) Close(ctx context.Context, id int64, typ string, transID int64, result bool, errorCode string) error {
	return errors.New("db down")
}

func TestStoreFailureSwallowed(t *testing.T) {
	log := New(failingStore{}, true)
	ctx := context.Background()

	// A failing store never blocks the request being logged.
	id := log.Open(ctx, "purchase", nil)
	assert.Zero(t, id)
	log.CloseSuccess(ctx, id, "purchase", 1)
}

func TestSerializeParams_RedactsToken(t *testing.T) {
	info := serializeParams(map[string]string{
		"key":        "pk_live_1234",
		"token":      "super-secret",
		"product_id": "7",
	})

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(info), &decoded))
	assert.Equal(t, "[redacted]", decoded["token"])
	assert.Equal(t, "pk_live_1234", decoded["key"])
	assert.Equal(t, "7", decoded["product_id"])
	assert.NotContains(t, info, "super-secret")
}

func TestSerializeParams_Nil(t *testing.T) {
	assert.Equal(t, "{}", serializeParams(nil))
}
