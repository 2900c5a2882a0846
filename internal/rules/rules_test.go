package rules

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

type fakeStore struct {
	rules   []model.VendorRule
	touched []int64
	listErr error
}

func (f *fakeStore) ListVendorRules(_ context.Context) ([]model.VendorRule, error) {
	return f.rules, f.listErr
}

func (f *fakeStore) TouchVendorRule(_ context.Context, id int64) error {
	f.touched = append(f.touched, id)
	return nil
}

func TestResolveFirstMatchWins(t *testing.T) {
	store := &fakeStore{rules: []model.VendorRule{
		{ID: 1, Pattern: "STARBUCKS", DefaultCategory: "Meals", DefaultJurisdiction: "WA"},
		{ID: 2, Pattern: "SHELL", DefaultCategory: "Fuel"},
		{ID: 3, Pattern: "SHELL GAS", DefaultCategory: "Travel"},
	}}
	svc := NewService(store)

	rule, err := svc.Resolve(context.Background(), "SHELL GAS STATION")

	require.NoError(t, err)
	require.NotNil(t, rule)
	// Insertion order: rule 2 hits before the more specific rule 3.
	assert.Equal(t, int64(2), rule.ID)
	assert.Equal(t, "Fuel", rule.DefaultCategory)
	assert.Equal(t, []int64{2}, store.touched)
}

func TestResolveCaseInsensitive(t *testing.T) {
	store := &fakeStore{rules: []model.VendorRule{
		{ID: 1, Pattern: "starbucks", DefaultCategory: "Meals"},
	}}
	svc := NewService(store)

	rule, err := svc.Resolve(context.Background(), "STARBUCKS AUSTIN")

	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, int64(1), rule.ID)
}

func TestResolveNoMatch(t *testing.T) {
	store := &fakeStore{rules: []model.VendorRule{
		{ID: 1, Pattern: "STARBUCKS"},
	}}
	svc := NewService(store)

	rule, err := svc.Resolve(context.Background(), "SHELL GAS STATION")

	require.NoError(t, err)
	assert.Nil(t, rule)
	assert.Empty(t, store.touched)
}

func TestResolveEmptyToken(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	rule, err := svc.Resolve(context.Background(), "")

	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestResolveStoreError(t *testing.T) {
	store := &fakeStore{listErr: eris.New("db down")}
	svc := NewService(store)

	_, err := svc.Resolve(context.Background(), "SHELL")

	assert.Error(t, err)
}
