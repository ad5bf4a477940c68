package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"affiliate-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fakeStore) GetAffiliateByID(ctx context.Context, id int64) (*models.Affiliate, error) {
	a, ok := f.affiliates[id]
	if !ok {
		return nil, fmt.Errorf("affiliate %d: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

func (f *fakeStore) GetProductByCode(ctx context.Context, code string) (*models.Product, error) {
	p, ok := f.products[code]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", code, models.ErrNotFound)
	}
	return &p, nil
}

func (f *fakeStore) CreateSale(ctx context.Context, sale *models.Sale) error {
	f.nextSaleID++
	sale.ID = f.nextSaleID
	cp := *sale
	f.sales[sale.ID] = &cp
	return nil
}

func (f *fakeStore) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	s, ok := f.sales[id]
	if !ok {
		return nil, fmt.Errorf("sale %d: %w", id, models.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetSales(ctx context.Context) ([]models.Sale, error) {
	var out []models.Sale
	for _, s := range f.sales {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateSale(ctx context.Context, sale *models.Sale) error {
	if _, ok := f.sales[sale.ID]; !ok {
		return fmt.Errorf("sale %d: %w", sale.ID, models.ErrNotFound)
	}
	cp := *sale
	f.sales[sale.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteSale(ctx context.Context, id int64) error {
	delete(f.sales, id)
	return nil
}

type fakeSalePublisher struct {
	recorded int
	updated  int
}

func (f *fakeSalePublisher) PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	f.recorded++
	return nil
}

func (f *fakeSalePublisher) PublishSaleUpdated(ctx context.Context, event *models.SaleUpdatedEvent) error {
	f.updated++
	return nil
}

func newSaleFixture() (*SaleService, *fakeStore, *fakeRuns, *fakeSalePublisher) {
	store := newFakeStore()
	runs := &fakeRuns{}
	pub := &fakeSalePublisher{}
	addAffiliate(store, 1, "Ana", nil)
	store.products["P1"] = models.Product{Code: "P1", Description: "Widget", Price: decimal.RequireFromString("50.00")}
	return NewSaleService(store, runs, pub), store, runs, pub
}

func TestSaleTotal(t *testing.T) {
	price := decimal.RequireFromString("100")

	total := saleTotal(price, 2)
	assert.True(t, total.Equal(decimal.RequireFromString("200")), "total %s", total)

	total = saleTotal(decimal.RequireFromString("49.90"), 3)
	assert.True(t, total.Equal(decimal.RequireFromString("149.70")), "total %s", total)
}

func TestValidatePrice(t *testing.T) {
	assert.NoError(t, validatePrice(decimal.Zero))
	assert.NoError(t, validatePrice(decimal.RequireFromString("10.50")))
	assert.Error(t, validatePrice(decimal.RequireFromString("-0.01")))
}

func TestRecordSaleDerivesTotal(t *testing.T) {
	svc, store, _, pub := newSaleFixture()

	sale, err := svc.RecordSale(context.Background(), &RecordSaleRequest{
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		AffiliateID: 1,
		ProductCode: "P1",
		Quantity:    3,
	})
	require.NoError(t, err)
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("150.00")), "total %s", sale.Total)
	assert.Equal(t, models.SaleStatusUnpaid, sale.Status)
	assert.Equal(t, models.SaleStatusUnpaid, store.sales[sale.ID].Status)
	assert.Equal(t, 1, pub.recorded)
}

func TestRecordSaleUnknownAffiliate(t *testing.T) {
	svc, _, _, _ := newSaleFixture()

	_, err := svc.RecordSale(context.Background(), &RecordSaleRequest{
		Date:        time.Now(),
		AffiliateID: 99,
		ProductCode: "P1",
		Quantity:    1,
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateSettledSaleRejected(t *testing.T) {
	svc, store, _, pub := newSaleFixture()
	addSale(store, 10, 1, "100.00", models.SaleStatusSettled)

	_, err := svc.UpdateSale(context.Background(), 10, &UpdateSaleRequest{
		Date:        time.Now(),
		AffiliateID: 1,
		ProductCode: "P1",
		Quantity:    9,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBusinessRule)

	// The rejected edit must leave the sale exactly as settled.
	sale := store.sales[10]
	assert.Equal(t, models.SaleStatusSettled, sale.Status)
	assert.Equal(t, 1, sale.Quantity)
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("100.00")), "total %s", sale.Total)
	assert.Equal(t, 0, pub.updated)
}

func TestDeleteSettledSaleRejected(t *testing.T) {
	svc, store, _, _ := newSaleFixture()
	addSale(store, 10, 1, "100.00", models.SaleStatusSettled)

	err := svc.DeleteSale(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBusinessRule)
	assert.Contains(t, store.sales, int64(10))
}

func TestUpdateSaleResetsStatusAndDropsPendingRun(t *testing.T) {
	svc, store, runs, pub := newSaleFixture()
	addSale(store, 10, 1, "100.00", models.SaleStatusAwaitingSettlement)
	runs.run = &models.CommissionRun{ID: "stale", Commissions: []models.Commission{
		{Kind: models.CommissionKindDirect, SellerID: 1, ReceiverID: 1, SaleID: 10, Amount: decimal.RequireFromString("5.00")},
	}}

	sale, err := svc.UpdateSale(context.Background(), 10, &UpdateSaleRequest{
		Date:        time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		AffiliateID: 1,
		ProductCode: "P1",
		Quantity:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusUnpaid, sale.Status)
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("100.00")), "total %s", sale.Total)
	assert.Nil(t, runs.run, "pending run should be dropped after an edit")
	assert.Equal(t, 1, pub.updated)
}

func TestDeleteSaleDropsPendingRun(t *testing.T) {
	svc, store, runs, _ := newSaleFixture()
	addSale(store, 10, 1, "100.00", models.SaleStatusAwaitingSettlement)
	runs.run = &models.CommissionRun{ID: "stale"}

	require.NoError(t, svc.DeleteSale(context.Background(), 10))
	assert.NotContains(t, store.sales, int64(10))
	assert.Nil(t, runs.run)
}
