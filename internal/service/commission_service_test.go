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

type fakeStore struct {
	affiliates map[int64]models.Affiliate
	products   map[string]models.Product
	sales      map[int64]*models.Sale
	payments   []models.Payment
	nextSaleID int64

	// failPaymentAt makes the Nth CreatePayment call fail (1-based)
	failPaymentAt int
	paymentCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		affiliates: make(map[int64]models.Affiliate),
		products:   make(map[string]models.Product),
		sales:      make(map[int64]*models.Sale),
	}
}

func (f *fakeStore) GetUnsettledSales(ctx context.Context) ([]models.Sale, error) {
	var out []models.Sale
	for _, s := range f.sales {
		if s.Status != models.SaleStatusSettled {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetAffiliatesByIDs(ctx context.Context, ids []int64) ([]models.Affiliate, error) {
	var out []models.Affiliate
	for _, id := range ids {
		if a, ok := f.affiliates[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSaleStatus(ctx context.Context, saleID int64, status string) error {
	s, ok := f.sales[saleID]
	if !ok {
		return fmt.Errorf("sale %d: %w", saleID, models.ErrNotFound)
	}
	s.Status = status
	return nil
}

func (f *fakeStore) GetMaxPaymentID(ctx context.Context) (int64, error) {
	var max int64
	for _, p := range f.payments {
		if p.ID > max {
			max = p.ID
		}
	}
	return max, nil
}

func (f *fakeStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	f.paymentCalls++
	if f.failPaymentAt > 0 && f.paymentCalls == f.failPaymentAt {
		return fmt.Errorf("write failed")
	}
	f.payments = append(f.payments, *payment)
	return nil
}

type fakeRuns struct {
	run      *models.CommissionRun
	holder   string
	failSave bool
}

func (f *fakeRuns) SavePendingRun(ctx context.Context, run *models.CommissionRun) error {
	if f.failSave {
		return fmt.Errorf("write failed")
	}
	cp := *run
	cp.Commissions = append([]models.Commission(nil), run.Commissions...)
	f.run = &cp
	return nil
}

func (f *fakeRuns) GetPendingRun(ctx context.Context) (*models.CommissionRun, error) {
	return f.run, nil
}

func (f *fakeRuns) ClearPendingRun(ctx context.Context) error {
	f.run = nil
	return nil
}

func (f *fakeRuns) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	if f.holder != "" {
		return false, nil
	}
	f.holder = token
	return true, nil
}

func (f *fakeRuns) ReleaseLock(ctx context.Context, lockKey, token string) error {
	if f.holder == token {
		f.holder = ""
	}
	return nil
}

type fakePublisher struct {
	generated int
	settled   int
	payments  []models.PaymentCreatedEvent
}

func (f *fakePublisher) PublishCommissionsGenerated(ctx context.Context, event *models.CommissionsGeneratedEvent) error {
	f.generated++
	return nil
}

func (f *fakePublisher) PublishCommissionsSettled(ctx context.Context, event *models.CommissionsSettledEvent) error {
	f.settled++
	return nil
}

func (f *fakePublisher) PublishPaymentCreated(ctx context.Context, event *models.PaymentCreatedEvent) error {
	f.payments = append(f.payments, *event)
	return nil
}

func newTestEngine(store *fakeStore) (*CommissionService, *fakeRuns, *fakePublisher) {
	runs := &fakeRuns{}
	pub := &fakePublisher{}
	svc := NewCommissionService(store, runs, pub, time.Minute)
	return svc, runs, pub
}

func addAffiliate(f *fakeStore, id int64, name string, parentID *int64) {
	f.affiliates[id] = models.Affiliate{ID: id, Name: name, Contact: name + "@example.com", ParentID: parentID}
}

func addSale(f *fakeStore, id, affiliateID int64, total string, status string) {
	f.sales[id] = &models.Sale{
		ID:          id,
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		AffiliateID: affiliateID,
		ProductCode: "P1",
		Quantity:    1,
		Total:       decimal.RequireFromString(total),
		Status:      status,
	}
}

func int64p(v int64) *int64 { return &v }

func TestCommissionsForSale(t *testing.T) {
	sale := &models.Sale{ID: 7, AffiliateID: 2, Total: decimal.RequireFromString("200")}

	t.Run("with parent", func(t *testing.T) {
		cs := commissionsForSale(sale, int64p(1))
		require.Len(t, cs, 2)

		assert.Equal(t, models.CommissionKindIndirect, cs[0].Kind)
		assert.Equal(t, int64(2), cs[0].SellerID)
		assert.Equal(t, int64(1), cs[0].ReceiverID)
		assert.True(t, cs[0].Amount.Equal(decimal.RequireFromString("2")),
			"indirect amount %s", cs[0].Amount)

		assert.Equal(t, models.CommissionKindDirect, cs[1].Kind)
		assert.Equal(t, int64(2), cs[1].ReceiverID)
		assert.True(t, cs[1].Amount.Equal(decimal.RequireFromString("10")),
			"direct amount %s", cs[1].Amount)
	})

	t.Run("without parent", func(t *testing.T) {
		cs := commissionsForSale(sale, nil)
		require.Len(t, cs, 1)
		assert.Equal(t, models.CommissionKindDirect, cs[0].Kind)
		assert.Equal(t, sale.AffiliateID, cs[0].ReceiverID)
	})
}

func TestGenerateDirectAndIndirect(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Carlos", nil)
	addAffiliate(store, 2, "Ana", int64p(1))
	addSale(store, 10, 2, "200", models.SaleStatusUnpaid)
	addSale(store, 11, 1, "100", models.SaleStatusUnpaid)

	svc, runs, pub := newTestEngine(store)

	run, err := svc.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Commissions, 3)

	// Sale 10 by Ana: indirect to Carlos first, then direct to Ana.
	assert.Equal(t, models.CommissionKindIndirect, run.Commissions[0].Kind)
	assert.Equal(t, int64(1), run.Commissions[0].ReceiverID)
	assert.True(t, run.Commissions[0].Amount.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, models.CommissionKindDirect, run.Commissions[1].Kind)
	assert.Equal(t, int64(2), run.Commissions[1].ReceiverID)
	assert.True(t, run.Commissions[1].Amount.Equal(decimal.RequireFromString("10")))

	// Sale 11 by Carlos, no parent: only a direct commission.
	assert.Equal(t, models.CommissionKindDirect, run.Commissions[2].Kind)
	assert.Equal(t, int64(1), run.Commissions[2].ReceiverID)
	assert.True(t, run.Commissions[2].Amount.Equal(decimal.RequireFromString("5")))

	assert.Equal(t, models.SaleStatusAwaitingSettlement, store.sales[10].Status)
	assert.Equal(t, models.SaleStatusAwaitingSettlement, store.sales[11].Status)
	require.NotNil(t, runs.run)
	assert.Equal(t, 1, pub.generated)
}

func TestGenerateSkipsSettledSales(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Carlos", nil)
	addSale(store, 10, 1, "100", models.SaleStatusSettled)
	addSale(store, 11, 1, "100", models.SaleStatusUnpaid)

	svc, _, _ := newTestEngine(store)

	run, err := svc.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, run.Commissions, 1)
	assert.Equal(t, int64(11), run.Commissions[0].SaleID)
	assert.Equal(t, models.SaleStatusSettled, store.sales[10].Status)
}

func TestGenerateIsRebuildFromScratch(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Carlos", nil)
	addAffiliate(store, 2, "Ana", int64p(1))
	addSale(store, 10, 2, "200", models.SaleStatusUnpaid)

	svc, runs, _ := newTestEngine(store)

	first, err := svc.Generate(context.Background())
	require.NoError(t, err)

	second, err := svc.Generate(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(first.Commissions), len(second.Commissions))
	for i := range first.Commissions {
		assert.Equal(t, first.Commissions[i].Kind, second.Commissions[i].Kind)
		assert.Equal(t, first.Commissions[i].SaleID, second.Commissions[i].SaleID)
		assert.Equal(t, first.Commissions[i].ReceiverID, second.Commissions[i].ReceiverID)
		assert.True(t, first.Commissions[i].Amount.Equal(second.Commissions[i].Amount))
	}

	// Only the latest run is pending.
	assert.Equal(t, second.ID, runs.run.ID)
}

func TestGenerateMissingAffiliateAbortsWithoutMutation(t *testing.T) {
	store := newFakeStore()
	addSale(store, 10, 99, "100", models.SaleStatusUnpaid)

	svc, runs, _ := newTestEngine(store)

	_, err := svc.Generate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.SaleStatusUnpaid, store.sales[10].Status)
	assert.Nil(t, runs.run)
}

func TestGenerateRunSaveFailureLeavesSalesUntouched(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Ana", nil)
	addSale(store, 10, 1, "100", models.SaleStatusUnpaid)

	svc, runs, pub := newTestEngine(store)
	runs.failSave = true

	_, err := svc.Generate(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.SaleStatusUnpaid, store.sales[10].Status)
	assert.Nil(t, runs.run)
	assert.Equal(t, 0, pub.generated)
}

func TestGenerateWhileEngineBusy(t *testing.T) {
	store := newFakeStore()
	svc, runs, _ := newTestEngine(store)
	runs.holder = "someone-else"

	_, err := svc.Generate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrBusinessRule)
}

func TestListProjectsPendingRun(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Carlos", nil)
	addAffiliate(store, 2, "Ana", int64p(1))
	addSale(store, 10, 2, "200", models.SaleStatusUnpaid)

	svc, _, _ := newTestEngine(store)

	_, err := svc.Generate(context.Background())
	require.NoError(t, err)

	views, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "Ana", views[0].SellerName)
	assert.Equal(t, "Carlos", views[0].ReceiverName)
	assert.Equal(t, int64(10), views[0].SaleID)
	assert.Equal(t, "Ana", views[1].ReceiverName)

	// Listing is read-only: the pending run is untouched.
	again, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestListWithoutPendingRun(t *testing.T) {
	svc, _, _ := newTestEngine(newFakeStore())

	views, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestSettleFullRun(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Carlos", nil)
	addAffiliate(store, 2, "Ana", int64p(1))
	addSale(store, 10, 2, "200", models.SaleStatusUnpaid)

	svc, runs, pub := newTestEngine(store)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }

	_, err := svc.Generate(context.Background())
	require.NoError(t, err)

	result, err := svc.Settle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Payments, 2)

	// Indirect to Carlos first, direct to Ana second, ids from 1.
	assert.Equal(t, int64(1), result.Payments[0].ID)
	assert.Equal(t, int64(1), result.Payments[0].AffiliateID)
	assert.True(t, result.Payments[0].Amount.Equal(decimal.RequireFromString("2")))
	assert.Equal(t, int64(2), result.Payments[1].ID)
	assert.Equal(t, int64(2), result.Payments[1].AffiliateID)
	assert.True(t, result.Payments[1].Amount.Equal(decimal.RequireFromString("10")))

	assert.Equal(t, models.SaleStatusSettled, store.sales[10].Status)
	assert.Nil(t, runs.run, "pending run must be cleared")
	assert.Equal(t, 1, pub.settled)
	assert.Len(t, pub.payments, 2)

	// A following generation pass skips the settled sale.
	run, err := svc.Generate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, run.Commissions)
}

func TestSettlePaymentIDsContinueFromMax(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Carlos", nil)
	addSale(store, 10, 1, "100", models.SaleStatusUnpaid)
	store.payments = append(store.payments, models.Payment{ID: 41, AffiliateID: 1, Amount: decimal.RequireFromString("3")})

	svc, _, _ := newTestEngine(store)

	_, err := svc.Generate(context.Background())
	require.NoError(t, err)

	result, err := svc.Settle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Payments, 1)
	assert.Equal(t, int64(42), result.Payments[0].ID)
}

func TestSettleWithoutPendingRun(t *testing.T) {
	svc, _, _ := newTestEngine(newFakeStore())

	result, err := svc.Settle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Payments)
}

func TestSettlePartialFailure(t *testing.T) {
	store := newFakeStore()
	addAffiliate(store, 1, "Carlos", nil)
	addAffiliate(store, 2, "Ana", int64p(1))
	addSale(store, 10, 2, "200", models.SaleStatusUnpaid)
	addSale(store, 11, 1, "100", models.SaleStatusUnpaid)
	store.failPaymentAt = 3

	svc, runs, _ := newTestEngine(store)

	_, err := svc.Generate(context.Background())
	require.NoError(t, err)

	_, err = svc.Settle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPartialSettlement)

	// The first two payments stay committed, the failed commission and
	// everything after it stay pending.
	assert.Len(t, store.payments, 2)
	require.NotNil(t, runs.run)
	assert.Len(t, runs.run.Commissions, 1)
	assert.Equal(t, int64(11), runs.run.Commissions[0].SaleID)

	// Retrying settles the remainder with the next id.
	store.failPaymentAt = 0
	result, err := svc.Settle(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Payments, 1)
	assert.Equal(t, int64(3), result.Payments[0].ID)
	assert.Nil(t, runs.run)
}
