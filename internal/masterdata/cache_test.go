package masterdata

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/dealdesk/internal/shared"
)

type countingStore struct {
	mu        sync.Mutex
	suppliers map[int64]Supplier
	contacts  map[int64][]Contact
	calls     map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{
		suppliers: map[int64]Supplier{7: {ID: 7, OrgID: 1, Code: "SUP-7", Name: "Shenzhen Valves", Country: "CN", IsActive: true}},
		contacts: map[int64][]Contact{
			3: {
				{ID: 30, CustomerID: 3, Name: "Buyer", IsSignatory: false},
				{ID: 31, CustomerID: 3, Name: "Director", Position: "CEO", IsSignatory: true},
			},
		},
		calls: map[string]int{},
	}
}

func (s *countingStore) hit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

func (s *countingStore) Supplier(ctx context.Context, id int64) (Supplier, error) {
	s.hit("supplier")
	sup, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, shared.NotFound("supplier", id)
	}
	return sup, nil
}

func (s *countingStore) Company(ctx context.Context, id int64) (Company, error) {
	s.hit("company")
	if id == 5 {
		return Company{ID: 5, Kind: CompanySeller, Name: "Seller LLC"}, nil
	}
	return Company{ID: id, Kind: CompanyBuyer, Name: "Buyer LLC"}, nil
}

func (s *countingStore) Customer(ctx context.Context, id int64) (Customer, error) {
	s.hit("customer")
	return Customer{ID: id, Name: "Customer"}, nil
}

func (s *countingStore) Contact(ctx context.Context, id int64) (Contact, error) {
	s.hit("contact")
	for _, list := range s.contacts {
		for _, c := range list {
			if c.ID == id {
				return c, nil
			}
		}
	}
	return Contact{}, shared.NotFound("contact", id)
}

func (s *countingStore) Contacts(ctx context.Context, customerID int64) ([]Contact, error) {
	s.hit("contacts")
	return s.contacts[customerID], nil
}

func (s *countingStore) Warehouse(ctx context.Context, id int64) (Warehouse, error) {
	s.hit("warehouse")
	return Warehouse{ID: id, Code: "WH"}, nil
}

func newCached(t *testing.T, next Store) *CachedStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedStore(next, client, time.Minute)
}

func TestCachedStoreServesFromRedis(t *testing.T) {
	backing := newCountingStore()
	cached := newCached(t, backing)
	ctx := context.Background()

	first, err := cached.Supplier(ctx, 7)
	require.NoError(t, err)
	second, err := cached.Supplier(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "CN", second.Country)
	require.Equal(t, 1, backing.calls["supplier"])
}

func TestCachedStoreBumpInvalidates(t *testing.T) {
	backing := newCountingStore()
	cached := newCached(t, backing)
	ctx := context.Background()

	_, err := cached.Supplier(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, cached.Bump(ctx))
	_, err = cached.Supplier(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, 2, backing.calls["supplier"])
}

func TestCachedStoreDoesNotCacheMisses(t *testing.T) {
	backing := newCountingStore()
	cached := newCached(t, backing)
	ctx := context.Background()

	_, err := cached.Supplier(ctx, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = cached.Supplier(ctx, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, 2, backing.calls["supplier"])
}

func TestServiceSignatory(t *testing.T) {
	svc := NewService(newCached(t, newCountingStore()))
	ctx := context.Background()

	c, err := svc.Signatory(ctx, 3, nil)
	require.NoError(t, err)
	require.Equal(t, int64(31), c.ID)

	notSignatory := int64(30)
	_, err = svc.Signatory(ctx, 3, &notSignatory)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Signatory(ctx, 4, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceBuyerCompanyRejectsSeller(t *testing.T) {
	svc := NewService(newCountingStore())
	_, err := svc.BuyerCompany(context.Background(), 5)
	require.ErrorIs(t, err, shared.ErrValidation)
	c, err := svc.BuyerCompany(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, CompanyBuyer, c.Kind)
}
