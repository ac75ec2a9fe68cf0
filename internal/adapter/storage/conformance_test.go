package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/port"
)

// runStoreSuite checks the behaviour every backend must share. Each case
// works on records with fresh ids and a unique category so that suites can
// run against databases holding other data.
func runStoreSuite(t *testing.T, store port.Store) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, store) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, store) })
	t.Run("ListNewestFirst", func(t *testing.T) { testListNewestFirst(t, store) })
	t.Run("SearchFilters", func(t *testing.T) { testSearchFilters(t, store) })
	t.Run("SearchIsLiteral", func(t *testing.T) { testSearchIsLiteral(t, store) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, store) })
	t.Run("UpdateAbort", func(t *testing.T) { testUpdateAbort(t, store) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, store) })
	t.Run("DecrementStock", func(t *testing.T) { testDecrementStock(t, store) })
	t.Run("IncrementStock", func(t *testing.T) { testIncrementStock(t, store) })
	t.Run("IncrementStockLimit", func(t *testing.T) { testIncrementStockLimit(t, store) })
	t.Run("ConcurrentPurchaseNeverOversells", func(t *testing.T) { testConcurrentDecrement(t, store) })
	t.Run("Users", func(t *testing.T) { testUsers(t, store) })
}

func newTestSweet(category, name string, price float64, quantity int, created time.Time) domain.Sweet {
	return domain.Sweet{
		ID:        uuid.NewString(),
		Name:      name,
		Category:  category,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func uniqueCategory() string {
	return "cat-" + uuid.NewString()[:8]
}

func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func mustCreate(t *testing.T, store port.Store, s domain.Sweet) domain.Sweet {
	t.Helper()
	if err := store.CreateSweet(context.Background(), s); err != nil {
		t.Fatalf("CreateSweet failed: %v", err)
	}
	t.Cleanup(func() { store.DeleteSweet(context.Background(), s.ID) })
	return s
}

func ids(sweets []domain.Sweet) []string {
	out := make([]string, 0, len(sweets))
	for _, s := range sweets {
		out = append(out, s.ID)
	}
	return out
}

func testCreateAndGet(t *testing.T, store port.Store) {
	ctx := context.Background()
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Chocolate Bar", 5.99, 100, baseTime()))

	got, err := store.GetSweet(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSweet failed: %v", err)
	}
	if got.Name != "Chocolate Bar" || got.Category != s.Category {
		t.Errorf("unexpected sweet: %+v", got)
	}
	if got.Price != 5.99 {
		t.Errorf("expected price 5.99, got %v", got.Price)
	}
	if got.Quantity != 100 {
		t.Errorf("expected quantity 100, got %d", got.Quantity)
	}
	if !got.CreatedAt.Equal(s.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", s.CreatedAt, got.CreatedAt)
	}
}

func testGetMissing(t *testing.T, store port.Store) {
	_, err := store.GetSweet(context.Background(), uuid.NewString())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func testListNewestFirst(t *testing.T, store port.Store) {
	cat := uniqueCategory()
	now := baseTime()
	oldest := mustCreate(t, store, newTestSweet(cat, "Sweet 1", 2.99, 50, now.Add(-2*time.Second)))
	middle := mustCreate(t, store, newTestSweet(cat, "Sweet 2", 4.99, 30, now.Add(-time.Second)))
	newest := mustCreate(t, store, newTestSweet(cat, "Sweet 3", 1.99, 10, now))

	got, err := store.ListSweets(context.Background(), domain.SweetFilter{Category: cat})
	if err != nil {
		t.Fatalf("ListSweets failed: %v", err)
	}

	want := []string{newest.ID, middle.ID, oldest.ID}
	if strings.Join(ids(got), ",") != strings.Join(want, ",") {
		t.Errorf("expected order %v, got %v", want, ids(got))
	}
}

func testSearchFilters(t *testing.T, store port.Store) {
	ctx := context.Background()
	cat := uniqueCategory()
	now := baseTime()
	bar := mustCreate(t, store, newTestSweet(cat, "Chocolate Bar", 5.99, 100, now.Add(-2*time.Second)))
	mustCreate(t, store, newTestSweet(cat, "Gummy Bears", 3.99, 50, now.Add(-time.Second)))
	dark := mustCreate(t, store, newTestSweet(cat, "Dark Chocolate", 7.99, 30, now))

	byName, err := store.ListSweets(ctx, domain.SweetFilter{Name: "CHOCO", Category: cat})
	if err != nil {
		t.Fatalf("ListSweets failed: %v", err)
	}
	if strings.Join(ids(byName), ",") != dark.ID+","+bar.ID {
		t.Errorf("name filter: expected [%s %s], got %v", dark.ID, bar.ID, ids(byName))
	}

	minPrice, maxPrice := 4.0, 6.0
	byPrice, err := store.ListSweets(ctx, domain.SweetFilter{Category: cat, MinPrice: &minPrice, MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("ListSweets failed: %v", err)
	}
	if len(byPrice) != 1 || byPrice[0].ID != bar.ID {
		t.Errorf("price filter: expected only %s, got %v", bar.ID, ids(byPrice))
	}

	// bounds are inclusive
	exact := 7.99
	byBound, err := store.ListSweets(ctx, domain.SweetFilter{Category: cat, MinPrice: &exact})
	if err != nil {
		t.Fatalf("ListSweets failed: %v", err)
	}
	if len(byBound) != 1 || byBound[0].ID != dark.ID {
		t.Errorf("inclusive bound: expected only %s, got %v", dark.ID, ids(byBound))
	}

	both, err := store.ListSweets(ctx, domain.SweetFilter{Name: "chocolate", Category: cat, MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("ListSweets failed: %v", err)
	}
	if len(both) != 1 || both[0].ID != bar.ID {
		t.Errorf("conjunctive filter: expected only %s, got %v", bar.ID, ids(both))
	}
}

func testSearchIsLiteral(t *testing.T, store port.Store) {
	cat := uniqueCategory()
	now := baseTime()
	pct := mustCreate(t, store, newTestSweet(cat, "100%_Cocoa", 9.5, 1, now))
	mustCreate(t, store, newTestSweet(cat, "Plain Cocoa", 4.5, 1, now.Add(-time.Second)))

	got, err := store.ListSweets(context.Background(), domain.SweetFilter{Name: "%_", Category: cat})
	if err != nil {
		t.Fatalf("ListSweets failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != pct.ID {
		t.Errorf("expected only %s, got %v", pct.ID, ids(got))
	}
}

func testUpdate(t *testing.T, store port.Store) {
	ctx := context.Background()
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Original Sweet", 2.99, 50, baseTime()))
	later := s.CreatedAt.Add(time.Minute)

	updated, err := store.UpdateSweet(ctx, s.ID, func(sw *domain.Sweet) error {
		sw.Name = "Updated Sweet"
		sw.Price = 3.99
		sw.UpdatedAt = later
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateSweet failed: %v", err)
	}
	if updated.Name != "Updated Sweet" || updated.Price != 3.99 {
		t.Errorf("unexpected result: %+v", updated)
	}

	got, err := store.GetSweet(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSweet failed: %v", err)
	}
	if got.Name != "Updated Sweet" || got.Quantity != 50 || got.Category != s.Category {
		t.Errorf("unexpected stored sweet: %+v", got)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("expected updated_at %v, got %v", later, got.UpdatedAt)
	}

	_, err = store.UpdateSweet(ctx, uuid.NewString(), func(*domain.Sweet) error { return nil })
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func testUpdateAbort(t *testing.T, store port.Store) {
	ctx := context.Background()
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Stable Sweet", 2.99, 5, baseTime()))
	abort := errors.New("abort")

	_, err := store.UpdateSweet(ctx, s.ID, func(sw *domain.Sweet) error {
		sw.Name = "Changed"
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected mutate error, got: %v", err)
	}

	got, err := store.GetSweet(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSweet failed: %v", err)
	}
	if got.Name != "Stable Sweet" {
		t.Errorf("aborted update was written: %+v", got)
	}
}

func testDelete(t *testing.T, store port.Store) {
	ctx := context.Background()
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Sweet to Delete", 2.99, 50, baseTime()))

	if err := store.DeleteSweet(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSweet failed: %v", err)
	}
	if _, err := store.GetSweet(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
	if err := store.DeleteSweet(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got: %v", err)
	}

	listed, err := store.ListSweets(ctx, domain.SweetFilter{Category: s.Category})
	if err != nil {
		t.Fatalf("ListSweets failed: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("deleted sweet still listed: %v", ids(listed))
	}
}

func testDecrementStock(t *testing.T, store port.Store) {
	ctx := context.Background()
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Purchasable Sweet", 2.99, 10, baseTime()))
	at := s.CreatedAt.Add(time.Minute)

	got, err := store.DecrementStock(ctx, s.ID, 2, at)
	if err != nil {
		t.Fatalf("DecrementStock failed: %v", err)
	}
	if got.Quantity != 8 {
		t.Errorf("expected stock 8, got %d", got.Quantity)
	}
	if got.Name != s.Name || got.Category != s.Category || got.Price != s.Price {
		t.Errorf("returned sweet does not match the stored record: %+v", got)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("expected updated_at %v, got %v", at, got.UpdatedAt)
	}

	_, err = store.DecrementStock(ctx, s.ID, 20, at)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.Available != 8 {
		t.Errorf("expected available 8, got %d", stockErr.Available)
	}

	// taking exactly the remaining stock is allowed
	got, err = store.DecrementStock(ctx, s.ID, 8, at)
	if err != nil {
		t.Fatalf("DecrementStock failed: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("expected stock 0, got %d", got.Quantity)
	}

	stored, err := store.GetSweet(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSweet failed: %v", err)
	}
	if stored.Quantity != 0 {
		t.Errorf("expected stored stock 0, got %d", stored.Quantity)
	}

	_, err = store.DecrementStock(ctx, uuid.NewString(), 1, at)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func testIncrementStock(t *testing.T, store port.Store) {
	ctx := context.Background()
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Sweet to Restock", 2.99, 10, baseTime()))

	got, err := store.IncrementStock(ctx, s.ID, 50, s.CreatedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("IncrementStock failed: %v", err)
	}
	if got.Quantity != 60 {
		t.Errorf("expected stock 60, got %d", got.Quantity)
	}
	if got.Name != s.Name {
		t.Errorf("expected name %q, got %q", s.Name, got.Name)
	}

	_, err = store.IncrementStock(ctx, uuid.NewString(), 1, time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func testIncrementStockLimit(t *testing.T, store port.Store) {
	ctx := context.Background()
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Bulk Sweet", 0.10, 10, baseTime()))
	at := s.CreatedAt.Add(time.Minute)

	// one past the limit is refused and leaves the stock alone
	_, err := store.IncrementStock(ctx, s.ID, domain.MaxQuantity-9, at)
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
	stored, err := store.GetSweet(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSweet failed: %v", err)
	}
	if stored.Quantity != 10 {
		t.Errorf("expected stock 10 after refused restock, got %d", stored.Quantity)
	}

	got, err := store.IncrementStock(ctx, s.ID, domain.MaxQuantity-10, at)
	if err != nil {
		t.Fatalf("IncrementStock to the limit failed: %v", err)
	}
	if got.Quantity != domain.MaxQuantity {
		t.Errorf("expected stock %d, got %d", domain.MaxQuantity, got.Quantity)
	}

	if _, err := store.IncrementStock(ctx, s.ID, 1, at); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity at the limit, got: %v", err)
	}

	// a full sweet can still be sold
	got, err = store.DecrementStock(ctx, s.ID, 1, at)
	if err != nil {
		t.Fatalf("DecrementStock failed: %v", err)
	}
	if got.Quantity != domain.MaxQuantity-1 {
		t.Errorf("expected stock %d, got %d", domain.MaxQuantity-1, got.Quantity)
	}
}

func testConcurrentDecrement(t *testing.T, store port.Store) {
	ctx := context.Background()
	initialStock := 10
	totalRequests := 20
	s := mustCreate(t, store, newTestSweet(uniqueCategory(), "Popular Sweet", 1, initialStock, baseTime()))

	var (
		successCount atomic.Int32
		soldOutCount atomic.Int32
		wg           sync.WaitGroup
	)
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.DecrementStock(ctx, s.ID, 1, time.Now().UTC())
			var stockErr *domain.InsufficientStockError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &stockErr):
				soldOutCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successful purchases, got %d", initialStock, successCount.Load())
	}
	if soldOutCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d sold out, got %d", totalRequests-initialStock, soldOutCount.Load())
	}

	got, err := store.GetSweet(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSweet failed: %v", err)
	}
	if got.Quantity != 0 {
		t.Errorf("expected stock 0, got %d", got.Quantity)
	}
}

func testUsers(t *testing.T, store port.Store) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	now := baseTime()
	u := domain.User{
		ID:           uuid.NewString(),
		Username:     "user" + suffix,
		Email:        "user" + suffix + "@example.com",
		PasswordHash: "hash",
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := store.GetUserByEmail(ctx, u.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != u.ID || got.Username != u.Username || got.PasswordHash != "hash" || got.Role != domain.RoleAdmin {
		t.Errorf("unexpected user: %+v", got)
	}

	byName, err := store.GetUserByUsername(ctx, u.Username)
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if byName.ID != u.ID {
		t.Errorf("expected id %s, got %s", u.ID, byName.ID)
	}

	dupEmail := u
	dupEmail.ID = uuid.NewString()
	dupEmail.Username = "other" + suffix
	if err := store.CreateUser(ctx, dupEmail); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for email, got: %v", err)
	}

	dupName := u
	dupName.ID = uuid.NewString()
	dupName.Username = strings.ToUpper(u.Username)
	dupName.Email = "other" + suffix + "@example.com"
	if err := store.CreateUser(ctx, dupName); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for username, got: %v", err)
	}

	// a rejected username must not leave its email reserved
	if _, err := store.GetUserByEmail(ctx, dupName.Email); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for rejected email, got: %v", err)
	}

	if _, err := store.GetUserByEmail(ctx, "missing-"+suffix+"@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}
