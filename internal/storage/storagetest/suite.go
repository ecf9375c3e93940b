// Package storagetest holds a behavioural test suite shared by every
// storage.Store implementation.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Imaginaryverse/spending-habits/internal/core"
	"github.com/Imaginaryverse/spending-habits/internal/storage"
)

// StoreSuite runs the storage contract against a fresh store per test.
type StoreSuite struct {
	suite.Suite
	NewStore func() (storage.Store, error)

	store storage.Store
	ctx   context.Context
	user  core.User
}

func (s *StoreSuite) SetupTest() {
	st, err := s.NewStore()
	require.NoError(s.T(), err, "failed to create store")
	s.store = st
	s.ctx = context.Background()

	s.user, err = s.store.CreateUser(s.ctx, core.User{Email: "Owner@Example.com", PasswordHash: "hash"})
	require.NoError(s.T(), err)
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *StoreSuite) newItem(title string, amount int64, category string, at time.Time) core.SpendingItem {
	item, err := s.store.CreateSpendingItem(s.ctx, core.SpendingItem{
		UserID:     s.user.ID,
		CategoryID: category,
		Title:      title,
		Amount:     amount,
		CreatedAt:  at,
	})
	require.NoError(s.T(), err, "failed to create item %s", title)
	return item
}

func (s *StoreSuite) TestCategoriesAreSeededInStableOrder() {
	cats, err := s.store.ListCategories(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), core.DefaultCategories(), cats)

	food, err := s.store.GetCategory(s.ctx, "food")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Food", food.Name)

	_, err = s.store.GetCategory(s.ctx, "nope")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestCreateAndGetItem() {
	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	created := s.newItem("Lunch", 120, "food", at)

	assert.NotEmpty(s.T(), created.ID)
	assert.Equal(s.T(), "Food", created.CategoryName)

	got, err := s.store.GetSpendingItem(s.ctx, s.user.ID, created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Lunch", got.Title)
	assert.Equal(s.T(), int64(120), got.Amount)
	assert.True(s.T(), got.CreatedAt.Equal(at), "created_at round trip: %v", got.CreatedAt)

	_, err = s.store.GetSpendingItem(s.ctx, "someone-else", created.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestFetchSortsNewestFirstAndFilters() {
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	s.newItem("Bus", 20, "transport", base.Add(time.Minute))
	s.newItem("Coffee", 5, "food", base.Add(2*time.Minute))
	s.newItem("Snack", 15, "food", base.Add(3*time.Minute))
	s.newItem("Old", 99, "food", base.AddDate(0, -1, 0))

	all, err := s.store.FetchSpendingItems(s.ctx, core.ItemFilter{UserID: s.user.ID})
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 4)
	assert.Equal(s.T(), "Snack", all[0].Title)
	assert.Equal(s.T(), "Old", all[3].Title)

	food, err := s.store.FetchSpendingItems(s.ctx, core.ItemFilter{UserID: s.user.ID, CategoryID: "food"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), food, 3)

	window, err := s.store.FetchSpendingItems(s.ctx, core.ItemFilter{
		UserID: s.user.ID,
		From:   base,
		To:     base.Add(3 * time.Minute),
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), window, 2)
	assert.Equal(s.T(), "Coffee", window[0].Title)

	newest, err := s.store.FetchSpendingItems(s.ctx, core.ItemFilter{
		UserID: s.user.ID,
		To:     base.Add(3 * time.Minute),
		Limit:  1,
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), newest, 1)
	assert.Equal(s.T(), "Coffee", newest[0].Title)

	other, err := s.store.FetchSpendingItems(s.ctx, core.ItemFilter{UserID: "someone-else"})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), other)
}

func (s *StoreSuite) TestUpdateAndDeleteAreScopedToOwner() {
	item := s.newItem("Cinema", 12, "entertainment", time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC))

	item.Title = "Cinema + popcorn"
	item.Amount = 18
	item.CategoryID = "other"
	updated, err := s.store.UpdateSpendingItem(s.ctx, item)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(18), updated.Amount)
	assert.Equal(s.T(), "Other", updated.CategoryName)

	stranger := item
	stranger.UserID = "someone-else"
	_, err = s.store.UpdateSpendingItem(s.ctx, stranger)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
	assert.ErrorIs(s.T(), s.store.DeleteSpendingItem(s.ctx, "someone-else", item.ID), core.ErrNotFound)

	require.NoError(s.T(), s.store.DeleteSpendingItem(s.ctx, s.user.ID, item.ID))
	_, err = s.store.GetSpendingItem(s.ctx, s.user.ID, item.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
	assert.ErrorIs(s.T(), s.store.DeleteSpendingItem(s.ctx, s.user.ID, item.ID), core.ErrNotFound)
}

func (s *StoreSuite) TestProfileUpsert() {
	_, err := s.store.GetProfile(s.ctx, s.user.ID)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)

	first, err := s.store.SaveProfile(s.ctx, core.UserProfile{UserID: s.user.ID, Name: "Ada"})
	require.NoError(s.T(), err)
	assert.False(s.T(), first.HasLimit())

	second, err := s.store.SaveProfile(s.ctx, core.UserProfile{UserID: s.user.ID, Name: "Ada L.", MonthlySpendingLimit: 5000})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), first.ID, second.ID)
	assert.Equal(s.T(), int64(5000), second.MonthlySpendingLimit)

	limited, err := s.store.ListProfilesWithLimit(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), limited, 1)
	assert.Equal(s.T(), s.user.ID, limited[0].UserID)
}

func (s *StoreSuite) TestUsers() {
	assert.Equal(s.T(), "owner@example.com", s.user.Email)

	byEmail, err := s.store.GetUserByEmail(s.ctx, " OWNER@example.com ")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), s.user.ID, byEmail.ID)
	assert.Equal(s.T(), "hash", byEmail.PasswordHash)

	byID, err := s.store.GetUserByID(s.ctx, s.user.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), s.user.Email, byID.Email)

	_, err = s.store.CreateUser(s.ctx, core.User{Email: "owner@example.com", PasswordHash: "x"})
	assert.ErrorIs(s.T(), err, core.ErrConflict)

	_, err = s.store.GetUserByEmail(s.ctx, "missing@example.com")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestPing() {
	assert.NoError(s.T(), s.store.Ping(s.ctx))
}
