// Package storage declares the record store ports used by the services.
// Implementations live in the memory and sqlstore subpackages; backend
// selection happens in internal/backend.
package storage

import (
	"context"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

// Ports for outbound adapters. Lookups that find nothing return core.ErrNotFound.
type (
	// ItemReader returns spending items newest first.
	ItemReader interface {
		FetchSpendingItems(ctx context.Context, filter core.ItemFilter) ([]core.SpendingItem, error)
		GetSpendingItem(ctx context.Context, userID, id string) (core.SpendingItem, error)
	}

	// ItemWriter persists spending items. Create assigns the ID; all three
	// scope the write to item.UserID.
	ItemWriter interface {
		CreateSpendingItem(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error)
		UpdateSpendingItem(ctx context.Context, item core.SpendingItem) (core.SpendingItem, error)
		DeleteSpendingItem(ctx context.Context, userID, id string) error
	}

	// CategoryReader serves the static category list in a stable order.
	CategoryReader interface {
		ListCategories(ctx context.Context) ([]core.SpendingCategory, error)
		GetCategory(ctx context.Context, id string) (core.SpendingCategory, error)
	}

	ProfileStore interface {
		GetProfile(ctx context.Context, userID string) (core.UserProfile, error)
		// SaveProfile creates or replaces the profile of p.UserID.
		SaveProfile(ctx context.Context, p core.UserProfile) (core.UserProfile, error)
		ListProfilesWithLimit(ctx context.Context) ([]core.UserProfile, error)
	}

	// UserStore backs password authentication. CreateUser returns
	// core.ErrConflict when the email is taken.
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByID(ctx context.Context, id string) (core.User, error)
	}

	Store interface {
		ItemReader
		ItemWriter
		CategoryReader
		ProfileStore
		UserStore
		Ping(ctx context.Context) error
		Close() error
	}
)
