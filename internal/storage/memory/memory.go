package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Imaginaryverse/spending-habits/internal/core"
)

// Store keeps everything in process memory. It backs development runs,
// demo mode and service tests.
type Store struct {
	mu       sync.RWMutex
	cats     []core.SpendingCategory
	items    map[string]core.SpendingItem
	profiles map[string]core.UserProfile
	users    map[string]core.User
	now      func() time.Time
}

func New(cats []core.SpendingCategory) *Store {
	if len(cats) == 0 {
		cats = core.DefaultCategories()
	}
	return &Store{
		cats:     dedupe(cats),
		items:    make(map[string]core.SpendingItem),
		profiles: make(map[string]core.UserProfile),
		users:    make(map[string]core.User),
		now:      time.Now,
	}
}

// NewFromFiles seeds categories from base/seed_categories.txt, one
// "id|name|description" per line. Missing or empty files fall back to the
// default categories.
func NewFromFiles(base string) *Store {
	var cats []core.SpendingCategory
	for _, line := range readLines(filepath.Join(base, "seed_categories.txt")) {
		parts := strings.SplitN(line, "|", 3)
		c := core.SpendingCategory{ID: strings.TrimSpace(parts[0])}
		c.Name = c.ID
		if len(parts) > 1 {
			c.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			c.Description = strings.TrimSpace(parts[2])
		}
		cats = append(cats, c)
	}
	return New(cats)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) FetchSpendingItems(_ context.Context, filter core.ItemFilter) ([]core.SpendingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.SpendingItem, 0)
	for _, item := range s.items {
		if filter.Matches(item) {
			item.CategoryName = s.categoryName(item.CategoryID)
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) GetSpendingItem(_ context.Context, userID, id string) (core.SpendingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok || item.UserID != userID {
		return core.SpendingItem{}, core.ErrNotFound
	}
	item.CategoryName = s.categoryName(item.CategoryID)
	return item, nil
}

func (s *Store) CreateSpendingItem(_ context.Context, item core.SpendingItem) (core.SpendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasCategory(item.CategoryID) {
		return core.SpendingItem{}, core.ErrEmptyCategory
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CategoryName = s.categoryName(item.CategoryID)
	s.items[item.ID] = item
	return item, nil
}

func (s *Store) UpdateSpendingItem(_ context.Context, item core.SpendingItem) (core.SpendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok || existing.UserID != item.UserID {
		return core.SpendingItem{}, core.ErrNotFound
	}
	if !s.hasCategory(item.CategoryID) {
		return core.SpendingItem{}, core.ErrEmptyCategory
	}
	item.CategoryName = s.categoryName(item.CategoryID)
	s.items[item.ID] = item
	return item, nil
}

func (s *Store) DeleteSpendingItem(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[id]
	if !ok || existing.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) ListCategories(context.Context) ([]core.SpendingCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.SpendingCategory(nil), s.cats...), nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.SpendingCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cats {
		if c.ID == id {
			return c, nil
		}
	}
	return core.SpendingCategory{}, core.ErrNotFound
}

func (s *Store) GetProfile(_ context.Context, userID string) (core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.UserProfile{}, core.ErrNotFound
	}
	return p, nil
}

func (s *Store) SaveProfile(_ context.Context, p core.UserProfile) (core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.UserID]; ok {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.profiles[p.UserID] = p
	return p, nil
}

func (s *Store) ListProfilesWithLimit(context.Context) ([]core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if p.HasLimit() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := normalizeEmail(u.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return core.User{}, core.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	u.Email = email
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = normalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

// Seed inserts items as-is, keeping their IDs. Used for demo data.
func (s *Store) Seed(items []core.SpendingItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		s.items[item.ID] = item
	}
}

func (s *Store) categoryName(id string) string {
	for _, c := range s.cats {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}

func (s *Store) hasCategory(id string) bool {
	return s.categoryName(id) != ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// dedupe drops categories with a repeated ID, keeping input order.
func dedupe(in []core.SpendingCategory) []core.SpendingCategory {
	seen := map[string]struct{}{}
	out := make([]core.SpendingCategory, 0, len(in))
	for _, c := range in {
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
