// Package cart is the shopper's selection of courses before checkout. It
// lives on the client; the server never trusts it and reprices every
// checkout from the catalog.
package cart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrAlreadyInCart is returned when adding a course the cart already holds.
var ErrAlreadyInCart = errors.New("course already in cart")

type Item struct {
	CourseID string          `json:"courseId"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl,omitempty"`
}

// Storage persists the cart between runs. The cart calls Save after every
// change.
type Storage interface {
	Load() ([]Item, error)
	Save([]Item) error
}

type Cart struct {
	mu    sync.Mutex
	items []Item
	store Storage
}

// New restores a cart from store.
func New(store Storage) (*Cart, error) {
	items, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading cart: %w", err)
	}
	return &Cart{items: items, store: store}, nil
}

func (c *Cart) Add(it Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.items {
		if existing.CourseID == it.CourseID {
			return ErrAlreadyInCart
		}
	}

	return c.commit(append(cloneItems(c.items), it))
}

// Remove drops the course from the cart. Removing a course that is not in
// the cart is not an error.
func (c *Cart) Remove(courseID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if it.CourseID != courseID {
			items = append(items, it)
		}
	}
	if len(items) == len(c.items) {
		return nil
	}

	return c.commit(items)
}

func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commit(nil)
}

func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	return cloneItems(c.items)
}

func (c *Cart) CourseIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, len(c.items))
	for i, it := range c.items {
		ids[i] = it.CourseID
	}
	return ids
}

// Total is the sum of the item prices rounded to cents. It is the figure
// the client claims at checkout.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Price)
	}
	return total.Round(2)
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// commit saves items and only then makes them the cart's state, so a failed
// save leaves the cart unchanged.
func (c *Cart) commit(items []Item) error {
	if err := c.store.Save(items); err != nil {
		return fmt.Errorf("saving cart: %w", err)
	}
	c.items = items
	return nil
}

func cloneItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
