package catalog

import (
	"fmt"
	"sync"

	"github.com/example/routebook/internal/route/domain"
)

// Catalog owns the ordered set of routes for the lifetime of the process.
// Membership and order are fixed at construction; only like counts change.
type Catalog struct {
	mu     sync.RWMutex
	routes []domain.Route
	index  map[int]int
}

// New builds a catalog, rejecting duplicate ids and negative metrics.
func New(routes []domain.Route) (*Catalog, error) {
	c := &Catalog{
		routes: make([]domain.Route, 0, len(routes)),
		index:  make(map[int]int, len(routes)),
	}
	for _, r := range routes {
		if _, dup := c.index[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", domain.ErrInvalidRoute, r.ID)
		}
		if r.DistanceKM < 0 || r.ElevationM < 0 || r.Likes < 0 {
			return nil, fmt.Errorf("%w: negative metric on route %d", domain.ErrInvalidRoute, r.ID)
		}
		c.index[r.ID] = len(c.routes)
		c.routes = append(c.routes, r)
	}
	return c, nil
}

// Routes returns a snapshot in catalog order.
func (c *Catalog) Routes() []domain.Route {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Route(nil), c.routes...)
}

// Len returns the number of routes.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routes)
}

// Get retrieves a route by id.
func (c *Catalog) Get(id int) (domain.Route, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return domain.Route{}, domain.ErrRouteNotFound
	}
	return c.routes[i], nil
}

// SetLikes overwrites the like count of a route. Negative values are clamped to zero.
func (c *Catalog) SetLikes(id, likes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return domain.ErrRouteNotFound
	}
	if likes < 0 {
		likes = 0
	}
	c.routes[i].Likes = likes
	return nil
}

// AddLikes increments the like count and returns the new value.
func (c *Catalog) AddLikes(id, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return 0, domain.ErrRouteNotFound
	}
	c.routes[i].Likes += delta
	return c.routes[i].Likes, nil
}

// Query runs q against a snapshot of the catalog.
func (c *Catalog) Query(q Query) Result {
	return Apply(c.Routes(), q)
}
