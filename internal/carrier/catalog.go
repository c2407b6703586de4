package carrier

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"shippingrates/internal/pricing"
)

// LookupKey selects the carrier that backs one candidate method.
type LookupKey struct {
	Family           string
	DynamicCarrierID *int64
	CountryID        string
	Method           pricing.Method
}

// Snapshot is an immutable view of the carrier catalog. Every quote reads
// from exactly one snapshot, so a feed sync running in parallel is observed
// either entirely or not at all.
type Snapshot struct {
	Generation uint64

	static  map[string]*Static
	dynamic map[int64]*Dynamic
	allowed map[string][]pricing.Method
}

// NewSnapshot indexes static carriers by family and dynamic carriers by id.
// allowed holds administrator method restrictions keyed by family.
func NewSnapshot(generation uint64, static []Static, dynamic []Dynamic, allowed map[string][]pricing.Method) *Snapshot {
	s := &Snapshot{
		Generation: generation,
		static:     make(map[string]*Static, len(static)),
		dynamic:    make(map[int64]*Dynamic, len(dynamic)),
		allowed:    make(map[string][]pricing.Method, len(allowed)),
	}
	for i := range static {
		c := static[i]
		s.static[c.CarrierFamily] = &c
	}
	for i := range dynamic {
		d := dynamic[i]
		d.CountryID = pricing.NormalizeCountry(d.CountryID)
		s.dynamic[d.ID] = &d
	}
	for family, methods := range allowed {
		s.allowed[family] = append([]pricing.Method(nil), methods...)
	}
	return s
}

// Resolve returns the carrier that should price key, or nil when nothing
// usable matches. A nil result is not an error: the method is simply not
// offered.
func (s *Snapshot) Resolve(key LookupKey) Carrier {
	if s == nil {
		return nil
	}
	if key.DynamicCarrierID == nil {
		c, ok := s.static[key.Family]
		if !ok || !c.ServesCountry(key.CountryID) || !declares(c, key.Method) {
			return nil
		}
		return c
	}
	d, ok := s.dynamic[*key.DynamicCarrierID]
	if !ok || d.Deleted {
		return nil
	}
	if d.CarrierFamily != key.Family || d.CountryID != pricing.NormalizeCountry(key.CountryID) {
		return nil
	}
	if !declares(d, key.Method) {
		return nil
	}
	return d
}

// AllowedMethods returns the administrator restriction for a family. An empty
// result means no restriction has been configured.
func (s *Snapshot) AllowedMethods(family string) []pricing.Method {
	if s == nil {
		return nil
	}
	return append([]pricing.Method(nil), s.allowed[family]...)
}

// Families lists the configured carrier families in name order.
func (s *Snapshot) Families() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for f := range s.static {
		seen[f] = struct{}{}
	}
	for _, d := range s.dynamic {
		seen[d.CarrierFamily] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Static returns the configured static carriers.
func (s *Snapshot) Static() []Static {
	out := make([]Static, 0, len(s.static))
	for _, c := range s.static {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CarrierFamily < out[j].CarrierFamily })
	return out
}

// Dynamic returns every feed carrier, deleted ones included.
func (s *Snapshot) Dynamic() []Dynamic {
	out := make([]Dynamic, 0, len(s.dynamic))
	for _, d := range s.dynamic {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Catalog publishes carrier snapshots. Readers never block; replacements are
// serialized and each one bumps the generation.
type Catalog struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

func NewCatalog() *Catalog {
	c := &Catalog{}
	c.current.Store(NewSnapshot(0, nil, nil, nil))
	return c
}

// Snapshot returns the current generation.
func (c *Catalog) Snapshot() *Snapshot {
	return c.current.Load()
}

// Replace publishes a new generation built from the given carriers.
func (c *Catalog) Replace(static []Static, dynamic []Dynamic, allowed map[string][]pricing.Method) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := NewSnapshot(c.current.Load().Generation+1, static, dynamic, allowed)
	c.current.Store(next)
	return next
}

// ReplaceDynamic swaps the feed carriers and keeps the static configuration.
func (c *Catalog) ReplaceDynamic(dynamic []Dynamic) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publishDynamic(dynamic)
}

// Sync runs load and publishes its result as the next generation. Concurrent
// syncs are serialized end to end, so a slower load can never overwrite the
// result of one that started after it. On error the current generation stays.
func (c *Catalog) Sync(ctx context.Context, load func(ctx context.Context) ([]Dynamic, error)) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dynamic, err := load(ctx)
	if err != nil {
		return nil, err
	}
	return c.publishDynamic(dynamic), nil
}

// publishDynamic requires c.mu.
func (c *Catalog) publishDynamic(dynamic []Dynamic) *Snapshot {
	prev := c.current.Load()
	next := NewSnapshot(prev.Generation+1, prev.Static(), dynamic, prev.allowed)
	c.current.Store(next)
	return next
}
