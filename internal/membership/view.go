package membership

import (
	"sort"
	"strings"
	"sync"

	"stock_digest/internal/domain"
)

// View is a local, set-based cache of one account's watchlist symbols kept in
// sync by applying change events. Duplicate and out-of-order events for the
// same symbol converge to the same state.
type View struct {
	mu        sync.RWMutex
	accountID string
	symbols   map[string]string
}

func NewView(accountID string, initial []domain.WatchlistEntry) *View {
	v := &View{
		accountID: accountID,
		symbols:   make(map[string]string, len(initial)),
	}
	for _, e := range initial {
		v.symbols[key(e.Symbol)] = e.CompanyName
	}
	return v
}

// Apply updates the view. Events for other accounts are ignored.
func (v *View) Apply(event domain.MembershipChangeEvent) {
	if event.AccountID != "" && event.AccountID != v.accountID {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	k := key(event.Symbol)
	switch event.Action {
	case domain.MembershipAdded:
		if _, ok := v.symbols[k]; !ok {
			v.symbols[k] = event.CompanyName
		}
	case domain.MembershipRemoved:
		delete(v.symbols, k)
	}
}

// Attach subscribes the view to bus.
func (v *View) Attach(bus *Bus) (unsubscribe func()) {
	return bus.Subscribe(v.Apply)
}

func (v *View) Contains(symbol string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.symbols[key(symbol)]
	return ok
}

func (v *View) Symbols() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, 0, len(v.symbols))
	for s := range v.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.symbols)
}

func key(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
