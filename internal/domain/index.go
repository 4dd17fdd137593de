package domain

// Index is the read-side view built once by Store.Load: flat maps keyed
// by address/id, plus the auxiliary poolToCycles index. None of these
// hold owning references back up the graph — cycles reference pools by
// address, pools reference tokens by address, and resolution always
// goes through these maps.
type Index struct {
	Tokens       map[Address]Token
	Pools        map[Address]*Pool
	Cycles       map[string]Cycle
	PoolToCycles map[Address][]string // ordered set: insertion order, deduplicated
}

// NewIndex returns an empty Index ready for population by a catalog
// loader.
func NewIndex() *Index {
	return &Index{
		Tokens:       make(map[Address]Token),
		Pools:        make(map[Address]*Pool),
		Cycles:       make(map[string]Cycle),
		PoolToCycles: make(map[Address][]string),
	}
}

// Token looks up a token by address. The zero Token with UnknownSymbol
// is substituted by callers that need a renderable value; Token itself
// just reports presence.
func (ix *Index) Token(addr Address) (Token, bool) {
	t, ok := ix.Tokens[addr]
	return t, ok
}

// TokenSymbol returns the token's symbol, or UnknownSymbol if addr is
// not a known token.
func (ix *Index) TokenSymbol(addr Address) string {
	if t, ok := ix.Tokens[addr]; ok {
		return t.Symbol
	}
	return UnknownSymbol
}

// TokenDecimals returns the token's decimals, or UnknownDecimals if addr
// is not a known token.
func (ix *Index) TokenDecimals(addr Address) uint8 {
	if t, ok := ix.Tokens[addr]; ok {
		return t.Decimals
	}
	return UnknownDecimals
}

// Pool looks up a pool by address.
func (ix *Index) Pool(addr Address) (*Pool, bool) {
	p, ok := ix.Pools[addr]
	return p, ok
}

// Cycle looks up a cycle by id.
func (ix *Index) Cycle(id string) (Cycle, bool) {
	c, ok := ix.Cycles[id]
	return c, ok
}

// CyclesTouching returns the ids of every cycle that steps through pool,
// in the order they were first registered during load.
func (ix *Index) CyclesTouching(pool Address) []string {
	return ix.PoolToCycles[pool]
}

// PoolAddresses returns every known pool address. Order is unspecified.
func (ix *Index) PoolAddresses() []Address {
	addrs := make([]Address, 0, len(ix.Pools))
	for a := range ix.Pools {
		addrs = append(addrs, a)
	}
	return addrs
}

// addPoolCycle appends cycleID to pool's touching-list if not already
// present. Called only during load, so a linear scan per pool (cycle
// counts are small, typically under a few hundred per pool) is fine.
func (ix *Index) addPoolCycle(pool Address, cycleID string) {
	for _, id := range ix.PoolToCycles[pool] {
		if id == cycleID {
			return
		}
	}
	ix.PoolToCycles[pool] = append(ix.PoolToCycles[pool], cycleID)
}

// AddCycle registers a cycle and updates poolToCycles for every step.
// Returns an error if any step references a pool not already present in
// ix.Pools.
func (ix *Index) AddCycle(c Cycle) error {
	for _, step := range c.Steps {
		if _, ok := ix.Pools[step.LP]; !ok {
			return &UnknownPoolRefError{Cycle: c.ID, Pool: step.LP}
		}
	}
	ix.Cycles[c.ID] = c
	for _, step := range c.Steps {
		ix.addPoolCycle(step.LP, c.ID)
	}
	return nil
}

// UnknownPoolRefError is returned when a cycle references a pool address
// absent from the catalog's LPInfo relation.
type UnknownPoolRefError struct {
	Cycle string
	Pool  Address
}

func (e *UnknownPoolRefError) Error() string {
	return "cycle " + e.Cycle + " references unknown pool " + AddressString(e.Pool)
}
