package store

import (
	"database/sql"
	"fmt"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
)

// Store is the process-wide, read-mostly snapshot of tokens, pools and
// cycles. It is created before the Subscriber starts and released on
// shutdown after all subscriptions have been terminated. Reserves are
// written by the Hydrator at startup and afterwards only through the
// Evaluator; both hold the Index directly.
type Store struct {
	idx *domain.Index
}

// Load reads the full catalog at dbPath, normalizes addresses, parses
// every Route.path into a Cycle, and builds poolToCycles. The catalog
// connection is closed before Load returns, regardless of outcome.
func Load(dbPath string) (*Store, error) {
	db, err := openCatalog(dbPath)
	if err != nil {
		return nil, &arberr.CatalogError{Cause: err}
	}
	defer db.Close()

	idx := domain.NewIndex()

	if err := loadTokens(db, idx); err != nil {
		return nil, err
	}
	if err := loadPools(db, idx); err != nil {
		return nil, err
	}
	if err := loadCycles(db, idx); err != nil {
		return nil, err
	}

	return &Store{idx: idx}, nil
}

func loadTokens(db *sql.DB, idx *domain.Index) error {
	rows, err := readTokens(db)
	if err != nil {
		return &arberr.CatalogError{Cause: err}
	}
	for _, r := range rows {
		addr, err := domain.ParseAddress(r.Address)
		if err != nil {
			return &arberr.CatalogError{Cause: err}
		}
		if r.Decimals < 0 || r.Decimals > 30 {
			return &arberr.CatalogError{Cause: fmt.Errorf("token %s: decimals %d out of [0,30]", r.Address, r.Decimals)}
		}
		idx.Tokens[addr] = domain.Token{
			Address:  addr,
			Symbol:   r.Symbol,
			Name:     r.Name,
			Decimals: uint8(r.Decimals),
		}
	}
	return nil
}

func loadPools(db *sql.DB, idx *domain.Index) error {
	rows, err := readLPs(db)
	if err != nil {
		return &arberr.CatalogError{Cause: err}
	}
	for _, r := range rows {
		addr, err := domain.ParseAddress(r.Address)
		if err != nil {
			return &arberr.CatalogError{Cause: err}
		}
		t1, err := domain.ParseAddress(r.Token1Address)
		if err != nil {
			return &arberr.CatalogError{Cause: err}
		}
		t2, err := domain.ParseAddress(r.Token2Address)
		if err != nil {
			return &arberr.CatalogError{Cause: err}
		}
		idx.Pools[addr] = &domain.Pool{
			Address:  addr,
			Token1:   t1,
			Token2:   t2,
			Reserve1: domain.ZeroUint256(),
			Reserve2: domain.ZeroUint256(),
		}
	}
	return nil
}

func loadCycles(db *sql.DB, idx *domain.Index) error {
	rows, err := readRoutes(db)
	if err != nil {
		return &arberr.CatalogError{Cause: err}
	}

	for _, r := range rows {
		steps, err := parseRoutePath(r.Path)
		if err != nil {
			return err
		}
		cycle := domain.Cycle{ID: fmt.Sprintf("%d", r.ID), Steps: steps}
		if err := idx.AddCycle(cycle); err != nil {
			return &arberr.CatalogError{Cause: err}
		}
	}
	return nil
}

// Token returns the token at addr. Mutation of the returned value has
// no effect on the Store.
func (s *Store) Token(addr domain.Address) (domain.Token, bool) {
	return s.idx.Token(addr)
}

// Pool returns the pool at addr. The returned pointer must not be
// mutated by callers outside the Evaluator.
func (s *Store) Pool(addr domain.Address) (*domain.Pool, bool) {
	return s.idx.Pool(addr)
}

// Cycle returns the cycle with the given id.
func (s *Store) Cycle(id string) (domain.Cycle, bool) {
	return s.idx.Cycle(id)
}

// CyclesTouching returns the ids of cycles that step through pool.
func (s *Store) CyclesTouching(pool domain.Address) []string {
	return s.idx.CyclesTouching(pool)
}

// Pools returns every known pool address.
func (s *Store) Pools() []domain.Address {
	return s.idx.PoolAddresses()
}

// Index exposes the underlying Index for components (Evaluator,
// Hydrator) that need direct, lock-coordinated access rather than the
// read-only accessors above.
func (s *Store) Index() *domain.Index {
	return s.idx
}
