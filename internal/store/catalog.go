// Package store implements the Store: an in-memory indexed snapshot of
// tokens, pools and cycles loaded once from the persistent catalog.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
)

// catalogTokenRow mirrors one row of TokenInfo.
type catalogTokenRow struct {
	Address  string
	Symbol   string
	Name     string
	Decimals int
}

// catalogLPRow mirrors one row of LPInfo.
type catalogLPRow struct {
	Address       string
	Token1Address string
	Token2Address string
}

// catalogRouteRow mirrors one row of Route.
type catalogRouteRow struct {
	ID   int64
	Path string
}

// openCatalog opens the sqlite catalog file read-only. The caller must
// Close it; Store.Load always does so before returning, so the catalog
// connection is closed before any other component starts.
func openCatalog(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func readTokens(db *sql.DB) ([]catalogTokenRow, error) {
	rows, err := db.Query(`SELECT address, symbol, name, decimals FROM TokenInfo`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalogTokenRow
	for rows.Next() {
		var r catalogTokenRow
		if err := rows.Scan(&r.Address, &r.Symbol, &r.Name, &r.Decimals); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func readLPs(db *sql.DB) ([]catalogLPRow, error) {
	rows, err := db.Query(`SELECT address, token1_address, token2_address FROM LPInfo`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalogLPRow
	for rows.Next() {
		var r catalogLPRow
		if err := rows.Scan(&r.Address, &r.Token1Address, &r.Token2Address); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func readRoutes(db *sql.DB) ([]catalogRouteRow, error) {
	rows, err := db.Query(`SELECT id, path FROM Route`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalogRouteRow
	for rows.Next() {
		var r catalogRouteRow
		if err := rows.Scan(&r.ID, &r.Path); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseRoutePath decodes the Route.path JSON shape
// [[target_addr, [lp_addr]], ...] into ordered RouteSteps.
func parseRoutePath(raw string) ([]domain.RouteStep, error) {
	var hops [][2]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &hops); err != nil {
		return nil, &arberr.CatalogError{Cause: fmt.Errorf("malformed route path: %w", err)}
	}

	steps := make([]domain.RouteStep, 0, len(hops))
	for _, hop := range hops {
		var targetStr string
		if err := json.Unmarshal(hop[0], &targetStr); err != nil {
			return nil, &arberr.CatalogError{Cause: fmt.Errorf("malformed route hop target: %w", err)}
		}
		var lps []string
		if err := json.Unmarshal(hop[1], &lps); err != nil {
			return nil, &arberr.CatalogError{Cause: fmt.Errorf("malformed route hop lp list: %w", err)}
		}
		if len(lps) == 0 {
			return nil, &arberr.CatalogError{Cause: fmt.Errorf("route hop has no lp")}
		}

		target, err := domain.ParseAddress(targetStr)
		if err != nil {
			return nil, &arberr.CatalogError{Cause: err}
		}
		lp, err := domain.ParseAddress(lps[0])
		if err != nil {
			return nil, &arberr.CatalogError{Cause: err}
		}
		steps = append(steps, domain.RouteStep{Target: target, LP: lp})
	}
	if len(steps) < 2 || len(steps) > 5 {
		return nil, &arberr.CatalogError{Cause: fmt.Errorf("cycle length %d outside [2,5]", len(steps))}
	}
	return steps, nil
}
