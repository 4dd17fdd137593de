package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/RedBird96/detect-amm-imbalance/internal/arberr"
	"github.com/RedBird96/detect-amm-imbalance/internal/domain"
	"github.com/stretchr/testify/require"
)

const schema = `
CREATE TABLE TokenInfo (address TEXT PRIMARY KEY, symbol TEXT, name TEXT, decimals INTEGER);
CREATE TABLE LPInfo (address TEXT PRIMARY KEY, token1_address TEXT, token2_address TEXT);
CREATE TABLE Route (id INTEGER PRIMARY KEY, path TEXT, created_at DATETIME);
`

const (
	weth = "0x1111111111111111111111111111111111111111"
	usdc = "0x2222222222222222222222222222222222222222"
	lp1  = "0x3333333333333333333333333333333333333333"
)

func newCatalog(t *testing.T, populate func(db *sql.DB)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(schema)
	require.NoError(t, err)
	populate(db)
	return path
}

func TestLoadBuildsIndex(t *testing.T) {
	path := newCatalog(t, func(db *sql.DB) {
		_, err := db.Exec(`INSERT INTO TokenInfo VALUES (?, 'WETH', 'Wrapped Ether', 18)`, weth)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO TokenInfo VALUES (?, 'USDC', 'USD Coin', 6)`, usdc)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO LPInfo VALUES (?, ?, ?)`, lp1, weth, usdc)
		require.NoError(t, err)
		path := `[["` + usdc + `", ["` + lp1 + `"]], ["` + weth + `", ["` + lp1 + `"]]]`
		_, err = db.Exec(`INSERT INTO Route (id, path, created_at) VALUES (1, ?, CURRENT_TIMESTAMP)`, path)
		require.NoError(t, err)
	})

	st, err := Load(path)
	require.NoError(t, err)

	tok, ok := st.Token(mustAddr(t, weth))
	require.True(t, ok)
	require.Equal(t, "WETH", tok.Symbol)
	require.Equal(t, uint8(18), tok.Decimals)

	pool, ok := st.Pool(mustAddr(t, lp1))
	require.True(t, ok)
	require.True(t, pool.Reserve1.IsZero())
	require.True(t, pool.Reserve2.IsZero())

	cycle, ok := st.Cycle("1")
	require.True(t, ok)
	require.Len(t, cycle.Steps, 2)

	require.Equal(t, []string{"1"}, st.CyclesTouching(mustAddr(t, lp1)))
}

func TestLoadRejectsUnknownPoolReference(t *testing.T) {
	unknownLP := "0x4444444444444444444444444444444444444444"
	path := newCatalog(t, func(db *sql.DB) {
		_, err := db.Exec(`INSERT INTO TokenInfo VALUES (?, 'WETH', 'Wrapped Ether', 18)`, weth)
		require.NoError(t, err)
		routePath := `[["` + weth + `", ["` + unknownLP + `"]], ["` + usdc + `", ["` + unknownLP + `"]]]`
		_, err = db.Exec(`INSERT INTO Route (id, path, created_at) VALUES (1, ?, CURRENT_TIMESTAMP)`, routePath)
		require.NoError(t, err)
	})

	_, err := Load(path)
	require.Error(t, err)
	var catErr *arberr.CatalogError
	require.ErrorAs(t, err, &catErr)
}

func TestLoadRejectsMalformedRouteJSON(t *testing.T) {
	path := newCatalog(t, func(db *sql.DB) {
		_, err := db.Exec(`INSERT INTO Route (id, path, created_at) VALUES (1, 'not json', CURRENT_TIMESTAMP)`)
		require.NoError(t, err)
	})

	_, err := Load(path)
	require.Error(t, err)
	var catErr *arberr.CatalogError
	require.ErrorAs(t, err, &catErr)
}

func TestLoadRejectsOutOfRangeDecimals(t *testing.T) {
	path := newCatalog(t, func(db *sql.DB) {
		_, err := db.Exec(`INSERT INTO TokenInfo VALUES (?, 'BAD', 'Bad Token', 99)`, weth)
		require.NoError(t, err)
	})

	_, err := Load(path)
	require.Error(t, err)
}

func mustAddr(t *testing.T, s string) domain.Address {
	t.Helper()
	addr, err := domain.ParseAddress(s)
	require.NoError(t, err)
	return addr
}
