package cmd

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"

	"github.com/lepinkainen/shelfscan/internal/config"
	"github.com/lepinkainen/shelfscan/internal/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `items:
  - code: "012345678905"
    title: Board Game
    type: product
  - code: "036000291452"
    title: Tissue Box
    type: product
`

// setupCommandEnv points every component at files inside a sandbox and
// captures command output.
func setupCommandEnv(t *testing.T) (*testutil.TestEnv, *bytes.Buffer) {
	t.Helper()
	env := testutil.NewTestEnv(t)
	env.WriteFileString("catalog.yaml", testCatalog)

	testutil.SetTestConfigWithOptions(t,
		testutil.WithStore("sqlite", env.Path("inventory.db")),
		testutil.WithOwner("owner-1"),
	)
	config.SetDefaults(viper.GetViper())
	testutil.SetupTestCache(t, env)
	viper.Set("lookup.catalog_file", env.Path("catalog.yaml"))
	testutil.SetupExportDB(t, env)

	var out bytes.Buffer
	origStdout, origStdin := stdout, stdin
	stdout = &out
	t.Cleanup(func() { stdout, stdin = origStdout, origStdin })

	return env, &out
}

func TestScanCmd_SingleShot(t *testing.T) {
	_, out := setupCommandEnv(t)

	cmd := &ScanCmd{Codes: []string{"012345678905", "012345678905"}}
	require.NoError(t, cmd.Run())

	text := out.String()
	assert.Contains(t, text, "added")
	assert.Contains(t, text, "updated")
	assert.Contains(t, text, "qty 2")
}

func TestScanCmd_ReportsFailures(t *testing.T) {
	_, out := setupCommandEnv(t)

	cmd := &ScanCmd{Codes: []string{"12345", "012345678905"}}
	err := cmd.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 codes failed")
	assert.Contains(t, out.String(), "Board Game")
	assert.Contains(t, out.String(), "failed")
}

func TestScanCmd_BatchFromStdin(t *testing.T) {
	_, out := setupCommandEnv(t)
	stdin = strings.NewReader("# shelf 1\n012345678905\n\n036000291452\n")

	cmd := &ScanCmd{Batch: true}
	require.NoError(t, cmd.Run())

	text := out.String()
	assert.Contains(t, text, "Board Game")
	assert.Contains(t, text, "Tissue Box")
}

func TestScanCmd_File(t *testing.T) {
	env, out := setupCommandEnv(t)
	env.WriteFileString("codes.csv", "barcode,type\n012345678905,product\n")

	cmd := &ScanCmd{File: env.Path("codes.csv")}
	require.NoError(t, cmd.Run())
	assert.Contains(t, out.String(), "Board Game")
}

func TestScanCmd_NoInput(t *testing.T) {
	setupCommandEnv(t)
	stdin = strings.NewReader("")

	assert.Error(t, (&ScanCmd{}).Run())
	assert.Error(t, (&ScanCmd{Codes: []string{"012345678905"}, Type: "vinyl"}).Run())
}

func TestItemsCmd_ListsScannedItems(t *testing.T) {
	_, out := setupCommandEnv(t)

	require.NoError(t, (&ScanCmd{Codes: []string{"012345678905", "012345678905"}}).Run())
	out.Reset()

	require.NoError(t, (&ItemsCmd{}).Run())
	text := out.String()
	assert.Contains(t, text, "Board Game")
	assert.Contains(t, text, "012345678905")
	assert.Contains(t, text, "1 items")
}

func TestPriceCmd_Flat(t *testing.T) {
	_, out := setupCommandEnv(t)
	viper.Set("pricing.flat", "6.5")

	require.NoError(t, (&PriceCmd{Query: "Dune", Strategy: "flat"}).Run())
	text := out.String()
	assert.Contains(t, text, "6.50")
	assert.Contains(t, text, "via flat")
}

func TestPriceCmd_RejectsBadInput(t *testing.T) {
	setupCommandEnv(t)

	assert.Error(t, (&PriceCmd{}).Run())
	assert.Error(t, (&PriceCmd{ISBN: "12345"}).Run())
	assert.Error(t, (&PriceCmd{Query: "Dune", ListPrice: "cheap"}).Run())
	assert.Error(t, (&PriceCmd{Query: "Dune", Strategy: "auction"}).Run())
}

func TestExportCmd_SQLite(t *testing.T) {
	env, _ := setupCommandEnv(t)

	require.NoError(t, (&ScanCmd{Codes: []string{"012345678905", "036000291452"}}).Run())
	require.NoError(t, (&ExportCmd{}).Run())

	db, err := sql.Open("sqlite", env.Path("export.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM inventory").Scan(&count))
	assert.Equal(t, 2, count)
}
