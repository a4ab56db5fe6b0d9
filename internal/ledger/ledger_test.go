package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/reference"
	"github.com/ginjaninja78/asycuda-export/internal/validation"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(config.LedgerConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// Compile-time check that the ledger can back registration numbers.
var _ reference.Sequencer = (*Ledger)(nil)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.LedgerConfig{Driver: "none"})
	assert.ErrorContains(t, err, "unsupported ledger driver")
}

func TestNext_PerScopeSequences(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	for want := 1; want <= 3; want++ {
		got, err := l.Next(ctx, "LC", day)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := l.Next(ctx, "LC", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, got, "a new day starts a new sequence")

	got, err = l.Next(ctx, "VC", day)
	require.NoError(t, err)
	assert.Equal(t, 1, got, "prefixes are independent")
}

func TestNext_ConcurrentDrawsAreUnique(t *testing.T) {
	l := openTestLedger(t)
	day := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	const n = 20
	var wg sync.WaitGroup
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := l.Next(context.Background(), "LC", day)
			if assert.NoError(t, err) {
				results <- seq
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for seq := range results {
		assert.False(t, seen[seq], "duplicate sequence %d", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, n)
}

func testDeclaration() *declaration.Declaration {
	d := declaration.New(
		declaration.Entity{TaxID: "X1", Name: "Shop"},
		declaration.Entity{TaxID: "D1", Name: "Broker"},
	)
	d.RegistrationNumber = "LC20261017000001"
	d.Type = declaration.Type("EX1")
	d.CustomsOffice = "LCCAP"
	d.Currency = "XCD"
	d.AddItem(declaration.Item{CustomsValue: decimal.RequireFromString("90.00"), PackageCount: 2})
	d.AddItem(declaration.Item{CustomsValue: decimal.RequireFromString("10.50"), PackageCount: 1})
	return d
}

func TestRecord_GetAndUpsert(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	rec := NewRecord(testDeclaration(), &validation.Result{Valid: true, WarningCount: 1})
	rec.RunID = "run-1"
	rec.Artifacts = StringList{"LC20261017000001.xml", "LC20261017000001.txt"}
	rec.Status = StatusExported
	require.NoError(t, l.Record(ctx, &rec))

	got, err := l.Get(ctx, "LC20261017000001")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ItemCount)
	assert.Equal(t, 3, got.TotalPackages)
	assert.True(t, decimal.RequireFromString("100.50").Equal(got.TotalValue), got.TotalValue.String())
	assert.Equal(t, 1, got.WarningCount)
	assert.Equal(t, StringList{"LC20261017000001.xml", "LC20261017000001.txt"}, got.Artifacts)

	again := NewRecord(testDeclaration(), nil)
	again.RunID = "run-2"
	again.Status = StatusPartial
	require.NoError(t, l.Record(ctx, &again))

	got, err = l.Get(ctx, "LC20261017000001")
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, got.Status)
	assert.Equal(t, "run-2", got.RunID)

	recs, err := l.ListByRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	_, err = l.Get(ctx, "LC00000000000000")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, l.Ping(ctx))
}
