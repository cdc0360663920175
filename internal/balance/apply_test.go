package balance

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bx-custody/internal/errs"
	"bx-custody/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApply(t *testing.T) {
	base := model.Balance{
		Amount:      dec("100"),
		RealBalance: dec("40"),
	}

	t.Run("credit moves amount and provenance together", func(t *testing.T) {
		b, err := Apply(base, Adjustment{Amount: dec("10"), Real: dec("10")}, nil)
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(dec("110")))
		assert.True(t, b.RealBalance.Equal(dec("50")))
	})

	t.Run("amount never goes negative", func(t *testing.T) {
		_, err := Apply(base, Adjustment{Amount: dec("-100.000000000000000001")}, nil)
		assert.ErrorIs(t, err, errs.ErrInsufficientFunds)

		b, err := Apply(base, Adjustment{Amount: dec("-100")}, nil)
		require.NoError(t, err)
		assert.True(t, b.Amount.IsZero())
	})

	t.Run("failed guard moves nothing", func(t *testing.T) {
		guard := dec("100.01")
		b, err := Apply(base, Adjustment{Amount: dec("-1")}, &guard)
		assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
		assert.True(t, b.Amount.Equal(base.Amount))
		assert.True(t, b.RealBalance.Equal(base.RealBalance))
	})

	t.Run("satisfied guard proceeds", func(t *testing.T) {
		guard := dec("100")
		b, err := Apply(base, Adjustment{Amount: dec("-1")}, &guard)
		require.NoError(t, err)
		assert.True(t, b.Amount.Equal(dec("99")))
	})

	t.Run("provenance clamps at zero on over-decrement", func(t *testing.T) {
		b, err := Apply(base, Adjustment{Real: dec("-60"), Winnings: dec("-5")}, nil)
		require.NoError(t, err)
		assert.True(t, b.RealBalance.IsZero())
		assert.True(t, b.RealWinnings.IsZero())
		assert.True(t, b.Amount.Equal(base.Amount))
	})

	t.Run("frozen clamps at zero", func(t *testing.T) {
		b, err := Apply(base, Adjustment{Frozen: dec("-1")}, nil)
		require.NoError(t, err)
		assert.True(t, b.FrozenBalance.IsZero())
	})
}

// memLedger is an in-memory stand-in for the balances table with the same
// Apply semantics, used to drive the race-safety properties without a
// database.
type memLedger struct {
	mu   sync.Mutex
	rows map[string]model.Balance
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]model.Balance)}
}

func (m *memLedger) adjust(key string, adj Adjustment, guard *decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := Apply(m.rows[key], adj, guard)
	if err != nil {
		return err
	}
	m.rows[key] = b
	return nil
}

func (m *memLedger) get(key string) model.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key]
}

// N concurrent spenders against a balance that only covers some of them:
// the winners spend, the losers get insufficient funds, and the sum always
// balances. This is the linearized single-write discipline the store's
// conditional UPDATE provides.
func TestConcurrentGuardedSpends(t *testing.T) {
	ledger := newMemLedger()
	require.NoError(t, ledger.adjust("w1/USDT", Adjustment{Amount: dec("50")}, nil))

	const spenders = 100
	spend := dec("1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, losses := 0, 0
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ledger.adjust("w1/USDT", Adjustment{Amount: spend.Neg()}, nil)
			mu.Lock()
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
				losses++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, wins)
	assert.Equal(t, 50, losses)
	assert.True(t, ledger.get("w1/USDT").Amount.IsZero())
}

// stateTable adds the status-guarded transition to the harness: flip moves
// an entity from one status to another only if it still holds the expected
// one, the same discipline the conditional UPDATE ... WHERE status = $from
// enforces on deposit and trade rows.
type stateTable struct {
	mu     sync.Mutex
	status map[string]string
}

func (st *stateTable) flip(id, from, to string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.status[id] != from {
		return errs.ErrAlreadyProcessed
	}
	st.status[id] = to
	return nil
}

// N concurrent approvals of one pending entity: whoever wins the flip
// performs the single credit, everyone else gets ErrAlreadyProcessed, and
// the balance is credited exactly once.
func TestConcurrentSettlementCreditsOnce(t *testing.T) {
	ledger := newMemLedger()
	states := &stateTable{status: map[string]string{"d1": "pending"}}

	const attempts = 50
	credit := dec("10")

	var wg sync.WaitGroup
	var mu sync.Mutex
	credited, conflicts := 0, 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := states.flip("d1", "pending", "approved"); err != nil {
				mu.Lock()
				assert.ErrorIs(t, err, errs.ErrAlreadyProcessed)
				conflicts++
				mu.Unlock()
				return
			}
			err := ledger.adjust("w3/USDT", Adjustment{Amount: credit, Real: credit}, nil)
			mu.Lock()
			assert.NoError(t, err)
			credited++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	assert.Equal(t, attempts-1, conflicts)
	assert.True(t, ledger.get("w3/USDT").Amount.Equal(credit))
}

// Concurrent freezes and refunds conserve value: amount+frozen is invariant
// under the withdrawal request/reject legs.
func TestConcurrentFreezeRefundConservation(t *testing.T) {
	ledger := newMemLedger()
	require.NoError(t, ledger.adjust("w2/BTC", Adjustment{Amount: dec("10")}, nil))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hold := dec("0.25")
			if err := ledger.adjust("w2/BTC", Adjustment{Amount: hold.Neg(), Frozen: hold}, nil); err != nil {
				return
			}
			_ = ledger.adjust("w2/BTC", Adjustment{Amount: hold, Frozen: hold.Neg()}, nil)
		}()
	}
	wg.Wait()

	b := ledger.get("w2/BTC")
	assert.True(t, b.Amount.Add(b.FrozenBalance).Equal(dec("10")),
		"value leaked: amount=%s frozen=%s", b.Amount, b.FrozenBalance)
	assert.True(t, b.FrozenBalance.IsZero())
}
