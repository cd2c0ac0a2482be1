package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp_engine/internal/models"
	"scalp_engine/pkg/db"
)

// fakeConn отдаёт заранее заготовленные строки и запоминает запрос.
type fakeConn struct {
	rows  [][]any
	query string
	args  []any
}

func (c *fakeConn) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx pgx.Tx) error) error {
	return fmt.Errorf("not supported")
}

func (c *fakeConn) Conn() db.Transaction { return c }

func (c *fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	c.query, c.args = sql, args
	return &fakeRows{rows: c.rows, pos: -1}, nil
}

func (c *fakeConn) QueryRow(context.Context, string, ...interface{}) pgx.Row { return nil }

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dest for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *float64:
			*p = row[i].(float64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

func tradeRow(symbol string, pnl float64, closeAt time.Time) []any {
	return []any{symbol, "BUY", 0.5, 100.0, 100 * (1 + pnl/100), pnl,
		0.0004, 0.003, string(models.ResultFromPnL(pnl)), "take_profit",
		closeAt.Add(-5 * time.Minute), closeAt}
}

func TestTradesBySymbolQueriesOneDay(t *testing.T) {
	closeAt := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)
	conn := &fakeConn{rows: [][]any{
		tradeRow("BTCUSDT", 1.5, closeAt),
		tradeRow("BTCUSDT", -0.5, closeAt.Add(time.Hour)),
	}}
	store := NewPgStore(conn)

	trades, err := store.TradesBySymbol(context.Background(), "BTCUSDT", time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Contains(t, conn.query, "symbol = $3")
	require.Len(t, conn.args, 3)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), conn.args[0])
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), conn.args[1])
	assert.Equal(t, "BTCUSDT", conn.args[2])

	require.Len(t, trades, 2)
	assert.Equal(t, "BTCUSDT", trades[0].Symbol)
	assert.Equal(t, models.SideBuy, trades[0].Side)
	assert.Equal(t, models.TradeWin, trades[0].Result)
	assert.InDelta(t, 1.5, trades[0].PnLPercent, 1e-12)
	assert.Equal(t, closeAt, trades[0].CloseTime)
	assert.Equal(t, models.TradeLoss, trades[1].Result)
}

func TestDailyStatsReadsWholeDay(t *testing.T) {
	closeAt := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	conn := &fakeConn{rows: [][]any{
		tradeRow("BTCUSDT", 1, closeAt),
		tradeRow("ETHUSDT", -1, closeAt.Add(time.Minute)),
	}}

	st, err := NewPgStore(conn).DailyStats(context.Background(), closeAt)
	require.NoError(t, err)

	assert.NotContains(t, conn.query, "symbol =")
	assert.Len(t, conn.args, 2)
	assert.Equal(t, 2, st.Trades)
	assert.InDelta(t, 2.0, st.GrossPnL, 1e-12)
	assert.InDelta(t, 0.0, st.NetPnL, 1e-12)
}
