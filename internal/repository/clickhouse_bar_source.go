package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	pkgch "PairPulse/pkg/clickhouse"
	applogger "PairPulse/pkg/logger"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHBarSource reads historical bars for warm start. It never writes.
type CHBarSource struct {
	db    *sql.DB
	query string
	l     *applogger.Logger
}

var _ domrepo.BarSource = (*CHBarSource)(nil)

// NewCHBarSource builds a source over table, which must hold
// (symbol, timeframe, open_time, open, high, low, close, volume, vwap).
func NewCHBarSource(ch *pkgch.Client, table string, l *applogger.Logger) (*CHBarSource, error) {
	q, err := latestBarsQuery(table)
	if err != nil {
		return nil, err
	}
	return &CHBarSource{db: ch.DB(), query: q, l: l.With("clickhouse-bars")}, nil
}

func latestBarsQuery(table string) (string, error) {
	if !identRe.MatchString(table) {
		return "", fmt.Errorf("invalid clickhouse table name %q", table)
	}
	return fmt.Sprintf(`
        SELECT open_time, open, high, low, close, volume, vwap
        FROM %s
        WHERE symbol = ? AND timeframe = ?
        ORDER BY open_time DESC
        LIMIT ?
    `, table), nil
}

// LoadBars returns the latest limit bars for symbol, oldest first.
func (s *CHBarSource) LoadBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, s.query, symbol, string(tf), limit)
	if err != nil {
		s.l.Error("latest bars query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, &errs.Error{Kind: errs.KindUpstreamUnavailable, Op: "clickhouse.bars", Symbol: symbol, Wrapped: err}
	}
	defer rows.Close()

	out := make([]models.Bar, 0, limit)
	for rows.Next() {
		b := models.Bar{Symbol: symbol, Timeframe: tf}
		if err := rows.Scan(&b.OpenTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VWAP); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.OpenTime = b.OpenTime.UTC()
		b.Notional = b.VWAP * b.Volume
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("latest bars ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}
