package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ProbDesk/internal/domain/models"
	domrepo "ProbDesk/internal/domain/repository"
	pkgch "ProbDesk/pkg/clickhouse"
	applogger "ProbDesk/pkg/logger"
)

const snapshotColumns = "ts, market_id, market_question, category, market_price, implied_probability, ai_probability, divergence, divergence_percent, volume_24h, liquidity_depth, confidence_score"

// ClickHouseSnapshotArchive implements SnapshotArchive for ClickHouse.
type ClickHouseSnapshotArchive struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	table    string
	l        *applogger.Logger
}

func NewClickHouseSnapshotArchive(ch *pkgch.Client, table string, l *applogger.Logger) domrepo.SnapshotArchive {
	return &ClickHouseSnapshotArchive{ch: ch, db: ch.DB(), database: ch.Database(), table: table, l: l}
}

func (s *ClickHouseSnapshotArchive) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, pkgch.SnapshotSchema(s.database, s.table))
}

func (s *ClickHouseSnapshotArchive) qualified() string {
	return s.database + "." + s.table
}

func (s *ClickHouseSnapshotArchive) StoreBatch(ctx context.Context, snapshots []models.ProbabilitySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	// multi-row VALUES, chunked to bound statement size
	const chunkSize = 2000
	for start := 0; start < len(snapshots); start += chunkSize {
		end := min(start+chunkSize, len(snapshots))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*12)
		for _, sn := range snapshots[start:end] {
			if sn.MarketID == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				sn.Timestamp.UTC(),
				sn.MarketID,
				sn.MarketQuestion,
				sn.Category,
				sn.MarketPrice,
				sn.ImpliedProbability,
				sn.AIProbability,
				sn.Divergence,
				sn.DivergencePercent,
				sn.Volume24h,
				sn.LiquidityDepth,
				sn.ConfidenceScore,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.qualified(), snapshotColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse store_batch error",
					applogger.String("table", s.qualified()),
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("clickhouse insert snapshots: %w", err)
		}
	}
	return nil
}

// Query returns up to limit snapshots in [from, to], oldest first.
func (s *ClickHouseSnapshotArchive) Query(ctx context.Context, marketID string, from, to time.Time, limit int) ([]models.ProbabilitySnapshot, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT %s FROM %s
			WHERE market_id = ? AND ts >= ? AND ts <= ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC`, snapshotColumns, snapshotColumns, s.qualified())
	rows, err := s.db.QueryContext(ctx, q, marketID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]models.ProbabilitySnapshot, 0, limit)
	for rows.Next() {
		var sn models.ProbabilitySnapshot
		var vol, depth, conf sql.NullFloat64
		if err := rows.Scan(&sn.Timestamp, &sn.MarketID, &sn.MarketQuestion, &sn.Category,
			&sn.MarketPrice, &sn.ImpliedProbability, &sn.AIProbability, &sn.Divergence, &sn.DivergencePercent,
			&vol, &depth, &conf); err != nil {
			return nil, fmt.Errorf("clickhouse scan snapshot: %w", err)
		}
		sn.Volume24h, sn.LiquidityDepth, sn.ConfidenceScore = nullable(vol), nullable(depth), nullable(conf)
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *ClickHouseSnapshotArchive) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *ClickHouseSnapshotArchive) Close() error {
	return s.ch.Close()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
