package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ProbDesk/internal/domain/models"
	domrepo "ProbDesk/internal/domain/repository"

	_ "modernc.org/sqlite"
)

// SQLiteSnapshotArchive is a single-file archive for local deployments.
type SQLiteSnapshotArchive struct {
	db *sql.DB
}

// NewSQLiteSnapshotArchive opens or creates the database at path. ":memory:" is accepted.
func NewSQLiteSnapshotArchive(path string) (*SQLiteSnapshotArchive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	return &SQLiteSnapshotArchive{db: db}, nil
}

var _ domrepo.SnapshotArchive = (*SQLiteSnapshotArchive)(nil)

func (s *SQLiteSnapshotArchive) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS probability_snapshots (
			market_id           TEXT NOT NULL,
			ts                  INTEGER NOT NULL,
			market_question     TEXT,
			category            TEXT,
			market_price        REAL NOT NULL,
			implied_probability REAL NOT NULL,
			ai_probability      REAL NOT NULL,
			divergence          REAL NOT NULL,
			divergence_percent  REAL NOT NULL,
			volume_24h          REAL,
			liquidity_depth     REAL,
			confidence_score    REAL,
			PRIMARY KEY (market_id, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON probability_snapshots(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite schema: %w", err)
		}
	}
	return nil
}

// StoreBatch upserts; a repeated (market_id, ts) replaces the earlier row.
func (s *SQLiteSnapshotArchive) StoreBatch(ctx context.Context, snapshots []models.ProbabilitySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO probability_snapshots
			(market_id, ts, market_question, category, market_price, implied_probability,
			 ai_probability, divergence, divergence_percent, volume_24h, liquidity_depth, confidence_score)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sn := range snapshots {
		if sn.MarketID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			sn.MarketID, sn.Timestamp.UnixNano(), sn.MarketQuestion, sn.Category,
			sn.MarketPrice, sn.ImpliedProbability, sn.AIProbability, sn.Divergence, sn.DivergencePercent,
			sn.Volume24h, sn.LiquidityDepth, sn.ConfidenceScore,
		); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", sn.MarketID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}

// Query returns up to limit snapshots in [from, to], oldest first, keeping the newest rows.
func (s *SQLiteSnapshotArchive) Query(ctx context.Context, marketID string, from, to time.Time, limit int) ([]models.ProbabilitySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, ts, market_question, category, market_price, implied_probability,
		       ai_probability, divergence, divergence_percent, volume_24h, liquidity_depth, confidence_score
		FROM (
			SELECT * FROM probability_snapshots
			WHERE market_id = ? AND ts >= ? AND ts <= ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC`,
		marketID, from.UnixNano(), to.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.ProbabilitySnapshot
	for rows.Next() {
		var (
			sn               models.ProbabilitySnapshot
			ts               int64
			question, cat    sql.NullString
			vol, depth, conf sql.NullFloat64
		)
		if err := rows.Scan(&sn.MarketID, &ts, &question, &cat,
			&sn.MarketPrice, &sn.ImpliedProbability, &sn.AIProbability, &sn.Divergence, &sn.DivergencePercent,
			&vol, &depth, &conf); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		sn.Timestamp = time.Unix(0, ts).UTC()
		sn.MarketQuestion, sn.Category = question.String, cat.String
		sn.Volume24h, sn.LiquidityDepth, sn.ConfidenceScore = nullable(vol), nullable(depth), nullable(conf)
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *SQLiteSnapshotArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteSnapshotArchive) Close() error {
	return s.db.Close()
}
