package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Model is a registered worker model. A model row only exists once its wallet
// is funded; the saga guarantees that ordering.
type Model struct {
	Id           string
	UserId       string
	TopicId      uint64
	WalletId     string
	WebhookUrl   string
	IsInferer    bool
	IsForecaster bool
	MaxGasPrice  *string
	Active       bool
	CreatedAt    time.Time
}

// WalletRecord is the persisted half of a provisioned wallet. The mnemonic
// itself lives in the secret store under SecretRef.
type WalletRecord struct {
	Id        string
	Address   string
	SecretRef string
}

// PerformanceMetric is one on-chain score sample for a model.
type PerformanceMetric struct {
	ModelId   string    `json:"model_id"`
	Timestamp time.Time `json:"timestamp"`
	EmaScore  string    `json:"ema_score"`
}

type Store struct {
	db *sql.DB
}

// Open opens the embedded SQLite database and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetMaxIdleConns(1)

	// Enable WAL; if it fails, return error (not optional for our usage)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	// Reasonable defaults; ignore failure as they are optional
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout=5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys=ON;")

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  address TEXT NOT NULL UNIQUE,
  secret_ref TEXT NOT NULL UNIQUE,
  created_at DATETIME NOT NULL DEFAULT (STRFTIME('%Y-%m-%d %H:%M:%f','now'))
);

CREATE TABLE IF NOT EXISTS models (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  topic_id INTEGER NOT NULL,
  wallet_id TEXT NOT NULL REFERENCES wallets(id),
  webhook_url TEXT NOT NULL,
  is_inferer BOOLEAN NOT NULL DEFAULT 1,
  is_forecaster BOOLEAN NOT NULL DEFAULT 0,
  max_gas_price TEXT,
  active BOOLEAN NOT NULL DEFAULT 1,
  created_at DATETIME NOT NULL DEFAULT (STRFTIME('%Y-%m-%d %H:%M:%f','now'))
);

CREATE TABLE IF NOT EXISTS performance_metrics (
  model_id TEXT NOT NULL REFERENCES models(id),
  timestamp DATETIME NOT NULL,
  ema_score TEXT NOT NULL,
  PRIMARY KEY (model_id, timestamp)
);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// SaveModelWithWallet inserts the wallet row and the model row in a single
// transaction. This is the saga's persistence step: either both rows land or
// neither does.
func (s *Store) SaveModelWithWallet(ctx context.Context, m Model, w WalletRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets(id, address, secret_ref) VALUES(?, ?, ?)`,
		w.Id, w.Address, w.SecretRef); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO models(id, user_id, topic_id, wallet_id, webhook_url, is_inferer, is_forecaster, max_gas_price, active)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Id, m.UserId, m.TopicId, w.Id, m.WebhookUrl, m.IsInferer, m.IsForecaster, m.MaxGasPrice, m.Active); err != nil {
		return err
	}
	return tx.Commit()
}

const modelColumns = `m.id, m.user_id, m.topic_id, m.wallet_id, m.webhook_url, m.is_inferer, m.is_forecaster, m.max_gas_price, m.active, m.created_at`

func scanModel(row interface{ Scan(...any) error }) (Model, error) {
	var m Model
	if err := row.Scan(&m.Id, &m.UserId, &m.TopicId, &m.WalletId, &m.WebhookUrl,
		&m.IsInferer, &m.IsForecaster, &m.MaxGasPrice, &m.Active, &m.CreatedAt); err != nil {
		return Model{}, err
	}
	return m, nil
}

// GetModel returns the model by id; ok=false if none.
func (s *Store) GetModel(ctx context.Context, id string) (Model, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models m WHERE m.id = ?`, id)
	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return Model{}, false, nil
	}
	if err != nil {
		return Model{}, false, err
	}
	return m, true, nil
}

// ListModels returns all models ordered by creation time.
func (s *Store) ListModels(ctx context.Context) ([]Model, error) {
	return s.queryModels(ctx, `SELECT `+modelColumns+` FROM models m ORDER BY m.created_at, m.id`)
}

// ListActiveModels returns only models eligible for scheduling.
func (s *Store) ListActiveModels(ctx context.Context) ([]Model, error) {
	return s.queryModels(ctx, `SELECT `+modelColumns+` FROM models m WHERE m.active = 1 ORDER BY m.created_at, m.id`)
}

func (s *Store) queryModels(ctx context.Context, q string, args ...any) ([]Model, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetModelActive flips the scheduling flag. ok=false if the model is unknown.
func (s *Store) SetModelActive(ctx context.Context, id string, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE models SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// GetWallet returns the wallet row by id; ok=false if none.
func (s *Store) GetWallet(ctx context.Context, id string) (WalletRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, address, secret_ref FROM wallets WHERE id = ?`, id)
	var w WalletRecord
	if err := row.Scan(&w.Id, &w.Address, &w.SecretRef); err != nil {
		if err == sql.ErrNoRows {
			return WalletRecord{}, false, nil
		}
		return WalletRecord{}, false, err
	}
	return w, true, nil
}

// InsertPerformanceMetric appends one score sample. Replayed samples for the
// same (model, timestamp) are ignored, so the collector can re-read history
// safely.
func (s *Store) InsertPerformanceMetric(ctx context.Context, m PerformanceMetric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO performance_metrics(model_id, timestamp, ema_score) VALUES(?, ?, ?)`,
		m.ModelId, m.Timestamp.UTC(), m.EmaScore)
	return err
}

// ListPerformanceMetrics returns samples for a model, newest first.
func (s *Store) ListPerformanceMetrics(ctx context.Context, modelId string, limit int) ([]PerformanceMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT model_id, timestamp, ema_score FROM performance_metrics WHERE model_id = ? ORDER BY timestamp DESC LIMIT ?`,
		modelId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PerformanceMetric
	for rows.Next() {
		var m PerformanceMetric
		if err := rows.Scan(&m.ModelId, &m.Timestamp, &m.EmaScore); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
