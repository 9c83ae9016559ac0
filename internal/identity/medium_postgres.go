package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/msbot/internal/platform/db"
	"github.com/odyssey-erp/msbot/internal/rbac"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS bot_principals (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    role        TEXT NOT NULL,
    added_at    TIMESTAMPTZ,
    added_by    TEXT NOT NULL DEFAULT '',
    updated_at  TIMESTAMPTZ,
    updated_by  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS bot_identity_meta (
    singleton    BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    last_updated TIMESTAMPTZ NOT NULL
);`

var principalColumns = []string{"id", "name", "email", "role", "added_at", "added_by", "updated_at", "updated_by"}

// PostgresMedium stores principals in the bot_principals table. Every save
// rewrites the table inside one transaction.
type PostgresMedium struct {
	pool *pgxpool.Pool
}

// NewPostgresMedium constructs a PostgresMedium.
func NewPostgresMedium(pool *pgxpool.Pool) *PostgresMedium {
	return &PostgresMedium{pool: pool}
}

// Name identifies the medium in logs.
func (m *PostgresMedium) Name() string { return "postgres" }

// EnsureSchema creates the backing tables when missing.
func (m *PostgresMedium) EnsureSchema(ctx context.Context) error {
	if m == nil || m.pool == nil {
		return errors.New("identity: postgres pool not configured")
	}
	if _, err := m.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("identity: ensure schema: %w", err)
	}
	return nil
}

// Load reads every principal row.
func (m *PostgresMedium) Load(ctx context.Context) (Snapshot, error) {
	if m == nil || m.pool == nil {
		return Snapshot{}, errors.New("identity: postgres pool not configured")
	}
	rows, err := m.pool.Query(ctx, `SELECT id, name, email, role, added_at, added_by, updated_at, updated_by FROM bot_principals ORDER BY id`)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var (
			p         Principal
			role      string
			addedAt   *time.Time
			updatedAt *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &role, &addedAt, &p.AddedBy, &updatedAt, &p.UpdatedBy); err != nil {
			return Snapshot{}, err
		}
		p.Role, err = rbac.ParseRole(role)
		if err != nil {
			p.Role = rbac.RoleBanned
			snap.Demoted = append(snap.Demoted, p.ID)
		}
		if addedAt != nil {
			p.AddedAt = *addedAt
		}
		if updatedAt != nil {
			p.UpdatedAt = *updatedAt
		}
		snap.Principals = append(snap.Principals, p)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	var last time.Time
	err = m.pool.QueryRow(ctx, `SELECT last_updated FROM bot_identity_meta WHERE singleton`).Scan(&last)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, err
	}
	snap.LastUpdated = last
	return snap, nil
}

// Save replaces the table contents with snap.
func (m *PostgresMedium) Save(ctx context.Context, snap Snapshot) error {
	if m == nil || m.pool == nil {
		return errors.New("identity: postgres pool not configured")
	}
	return db.WithTx(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM bot_principals`); err != nil {
			return err
		}
		if len(snap.Principals) > 0 {
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"bot_principals"}, principalColumns, pgx.CopyFromRows(principalRows(snap.Principals))); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO bot_identity_meta (singleton, last_updated) VALUES (TRUE, $1)
ON CONFLICT (singleton) DO UPDATE SET last_updated = EXCLUDED.last_updated`, snap.LastUpdated)
		return err
	})
}

func principalRows(ps []Principal) [][]any {
	rows := make([][]any, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, []any{
			p.ID,
			p.Name,
			p.Email,
			string(p.Role),
			nullableTime(p.AddedAt),
			p.AddedBy,
			nullableTime(p.UpdatedAt),
			p.UpdatedBy,
		})
	}
	return rows
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
