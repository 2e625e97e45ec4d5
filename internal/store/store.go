// Package store persists places in SQL with one H3 cell key column per
// indexed resolution and answers radius queries from those columns.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mohammed-shakir/placefinder/internal/core/model"
	"github.com/mohammed-shakir/placefinder/internal/core/observability"
	"github.com/mohammed-shakir/placefinder/internal/places"
	"github.com/mohammed-shakir/placefinder/internal/spatial"
)

const placeColumns = `id, name, category, lat, lng, city, address, description, phone, website,
	verified, h3_r5, h3_r7, h3_r9, created_at, updated_at`

type Store struct {
	db     *sqlx.DB
	driver string
}

var _ places.Store = (*Store)(nil)

// Open connects and applies the schema. For sqlite the dsn is a file path;
// WAL mode lets readers run alongside the single writer.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(4)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	s := &Store{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Driver() string { return s.driver }

// FindWithinRadius pre-filters on the cell column of the covering disk and
// keeps only rows whose great-circle distance is within radiusM.
func (s *Store) FindWithinRadius(ctx context.Context, center model.Coordinates, radiusM float64, cat *model.Category) ([]places.Match, error) {
	defer observeSince("find_within_radius", time.Now())

	cov, err := spatial.Cover(center, radiusM)
	if err != nil {
		return nil, err
	}
	col, err := spatial.Column(cov.Res)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + placeColumns + ` FROM places WHERE ` + col + ` IN (?)`
	args := []any{[]string(cov.Cells)}
	if cat != nil {
		q += ` AND category = ?`
		args = append(args, string(*cat))
	}
	q, args, err = sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("expand cells: %w", err)
	}

	var candidates []model.Place
	if err := s.db.SelectContext(ctx, &candidates, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select candidates res=%d cells=%d: %w", cov.Res, len(cov.Cells), err)
	}

	out := make([]places.Match, 0, len(candidates))
	for _, p := range candidates {
		d := spatial.DistanceM(center, p.Position())
		if d <= radiusM {
			out = append(out, places.Match{Place: p, DistanceM: d})
		}
	}
	observability.ObserveCandidates(cov.Res, len(candidates), len(out))
	return out, nil
}

func (s *Store) List(ctx context.Context, f model.ListFilter) ([]model.Place, error) {
	defer observeSince("list", time.Now())

	var (
		where []string
		args  []any
	)
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*f.Category))
	}
	if f.Verified != nil {
		where = append(where, "verified = ?")
		args = append(args, *f.Verified)
	}
	if f.City != "" {
		where = append(where, "LOWER(city) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.City)+"%")
	}

	q := `SELECT ` + placeColumns + ` FROM places`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	out := []model.Place{}
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (model.Place, error) {
	defer observeSince("get", time.Now())
	return getPlace(ctx, s.db, s.db.Rebind(`SELECT `+placeColumns+` FROM places WHERE id = ?`), id)
}

// Create stores p with freshly computed cell keys in the same insert.
func (s *Store) Create(ctx context.Context, p model.Place) (model.Place, error) {
	defer observeSince("create", time.Now())

	keys, err := spatial.KeysFor(p.Position())
	if err != nil {
		return model.Place{}, err
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	p.CellKeys = keys
	p.CreatedAt, p.UpdatedAt = now, now

	q := s.db.Rebind(`INSERT INTO places
		(name, category, lat, lng, city, address, description, phone, website, verified,
		 h3_r5, h3_r7, h3_r9, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	err = s.db.QueryRowxContext(ctx, q,
		p.Name, string(p.Category), p.Lat, p.Lng, p.City, p.Address, p.Description, p.Phone, p.Website, p.Verified,
		keys.R5, keys.R7, keys.R9, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return model.Place{}, fmt.Errorf("insert place: %w", err)
	}
	return p, nil
}

// Update rewrites every attribute of p.ID and its cell keys in one
// transaction holding a lock on that row only.
func (s *Store) Update(ctx context.Context, p model.Place) (model.Place, error) {
	defer observeSince("update", time.Now())

	keys, err := spatial.KeysFor(p.Position())
	if err != nil {
		return model.Place{}, err
	}

	var out model.Place
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.lockRow(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		p.CellKeys = keys
		p.CreatedAt = cur.CreatedAt
		p.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

		q := tx.Rebind(`UPDATE places SET
			name = ?, category = ?, lat = ?, lng = ?, city = ?, address = ?, description = ?,
			phone = ?, website = ?, verified = ?, h3_r5 = ?, h3_r7 = ?, h3_r9 = ?, updated_at = ?
			WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, q,
			p.Name, string(p.Category), p.Lat, p.Lng, p.City, p.Address, p.Description,
			p.Phone, p.Website, p.Verified, keys.R5, keys.R7, keys.R9, p.UpdatedAt,
			p.ID,
		); err != nil {
			return fmt.Errorf("update place %d: %w", p.ID, err)
		}
		out = p
		return nil
	})
	if err != nil {
		return model.Place{}, err
	}
	return out, nil
}

// Delete removes the place and returns its last stored state.
func (s *Store) Delete(ctx context.Context, id int64) (model.Place, error) {
	defer observeSince("delete", time.Now())

	var out model.Place
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := s.lockRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM places WHERE id = ?`), id); err != nil {
			return fmt.Errorf("delete place %d: %w", id, err)
		}
		out = cur
		return nil
	})
	if err != nil {
		return model.Place{}, err
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	defer observeSince("stats", time.Now())

	var rows []struct {
		Category string `db:"category"`
		Total    int    `db:"total"`
		Verified int    `db:"verified"`
	}
	q := `SELECT category, COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN verified THEN 1 ELSE 0 END), 0) AS verified
		FROM places GROUP BY category`
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return model.Stats{}, fmt.Errorf("place stats: %w", err)
	}

	st := model.Stats{ByCategory: make(map[model.Category]int, len(model.Categories()))}
	for _, c := range model.Categories() {
		st.ByCategory[c] = 0
	}
	for _, r := range rows {
		st.Total += r.Total
		st.Verified += r.Verified
		st.ByCategory[model.Category(r.Category)] = r.Total
	}
	return st, nil
}

func (s *Store) lockRow(ctx context.Context, tx *sqlx.Tx, id int64) (model.Place, error) {
	q := `SELECT ` + placeColumns + ` FROM places WHERE id = ?`
	if s.driver == DriverPostgres {
		q += ` FOR UPDATE`
	}
	return getPlace(ctx, tx, tx.Rebind(q), id)
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func getPlace(ctx context.Context, q sqlx.QueryerContext, query string, id int64) (model.Place, error) {
	var p model.Place
	if err := sqlx.GetContext(ctx, q, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Place{}, places.ErrNotFound
		}
		return model.Place{}, fmt.Errorf("get place %d: %w", id, err)
	}
	return p, nil
}

func observeSince(op string, start time.Time) {
	observability.ObserveStoreLatency(op, time.Since(start).Seconds())
}
