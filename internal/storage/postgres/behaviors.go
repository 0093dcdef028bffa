package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/huntbot/internal/hunt/behavior"
)

// ErrBehaviorNotFound is returned when a behavior lookup yields no results.
var ErrBehaviorNotFound = errors.New("behavior not found")

// BehaviorRepository persists per-creature-type rule sets. Abilities and items are
// stored as JSONB arrays alongside the scalar columns.
type BehaviorRepository struct {
	db *pgxpool.Pool
}

// NewBehaviorRepository creates a BehaviorRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewBehaviorRepository(db *pgxpool.Pool) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

const behaviorColumns = `name, attack, priority, danger, keep_distance, chase, abilities, items`

// Save inserts or replaces the rule set keyed by cfg.Name.
//
// Precondition: cfg must pass Validate.
// Postcondition: The row for behavior.Key(cfg.Name) matches cfg.
func (r *BehaviorRepository) Save(ctx context.Context, cfg behavior.Config) error {
	cfg.Name = behavior.Key(cfg.Name)
	if err := cfg.Validate(); err != nil {
		return err
	}
	abilities, err := marshalList(cfg.Abilities)
	if err != nil {
		return fmt.Errorf("encoding abilities: %w", err)
	}
	items, err := marshalList(cfg.Items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO behaviors (`+behaviorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			attack        = EXCLUDED.attack,
			priority      = EXCLUDED.priority,
			danger        = EXCLUDED.danger,
			keep_distance = EXCLUDED.keep_distance,
			chase         = EXCLUDED.chase,
			abilities     = EXCLUDED.abilities,
			items         = EXCLUDED.items,
			updated_at    = NOW()`,
		cfg.Name, cfg.AttackEnabled, cfg.PriorityWeight, cfg.DangerRating,
		cfg.KeepDistance, cfg.Chase, abilities, items,
	)
	if err != nil {
		return fmt.Errorf("saving behavior %q: %w", cfg.Name, err)
	}
	return nil
}

// Get returns the rule set for name.
//
// Postcondition: Returns ErrBehaviorNotFound when no row matches.
func (r *BehaviorRepository) Get(ctx context.Context, name string) (behavior.Config, error) {
	row := r.db.QueryRow(ctx, `SELECT `+behaviorColumns+` FROM behaviors WHERE name = $1`, behavior.Key(name))
	cfg, err := scanBehavior(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return behavior.Config{}, ErrBehaviorNotFound
		}
		return behavior.Config{}, fmt.Errorf("querying behavior %q: %w", name, err)
	}
	return cfg, nil
}

// List returns every stored rule set ordered by name.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *BehaviorRepository) List(ctx context.Context) ([]behavior.Config, error) {
	rows, err := r.db.Query(ctx, `SELECT `+behaviorColumns+` FROM behaviors ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing behaviors: %w", err)
	}
	defer rows.Close()

	var out []behavior.Config
	for rows.Next() {
		cfg, err := scanBehavior(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning behavior: %w", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating behaviors: %w", err)
	}
	return out, nil
}

// Delete removes the rule set for name.
//
// Postcondition: Returns ErrBehaviorNotFound when no row was deleted.
func (r *BehaviorRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM behaviors WHERE name = $1`, behavior.Key(name))
	if err != nil {
		return fmt.Errorf("deleting behavior %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBehaviorNotFound
	}
	return nil
}

// SinkFor returns a behavior.Sink that saves through the repository using ctx.
func (r *BehaviorRepository) SinkFor(ctx context.Context) behavior.Sink {
	return behavior.SinkFunc(func(cfg behavior.Config) error {
		return r.Save(ctx, cfg)
	})
}

func scanBehavior(row pgx.Row) (behavior.Config, error) {
	var (
		cfg              behavior.Config
		abilities, items []byte
	)
	if err := row.Scan(
		&cfg.Name, &cfg.AttackEnabled, &cfg.PriorityWeight, &cfg.DangerRating,
		&cfg.KeepDistance, &cfg.Chase, &abilities, &items,
	); err != nil {
		return behavior.Config{}, err
	}
	if err := json.Unmarshal(abilities, &cfg.Abilities); err != nil {
		return behavior.Config{}, fmt.Errorf("decoding abilities for %q: %w", cfg.Name, err)
	}
	if err := json.Unmarshal(items, &cfg.Items); err != nil {
		return behavior.Config{}, fmt.Errorf("decoding items for %q: %w", cfg.Name, err)
	}
	return cfg, nil
}

// marshalList encodes a slice as a JSON array; nil encodes as [] to satisfy NOT NULL.
func marshalList[T any](list []T) ([]byte, error) {
	if list == nil {
		list = []T{}
	}
	return json.Marshal(list)
}
