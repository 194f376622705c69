package repo

import (
	"context"
	"database/sql"

	"bookline/internal/domain"
)

func (r Repo) InsertActor(ctx context.Context, a domain.Actor) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO actors(id,role,name,created_at) VALUES (?,?,?,?)`,
		a.ID, a.Role, nullable(a.Name), a.CreatedAt)
	return err
}

// EnsureActor inserts the actor when it does not exist yet.
func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, id, role, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, role, created_at) VALUES (?,?,?)`, id, role, now)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	err := r.DB.QueryRowContext(ctx, `SELECT id,role,COALESCE(name,''),created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.Role, &a.Name, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListActors(ctx context.Context, role string) ([]domain.Actor, error) {
	query := `SELECT id,role,COALESCE(name,''),created_at FROM actors`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		var name string
		if err := rows.Scan(&a.ID, &a.Role, &name, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Name = name
		res = append(res, a)
	}
	return res, rows.Err()
}
