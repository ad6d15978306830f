package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-core/internal/domain"
)

type actorRepository struct {
	db querier
}

func (r *actorRepository) GetByID(ctx context.Context, id string) (*domain.Actor, error) {
	const query = `
        SELECT id, role, organization_id, display_name, email
        FROM actors WHERE id=$1`
	actor, err := scanActor(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return actor, nil
}

func (r *actorRepository) ListResponders(ctx context.Context, orgID *string) ([]domain.Actor, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if orgID != nil {
		const query = `
            SELECT id, role, organization_id, display_name, email
            FROM actors WHERE role=$1 AND organization_id=$2 ORDER BY id`
		rows, err = r.db.Query(ctx, query, domain.RoleOrgAdmin, *orgID)
	} else {
		const query = `
            SELECT id, role, organization_id, display_name, email
            FROM actors WHERE role=$1 ORDER BY id`
		rows, err = r.db.Query(ctx, query, domain.RoleSuperAdmin)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Actor{}
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *actor)
	}
	return result, rows.Err()
}

func (r *actorRepository) Upsert(ctx context.Context, actor *domain.Actor) error {
	const query = `
        INSERT INTO actors (id, role, organization_id, display_name, email)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET role=EXCLUDED.role, organization_id=EXCLUDED.organization_id,
            display_name=EXCLUDED.display_name, email=EXCLUDED.email`
	_, err := r.db.Exec(ctx, query,
		actor.ID,
		actor.Role,
		actor.OrganizationID,
		actor.DisplayName,
		actor.Email,
	)
	return err
}

func scanActor(row pgx.Row) (*domain.Actor, error) {
	var actor domain.Actor
	if err := row.Scan(
		&actor.ID,
		&actor.Role,
		&actor.OrganizationID,
		&actor.DisplayName,
		&actor.Email,
	); err != nil {
		return nil, err
	}
	return &actor, nil
}
