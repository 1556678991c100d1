package repositories

import (
	"context"
	"errors"

	"montage/internal/httpkit"
	"montage/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTemplateNotFound = errors.New("template not found")
var ErrTemplateNameExists = errors.New("template name already exists")

const schema = `
CREATE TABLE IF NOT EXISTS effect_templates (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	effects     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at  TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS effect_templates_name_live
	ON effect_templates (name) WHERE deleted_at IS NULL;
`

type TemplateRepository struct {
	db *pgxpool.Pool
}

func NewTemplateRepository(db *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// EnsureSchema creates the templates table when missing.
func (r *TemplateRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *TemplateRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Effects == nil {
		t.Effects = map[string]any{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO effect_templates (id, name, description, effects)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at
	`, t.ID, t.Name, t.Description, t.Effects).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return ErrTemplateNameExists
		}
		return err
	}
	return nil
}

func (r *TemplateRepository) List(ctx context.Context) ([]models.Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, description, effects, created_at, updated_at
		FROM effect_templates
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Template{}
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Effects, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*models.Template, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTemplateNotFound
	}
	var t models.Template
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description, effects, created_at, updated_at
		FROM effect_templates
		WHERE id=$1 AND deleted_at IS NULL
	`, id).Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.Effects,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) Update(ctx context.Context, id string, p models.TemplatePatch) (*models.Template, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		current.Name = *p.Name
	}
	if p.Description != nil {
		current.Description = *p.Description
	}
	if p.Effects != nil {
		current.Effects = *p.Effects
	}

	err = r.db.QueryRow(ctx, `
		UPDATE effect_templates
		SET name=$2, description=$3, effects=$4, updated_at=now()
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING updated_at
	`, id, current.Name, current.Description, current.Effects).Scan(&current.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return nil, ErrTemplateNameExists
		}
		return nil, err
	}
	return current, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrTemplateNotFound
	}
	cmd, err := r.db.Exec(ctx, `
		UPDATE effect_templates
		SET deleted_at=now()
		WHERE id=$1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Effects returns a live template's effects for submission merging.
func (r *TemplateRepository) Effects(ctx context.Context, id string) (map[string]any, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Effects, nil
}
