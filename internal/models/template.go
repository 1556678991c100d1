package models

import "time"

// Template is a named, reusable set of flat-mode effects. A submission
// that names a template gets Effects merged under its own effects.
type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Effects     map[string]any `json:"effects"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// TemplatePatch carries the optional fields of a template update.
type TemplatePatch struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Effects     *map[string]any `json:"effects,omitempty"`
}
