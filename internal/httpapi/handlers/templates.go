package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"montage/internal/effects"
	"montage/internal/httpkit"
	"montage/internal/models"
	"montage/internal/pkg/errors"
	"montage/internal/repositories"
)

type CreateTemplateRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Effects     map[string]any `json:"effects"`
}

func (h *Handler) PostTemplate(w http.ResponseWriter, r *http.Request) error {
	if h.templates == nil {
		return errors.Unavailable("templates")
	}

	var req CreateTemplateRequest
	if err := httpkit.DecodeStrict(r, &req); err != nil {
		return errors.Validation("invalid json body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errors.ValidationField("name", "name is required")
	}
	if err := checkEffects(req.Effects); err != nil {
		return err
	}

	t := &models.Template{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Effects:     req.Effects,
	}
	if err := h.templates.Create(r.Context(), t); err != nil {
		return templateError(err, "")
	}

	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"template": t})
	return nil
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) error {
	if h.templates == nil {
		return errors.Unavailable("templates")
	}
	list, err := h.templates.List(r.Context())
	if err != nil {
		return errors.Wrap(err, "templates.list", "list templates")
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"templates": list})
	return nil
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) error {
	if h.templates == nil {
		return errors.Unavailable("templates")
	}
	id := chi.URLParam(r, "templateId")
	t, err := h.templates.Get(r.Context(), id)
	if err != nil {
		return templateError(err, id)
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"template": t})
	return nil
}

func (h *Handler) PatchTemplate(w http.ResponseWriter, r *http.Request) error {
	if h.templates == nil {
		return errors.Unavailable("templates")
	}
	id := chi.URLParam(r, "templateId")

	var patch models.TemplatePatch
	if err := httpkit.DecodeStrict(r, &patch); err != nil {
		return errors.Validation("invalid json body")
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return errors.ValidationField("name", "name cannot be empty")
		}
		patch.Name = &name
	}
	if patch.Effects != nil {
		if err := checkEffects(*patch.Effects); err != nil {
			return err
		}
	}

	t, err := h.templates.Update(r.Context(), id, patch)
	if err != nil {
		return templateError(err, id)
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"template": t})
	return nil
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) error {
	if h.templates == nil {
		return errors.Unavailable("templates")
	}
	id := chi.URLParam(r, "templateId")
	if err := h.templates.Delete(r.Context(), id); err != nil {
		return templateError(err, id)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// checkEffects rejects effects that a submission could not decode later.
// Out-of-range numbers are clamped at render time, not here.
func checkEffects(raw map[string]any) error {
	if _, err := effects.Decode(raw); err != nil {
		return errors.ValidationField("effects", "invalid effects: "+err.Error())
	}
	return nil
}

func templateError(err error, id string) error {
	switch {
	case stderrors.Is(err, repositories.ErrTemplateNotFound):
		return errors.NotFound("template", id)
	case stderrors.Is(err, repositories.ErrTemplateNameExists):
		return errors.Conflict("template name already exists").WithField("field", "name")
	default:
		return errors.Wrap(err, "templates", "template store failed")
	}
}
