package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tolkfield/api/internal/platform/httpx"
	"github.com/tolkfield/api/internal/repositories"
	"github.com/tolkfield/api/internal/services"
)

type languagePayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LanguageHandlers serves the language catalogue used by booking forms.
type LanguageHandlers struct {
	directory repositories.DirectoryRepository
}

func NewLanguageHandlers(directory repositories.DirectoryRepository) *LanguageHandlers {
	return &LanguageHandlers{directory: directory}
}

// Routes registers the /languages endpoints.
func (h *LanguageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listLanguages)
	r.Get("/{languageID}", h.getLanguage)
}

func (h *LanguageHandlers) listLanguages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	languages, err := h.directory.ListLanguages(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "language catalogue temporarily unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": toLanguagePayloads(languages)})
}

func (h *LanguageHandlers) getLanguage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	language, err := h.directory.FindLanguage(ctx, chi.URLParam(r, "languageID"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("language_not_found", "language not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toLanguagePayload(language))
}

func toLanguagePayload(language services.Language) languagePayload {
	return languagePayload{ID: language.ID, Name: language.Name}
}

func toLanguagePayloads(languages []services.Language) []languagePayload {
	payloads := make([]languagePayload, 0, len(languages))
	for _, language := range languages {
		payloads = append(payloads, toLanguagePayload(language))
	}
	return payloads
}
