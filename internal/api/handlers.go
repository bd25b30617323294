package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/marco/cinematch/internal/history"
	"github.com/marco/cinematch/internal/service"
)

const defaultSearchLimit = 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// Health reports liveness and the size of the loaded catalog.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, map[string]any{"status": "ok", "movies": s.svc.CatalogSize()}, nil)
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=4,max=72"`
}

// RegisterUser creates an account.
func (s *Server) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON with username and password", nil)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	err := s.users.RegisterUser(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, history.ErrUserExists):
		respondError(w, http.StatusConflict, "USER_EXISTS", "username already exists", nil)
	case errors.Is(err, history.ErrInvalidCredentials):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required", nil)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "REGISTER_FAILED", "could not create user", err)
	default:
		respondJSON(w, http.StatusCreated, &Response{Status: "success", Data: map[string]string{"username": req.Username}})
	}
}

// Recommendations returns the movies most similar to ?title=. An unknown
// title yields an empty item list, not an error.
func (s *Server) Recommendations(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		respondError(w, http.StatusBadRequest, "MISSING_TITLE", "title query parameter is required", nil)
		return
	}

	res := s.svc.Recommend(r.Context(), service.Request{Username: usernameFrom(r.Context()), Title: title})
	respondData(w, res, nil)
}

// SearchMovies lists catalog titles containing ?q=.
func (s *Server) SearchMovies(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "MISSING_QUERY", "q query parameter is required", nil)
		return
	}
	respondData(w, s.svc.Search(q, intParam(r, "limit", defaultSearchLimit)), nil)
}

// MovieDetails returns metadata for one TMDB id.
func (s *Server) MovieDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "movie id must be a positive integer", nil)
		return
	}
	respondData(w, s.svc.Details(r.Context(), id), nil)
}

// DiscoverYear returns the most popular movies of a release year.
func (s *Server) DiscoverYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1870 || year > 2200 {
		respondError(w, http.StatusBadRequest, "INVALID_YEAR", "year must be a four digit number", nil)
		return
	}

	items, err := s.svc.TopByYear(r.Context(), year)
	if err != nil {
		respondError(w, http.StatusBadGateway, "TMDB_UNAVAILABLE", "could not fetch movies for year", err)
		return
	}
	respondData(w, items, nil)
}

// DiscoverGenres returns the most popular movies having every genre in
// ?names=, given comma separated or repeated.
func (s *Server) DiscoverGenres(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, v := range r.URL.Query()["names"] {
		names = append(names, strings.Split(v, ",")...)
	}

	items, warnings, err := s.svc.TopByGenreNames(r.Context(), usernameFrom(r.Context()), names)
	switch {
	case errors.Is(err, service.ErrNoGenres):
		respondJSON(w, http.StatusBadRequest, &Response{
			Status:   "error",
			Warnings: warnings,
			Error:    &APIError{Code: "NO_GENRES", Message: err.Error()},
		})
	case err != nil:
		respondError(w, http.StatusBadGateway, "TMDB_UNAVAILABLE", "could not fetch movies for genres", err)
	default:
		respondData(w, items, warnings)
	}
}

// Genres lists genre names and ids.
func (s *Server) Genres(w http.ResponseWriter, r *http.Request) {
	genres, err := s.svc.Genres(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "TMDB_UNAVAILABLE", "could not fetch genres", err)
		return
	}
	respondData(w, genres, nil)
}

// GenreRepresentative returns the poster and year shown for a genre.
func (s *Server) GenreRepresentative(w http.ResponseWriter, r *http.Request) {
	respondData(w, s.svc.GenreRepresentative(r.Context(), chi.URLParam(r, "name")), nil)
}

// History returns the caller's latest movie searches.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.RecentSearches(r.Context(), usernameFrom(r.Context()), intParam(r, "limit", history.DefaultRecentLimit))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HISTORY_ERROR", "could not read search history", err)
		return
	}
	respondData(w, rows, nil)
}

// GenreHistory returns the caller's latest genre searches.
func (s *Server) GenreHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.RecentGenreSearches(r.Context(), usernameFrom(r.Context()), intParam(r, "limit", history.DefaultRecentLimit))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HISTORY_ERROR", "could not read genre history", err)
		return
	}
	respondData(w, rows, nil)
}
