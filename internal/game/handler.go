package game

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handler exposes the game CRUD surface over REST.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the REST routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/games", h.handleCreateGame)
	mux.HandleFunc("GET /api/games", h.handleListGames)
	mux.HandleFunc("GET /api/games/available", h.handleAvailableGames)
	mux.HandleFunc("GET /api/games/{game_id}", h.handleGetGame)
	mux.HandleFunc("POST /api/games/{game_id}/join", h.handleJoinGame)
	mux.HandleFunc("POST /api/games/{game_id}/start", h.handleStartGame)
}

func (h *Handler) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	detail, err := h.service.CreateGame(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrUnknownStation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, detail)
}

func (h *Handler) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.service.ListGames(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

func (h *Handler) handleAvailableGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.service.AvailableGames(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

func (h *Handler) handleGetGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseGameID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetGame(r.Context(), gameID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseGameID(w, r)
	if !ok {
		return
	}
	var req JoinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	player, err := h.service.JoinGame(r.Context(), gameID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyJoined), errors.Is(err, ErrGameFull):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondServiceError(w, err)
		}
		return
	}
	respondJSON(w, http.StatusCreated, player)
}

func (h *Handler) handleStartGame(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseGameID(w, r)
	if !ok {
		return
	}
	g, err := h.service.StartGame(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, ErrNotWaiting) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

func parseGameID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	gameID, err := uuid.Parse(r.PathValue("game_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid game_id format")
		return uuid.Nil, false
	}
	return gameID, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		respondError(w, http.StatusNotFound, "game not found")
		return
	}
	log.Error().Err(err).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
