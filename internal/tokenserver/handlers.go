package tokenserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/florianilch/reyrey-auth/internal/auth"
	"github.com/florianilch/reyrey-auth/internal/tokenstore"
)

// maxBodyBytes limits update request bodies.
const maxBodyBytes = 64 << 10

func (s *Server) handleCurrentToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name := r.URL.Query().Get("token_name")
	if name == "" {
		name = auth.DefaultTokenName
	}

	// Clients validate tokens themselves; the server only hands out what it stores.
	token, err := s.service.GetToken(ctx, name, auth.WithProviders(s.stores...), auth.WithVerify(false))
	if errors.Is(err, auth.ErrNoToken) {
		writeJSON(ctx, w, tokenstore.CurrentTokenResponse{Success: false, Error: "token not found"}, http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read token", "token_name", name, "error", err)
		writeJSON(ctx, w, tokenstore.CurrentTokenResponse{Success: false, Error: "internal error"}, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, tokenstore.CurrentTokenResponse{
		Success: true,
		Token:   &tokenstore.TokenPayload{Value: token, Name: name},
	}, http.StatusOK)
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tokenstore.UpdateTokenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(ctx, w, tokenstore.UpdateTokenResponse{Success: false, Error: "invalid request body"}, http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		writeJSON(ctx, w, tokenstore.UpdateTokenResponse{Success: false, Error: "token is required"}, http.StatusBadRequest)
		return
	}
	if req.CookieName == "" {
		req.CookieName = auth.DefaultTokenName
	}

	token := tokenstore.Token{
		Value:     req.Token,
		Name:      req.CookieName,
		Domain:    req.Domain,
		UpdatedAt: req.Timestamp,
	}
	if !s.service.SaveToken(ctx, token, auth.WithSaveProviders(s.stores...)) {
		writeJSON(ctx, w, tokenstore.UpdateTokenResponse{Success: false, Error: "token could not be saved"}, http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, tokenstore.UpdateTokenResponse{Success: true}, http.StatusOK)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, map[string]string{"status": "ok"}, http.StatusOK)
}
