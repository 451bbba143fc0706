/*
Package api
File: handlers.go
Description:
    Contains the HTTP handlers for the REST API.
    These functions decode JSON requests, hand them to the player's session,
    and return the resulting snapshot with its derived figures.

    Key Responsibilities:
    - Input Validation (Is the JSON valid? Is the user signed in?)
    - State Transitions (through session.Manager, never directly)
    - Error Mapping (auth codes to the message table, save failures to 500)

    Rejected purchases are not errors: they return 200 with applied=false.
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/everforgeworks/idle-tycoon/internal/auth"
	"github.com/everforgeworks/idle-tycoon/internal/game"
	"github.com/everforgeworks/idle-tycoon/internal/session"
)

// Request DTOs (Data Transfer Objects)

type CredentialRequest struct {
	IDToken string `json:"id_token"`
}

type BuyBusinessRequest struct {
	BusinessID string `json:"business_id"`
}

type BuyUpgradeRequest struct {
	UpgradeID string `json:"upgrade_id"`
}

type LoadRequest struct {
	GameState *game.SavedState `json:"game_state"` // nil loads the remote save
}

type AutoSaveRequest struct {
	Enabled bool `json:"enabled"`
}

// Response DTOs

type AuthResponse struct {
	User  *auth.User `json:"user"`
	Token string     `json:"token"`
}

type AuthErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StateResponse struct {
	State    game.View    `json:"state"`
	Applied  bool         `json:"applied"`
	Outcome  game.Outcome `json:"outcome,omitempty"`
	AutoSave bool         `json:"autoSave"`
}

const (
	msgSaveFailed = "Failed to save game. Please try again."
	msgLoadFailed = "Failed to load game. Please try again."
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAuthError(w http.ResponseWriter, err error) {
	code := auth.Code(err)
	if code == "" {
		code = "auth/internal-error"
	}
	writeJSON(w, http.StatusUnauthorized, AuthErrorResponse{Code: code, Message: auth.Message(err)})
}

func (s *Server) stateResponse(uid string, st game.GameState, outcome game.Outcome) StateResponse {
	resp := StateResponse{
		State:   game.Describe(st, game.IncomePerSecond),
		Applied: outcome == game.Applied,
		Outcome: outcome,
	}
	if sess := s.sessions.Get(uid); sess != nil {
		resp.AutoSave = sess.AutoSaveEnabled()
	}
	return resp
}

// sessionError maps manager errors that are not domain outcomes.
func sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNoSession) {
		http.Error(w, "Session not open", http.StatusConflict)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// HandleSignIn exchanges an upstream ID token for a session token.
func (s *Server) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	s.handleCredential(w, r, s.auth.SignIn)
}

// HandleSignUp is HandleSignIn for first-time players.
func (s *Server) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	s.handleCredential(w, r, s.auth.SignUp)
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request, exchange func(ctx context.Context, idToken string) (*auth.User, string, error)) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	user, token, err := exchange(r.Context(), req.IDToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if _, err := s.sessions.Open(r.Context(), user.UID); err != nil {
		s.logger.Error("open session after sign-in", zap.String("user_id", user.UID), zap.Error(err))
		http.Error(w, msgLoadFailed, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{User: user, Token: token})
}

// HandleSignOut revokes the caller's session token.
func (s *Server) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the signed-in user.
func (s *Server) HandleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

// HandleGetState returns the current snapshot and its derived view.
func (s *Server) HandleGetState(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context()).UID
	sess := s.sessions.Get(uid)
	if sess == nil {
		sessionError(w, session.ErrNoSession)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, sess.Snapshot(), ""))
}

// HandleClick credits one manual click.
func (s *Server) HandleClick(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context()).UID
	st, err := s.sessions.Click(uid)
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, st, game.Applied))
}

// HandleBuyBusiness buys one unit of a business.
func (s *Server) HandleBuyBusiness(w http.ResponseWriter, r *http.Request) {
	var req BuyBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	uid := userFrom(r.Context()).UID
	st, outcome, err := s.sessions.BuyBusiness(uid, req.BusinessID)
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, st, outcome))
}

// HandleBuyUpgrade buys an upgrade.
func (s *Server) HandleBuyUpgrade(w http.ResponseWriter, r *http.Request) {
	var req BuyUpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	uid := userFrom(r.Context()).UID
	st, outcome, err := s.sessions.BuyUpgrade(uid, req.UpgradeID)
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, st, outcome))
}

// HandleSave saves the game locally and remotely.
func (s *Server) HandleSave(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context()).UID
	st, err := s.sessions.Save(r.Context(), uid)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			sessionError(w, err)
			return
		}
		http.Error(w, msgSaveFailed, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, st, game.Applied))
}

// HandleLoad replaces the game with the posted snapshot, or with the remote
// save when none is posted.
func (s *Server) HandleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
	}

	uid := userFrom(r.Context()).UID
	st, err := s.sessions.Load(r.Context(), uid, req.GameState)
	switch {
	case errors.Is(err, session.ErrNoSave):
		http.Error(w, "No saved game found", http.StatusNotFound)
		return
	case errors.Is(err, session.ErrNoSession):
		sessionError(w, err)
		return
	case err != nil:
		http.Error(w, msgLoadFailed, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, st, game.Applied))
}

// HandleAutoSave turns the recurring save on or off.
func (s *Server) HandleAutoSave(w http.ResponseWriter, r *http.Request) {
	var req AutoSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	uid := userFrom(r.Context()).UID
	st, err := s.sessions.SetAutoSave(uid, req.Enabled)
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, st, ""))
}

// HandleReset discards all progress.
func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	uid := userFrom(r.Context()).UID
	st, err := s.sessions.Reset(r.Context(), uid)
	if err != nil {
		sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse(uid, st, game.Applied))
}

// HandleWs upgrades an authenticated request to the websocket hub.
func (s *Server) HandleWs(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWs(userFrom(r.Context()).UID, w, r)
}

// applyIntent runs a websocket intent through the session manager.
func (s *Server) applyIntent(uid string, in Intent) Message {
	if !s.limiter.Allow(uid) {
		s.metrics.RateLimited.Inc()
		return Message{Type: "error", Payload: http.StatusText(http.StatusTooManyRequests)}
	}

	var (
		st      game.GameState
		outcome = game.Applied
		err     error
	)
	switch in.Type {
	case "click":
		st, err = s.sessions.Click(uid)
	case "buy_business":
		st, outcome, err = s.sessions.BuyBusiness(uid, in.ID)
	case "buy_upgrade":
		st, outcome, err = s.sessions.BuyUpgrade(uid, in.ID)
	default:
		return Message{Type: "error", Payload: "unknown intent " + in.Type}
	}
	if err != nil {
		return Message{Type: "error", Payload: err.Error()}
	}
	return Message{Type: "intent_result", Payload: s.stateResponse(uid, st, outcome), Sender: uid}
}
