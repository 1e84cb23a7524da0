package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/journalkeeper/internal/api"
	"github.com/dmitrijs2005/journalkeeper/internal/server/models"
	"github.com/dmitrijs2005/journalkeeper/internal/server/services"
)

func (s *HTTPServer) ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func tokenResponse(p *services.TokenPair) api.TokenResponse {
	return api.TokenResponse{UserID: p.UserID, AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.users.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "Registered", "username", user.UserName, "tier", user.Tier)
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID})
}

func (s *HTTPServer) salt(w http.ResponseWriter, r *http.Request) {
	var req api.SaltRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	salt, kdf, err := s.users.GetSalt(r.Context(), req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SaltResponse{Salt: salt, KDF: kdf})
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.users.Login(r.Context(), req.Username, req.Verifier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(tokens))
}

func (s *HTTPServer) refresh(w http.ResponseWriter, r *http.Request) {
	var req api.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(tokens))
}

func (s *HTTPServer) recoverAccount(w http.ResponseWriter, r *http.Request) {
	var req api.RecoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.users.Recover(r.Context(), req.Username, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Warn(r.Context(), "recovery code redeemed", "user_id", tokens.UserID)
	writeJSON(w, http.StatusOK, tokenResponse(tokens))
}

func (s *HTTPServer) getKeys(w http.ResponseWriter, r *http.Request) {
	m, err := s.users.GetKeys(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *HTTPServer) putKeys(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateKeysRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.users.PutKeys(r.Context(), userIDFrom(r.Context()), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) createEntry(w http.ResponseWriter, r *http.Request) {
	var in api.Entry
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	e, created, err := s.entries.Create(r.Context(), userIDFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, e.ToAPI())
}

func (s *HTTPServer) updateEntry(w http.ResponseWriter, r *http.Request) {
	var in api.Entry
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	e, err := s.entries.Update(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e.ToAPI())
}

func (s *HTTPServer) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.entries.Delete(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) restoreEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.Restore(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e.ToAPI())
}

func (s *HTTPServer) sync(w http.ResponseWriter, r *http.Request) {
	var req api.SyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Since < 0 {
		writeJSONError(w, http.StatusBadRequest, "since must not be negative")
		return
	}

	page, err := s.entries.Sync(r.Context(), userIDFrom(r.Context()), req.Since, req.Limit, req.Entries)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse(page))
}

func syncResponse(p *services.SyncPage) api.SyncResponse {
	out := api.SyncResponse{
		Entries:    make([]api.Entry, 0, len(p.Entries)),
		DeletedIDs: append([]string{}, p.DeletedIDs...),
		HasMore:    p.HasMore,
		Checkpoint: p.Checkpoint,
	}
	for _, e := range p.Entries {
		out.Entries = append(out.Entries, e.ToAPI())
	}
	return out
}

func (s *HTTPServer) registerMedia(w http.ResponseWriter, r *http.Request) {
	var req api.MediaRegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	reg, err := s.media.Register(r.Context(), userIDFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mediaRegisterResponse(reg.Media, reg.UploadURL))
}

func mediaRegisterResponse(m *models.Media, uploadURL string) api.MediaRegisterResponse {
	return api.MediaRegisterResponse{ID: m.ID, ObjectKey: m.ObjectKey, UploadURL: uploadURL}
}

func (s *HTTPServer) completeMedia(w http.ResponseWriter, r *http.Request) {
	if err := s.media.Complete(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) mediaDownloadURL(w http.ResponseWriter, r *http.Request) {
	u, err := s.media.DownloadURL(r.Context(), userIDFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.URLResponse{URL: u})
}
