package api

import (
	"net/http"

	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.ledger.GetAccount(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var body accountBody
	if !s.decode(w, r, &body) {
		return
	}

	user := userFrom(r)
	account, err := s.ledger.CreateAccount(r.Context(), user, body.Name, body.Color, body.Icon, body.OpeningBalance)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if !body.OpeningBalance.IsZero() {
		s.invalidate(user)
	}
	s.writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var patch model.AccountPatch
	if !s.decode(w, r, &patch) {
		return
	}

	account, err := s.ledger.UpdateAccount(r.Context(), userFrom(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAccount(r.Context(), userFrom(r), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := s.ledger.Reconcile(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.ledger.ReconcileAll(r.Context(), userFrom(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
