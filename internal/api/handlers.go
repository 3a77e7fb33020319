package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/Veraticus/ledger-must-balance/internal/ledger"
	"github.com/Veraticus/ledger-must-balance/internal/model"
	"github.com/go-chi/chi/v5"
)

// handleMonth serves GET /api/months/{month}/transactions. The first page
// comes from the month cache; other pages are loaded directly.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	month, err := model.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		s.writeEngineError(w, common.NewValidationError("month", err))
		return
	}
	limit, ok := s.queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := s.queryInt(w, r, "offset")
	if !ok {
		return
	}

	user := userFrom(r)
	var view *ledger.MonthView
	if s.cache != nil && limit == 0 && offset == 0 {
		view, err = s.cache.Get(r.Context(), user, month)
	} else {
		view, err = s.ledger.LoadMonth(r.Context(), user, month, limit, offset)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return n, true
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ledger.GetTransaction(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body transactionBody
	if !s.decode(w, r, &body) {
		return
	}

	user := userFrom(r)
	draft, err := body.draft(user, s.ledger.Location())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	txn, err := s.ledger.CreateTransaction(r.Context(), draft)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidate(user)
	s.writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	var body editBody
	if !s.decode(w, r, &body) {
		return
	}

	user := userFrom(r)
	req, err := body.request(user, chi.URLParam(r, "id"), s.ledger.Location())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	result, err := s.ledger.EditTransaction(r.Context(), req)
	if err != nil {
		if common.IsConflict(err) {
			s.invalidate(user)
		}
		s.writeEngineError(w, err)
		return
	}
	s.invalidate(user)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	result, err := s.ledger.DeleteTransaction(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidate(user)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.ledger.Pay)
}

func (s *Server) handleUnpay(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.ledger.Unpay)
}

type settleFunc func(ctx context.Context, userID, transactionID string) (*ledger.SettlementResult, error)

func (s *Server) settle(w http.ResponseWriter, r *http.Request, fn settleFunc) {
	user := userFrom(r)
	result, err := fn(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidate(user)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req ledger.TransferRequest
	if !s.decode(w, r, &req) {
		return
	}

	req.UserID = userFrom(r)
	result, err := s.ledger.Transfer(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidate(req.UserID)
	s.writeJSON(w, http.StatusCreated, result)
}
