package http

import (
	"net/http"

	"bilancio/internal/identity"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req TransactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.Input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	txn, err := s.ledger.CreateTransaction(ctx, userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+txn.ID).
		Body(newTransactionView(txn, "")).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req TransactionRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.Input()
	if err != nil {
		writeError(w, r, err)
		return
	}
	txn, err := s.ledger.UpdateTransaction(ctx, userID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newTransactionView(txn, "")).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.DeleteTransaction(ctx, userID, id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
