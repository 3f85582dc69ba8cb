package http

import (
	"net/http"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/identity"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := ParseTypeParam(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	cats, err := s.categories.ListCategories(ctx, userID, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(categoriesView(cats)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CategoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := req.Category()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.categories.CreateCategory(ctx, userID, c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(categoryView{Name: created.Name, Icon: created.Icon, Type: created.Type.String()}).
		Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	query := r.URL.Query()
	typ, err := core.ParseTransactionType(query.Get("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.categories.DeleteCategory(ctx, userID, strings.TrimSpace(query.Get("name")), typ); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	us, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(settingsView{Currency: us.Currency}).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req SettingsRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	us, err := s.settings.UpdateCurrency(ctx, userID, req.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(settingsView{Currency: us.Currency}).Write(w)
}
