package http

import (
	"net/http"

	"bilancio/internal/currency"
	"bilancio/internal/identity"
)

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := ParseRangeParams(r.URL.Query(), s.stats.Resolver())
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.stats.CategoryStats(ctx, userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(categoryStatsView(stats)).Write(w)
}

func (s *Server) handleBalanceStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := ParseRangeParams(r.URL.Query(), s.stats.Resolver())
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.stats.BalanceStats(ctx, userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newBalanceView(b)).Write(w)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := ParseRangeParams(r.URL.Query(), s.stats.Resolver())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ov, err := s.stats.Overview(ctx, userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(overviewView{
		Currency:   ov.Currency,
		Balance:    newBalanceView(ov.Balance),
		Categories: categoryStatsView(ov.Categories),
	}).Write(w)
}

func (s *Server) handleHistoryData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params, err := ParseHistoryParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	buckets, err := s.stats.HistoryData(ctx, userID, params.Timeframe, params.Period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(historyView(buckets)).Write(w)
}

func (s *Server) handleHistoryPeriods(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	years, err := s.stats.HistoryPeriods(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(years).Write(w)
}

func (s *Server) handleTransactionHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()

	userID, err := identity.UserIDFromContext(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := ParseRangeParams(r.URL.Query(), s.stats.Resolver())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views, err := s.stats.TransactionHistory(ctx, userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(transactionHistoryView(views)).Write(w)
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(currenciesView(currency.Supported())).Write(w)
}
