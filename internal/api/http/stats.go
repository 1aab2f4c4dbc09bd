package http

import (
	"net/http"

	"github.com/coinpulse/coinpulse/internal/api/domain"
	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/pkg/httpx"
)

type StatsHandler struct {
	Prices *service.PriceService
}

// ServeHTTP godoc
//
//	@Summary		Coin market stats
//	@Description	Market data for the named coins in the given currency, cached for a short time.
//	@Tags			Data
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StatsRequest	true	"coins (array or comma separated), currency"
//	@Success		200		{object}	httpx.Success	"data: coin market rows"
//	@Failure		400		{object}	httpx.Failure
//	@Failure		401		{object}	httpx.Failure
//	@Failure		502		{object}	httpx.Failure	"market data provider failure"
//	@Router			/v1/data/stats [post].
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req StatsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	markets, err := h.Prices.Markets(r.Context(), domain.CoinQuery{
		Coins:    req.Coins,
		Currency: req.Currency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, markets, "coins fetched successfully")
}
