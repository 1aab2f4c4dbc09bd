package http

import (
	"net/http"

	"github.com/coinpulse/coinpulse/internal/api/service"
	"github.com/coinpulse/coinpulse/pkg/httpx"
	"github.com/coinpulse/coinpulse/pkg/slogx"
)

// writeError maps a service error to its status and envelope. The cause is
// logged; only the client-safe message is written.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := service.AsError(err)
	status := e.Kind.HTTPStatus()
	log := slogx.FromContext(r.Context())

	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed", "kind", e.Kind.String(), "error", err)
	case e.Err != nil:
		log.Info("request rejected", "kind", e.Kind.String(), "reason", e.Reason, "error", e.Err)
	default:
		log.Debug("request rejected", "kind", e.Kind.String(), "message", e.Message)
	}

	httpx.WriteFailure(w, status, e.Message, e.Details)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httpx.WriteFailure(w, http.StatusBadRequest, message, nil)
}
