package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Dev-only routes for driving the in-process fake gateway, standing in for
// the real gateway's charge flow during local runs and tests.

func (a *API) postDevCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := r.PathValue("orderId")

	paymentID, err := a.fake.Capture(ctx, orderID)
	if err != nil {
		a.logger.WarnContext(ctx, "Fake gateway capture failed",
			slog.String("orderId", orderID),
			slog.String("error", err.Error()),
		)
		a.writeError(w, http.StatusNotFound, Error{Code: NotFound, Message: "No such order"})
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]string{"paymentId": paymentID})
}

func (a *API) postDevFail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := r.PathValue("orderId")

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if err := a.fake.Fail(ctx, orderID, body.Reason); err != nil {
		a.writeError(w, http.StatusNotFound, Error{Code: NotFound, Message: "No such order"})
		return
	}

	w.WriteHeader(http.StatusOK)
}
