// Package api exposes the controllers' state and manual operations over
// HTTP. Handlers delegate to the controllers and the store; no control
// logic lives here.
package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"github.com/joltersapp/homecontrol/internal/controller"
	"github.com/joltersapp/homecontrol/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	pump       *controller.Pump
	irrigation *controller.Irrigation
	climate    *controller.Climate
	webpush    *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, pump *controller.Pump, irrigation *controller.Irrigation, climate *controller.Climate, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:      s,
		pump:       pump,
		irrigation: irrigation,
		climate:    climate,
		webpush:    webpushOptions,
	}
}
