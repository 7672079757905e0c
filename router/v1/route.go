package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mekvam/paygate/handler"
)

// Handlers carries the wired handlers the v1 API routes dispatch to
type Handlers struct {
	Payment      *handler.PaymentHandler
	Config       *handler.ConfigHandler
	Subscription *handler.SubscriptionHandler
}

// Routes registers all authenticated v1 API routes
func Routes(r chi.Router, h Handlers) {
	r.Route("/payments", func(r chi.Router) {
		// Configuration surface
		r.Route("/config", func(r chi.Router) {
			r.Get("/", h.Config.ListConfigs)
			r.Post("/", h.Config.SetConfig)
			r.Delete("/{provider}", h.Config.DeleteConfig)
			r.Put("/{provider}/toggle", h.Config.ToggleProvider)
			// POST kept as an alias for clients that cannot send PUT
			r.Post("/{provider}/toggle", h.Config.ToggleProvider)
			r.Post("/{provider}/test", h.Config.TestConnection)
		})

		r.Get("/available", h.Config.AvailableProviders)

		// Payment lifecycle
		r.Post("/{provider}/checkout", h.Payment.Checkout)
		r.Get("/{provider}/{paymentID}", h.Payment.GetPayment)
		r.Post("/{provider}/{paymentID}/capture", h.Payment.Capture)
		r.Post("/{provider}/{paymentID}/cancel", h.Payment.Cancel)
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.Subscription.CreateSubscription)
		r.Put("/{subscriptionID}", h.Subscription.UpdateSubscription)
		r.Delete("/{subscriptionID}", h.Subscription.CancelSubscription)
	})
}
