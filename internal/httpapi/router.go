package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the full API surface with the shared middleware stack.
func NewRouter(carts CartService, checkouts CheckoutService, orders OrderReader, requestTimeout time.Duration) chi.Router {
	cartHandler := NewCartHandler(carts, requestTimeout)
	checkoutHandler := NewCheckoutHandler(checkouts, requestTimeout)
	ordersHandler := NewOrdersHandler(orders, requestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(HeaderAuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items", cartHandler.UpdateQuantities)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Get("/validate", cartHandler.ValidateInventory)
		})
		r.Get("/products/{product_id}/availability", cartHandler.Availability)
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkoutHandler.Initialize)
			r.Post("/payment", checkoutHandler.ProcessPayment)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordersHandler.ListOrders)
			r.Get("/{order_id}", ordersHandler.GetOrder)
		})
	})

	return r
}
