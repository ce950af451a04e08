package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ray-remotestate/restro-qr/handlers"
	"github.com/ray-remotestate/restro-qr/middlewares"
	"github.com/ray-remotestate/restro-qr/models"
)

type Server struct {
	Router *mux.Router
	server *http.Server
}

const (
	readTimeout       = 5 * time.Minute
	readHeaderTimeout = 30 * time.Second
	writeTimeout      = 5 * time.Minute
)

func SetupRoutes() *Server {
	router := mux.NewRouter()
	router.Use(middlewares.RequestLogger)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"alive": true}`)
	}).Methods("GET")

	router.HandleFunc("/register", handlers.Register).Methods("POST")
	router.HandleFunc("/login", handlers.Login).Methods("POST")
	router.HandleFunc("/refresh", handlers.RefreshToken).Methods("POST")

	// customer facing, reached from the QR code
	router.HandleFunc("/menu/{slug}", handlers.GetPublicMenu).Methods("GET")
	router.HandleFunc("/orders", handlers.PlaceOrder).Methods("POST")
	router.HandleFunc("/orders/{id}", handlers.GetOrderStatus).Methods("GET")

	// public payment routes live under /api, so they must be registered
	// before the authenticated subrouter claims the prefix
	router.HandleFunc("/api/create-payment", handlers.CreatePayment).Methods("POST")
	router.HandleFunc("/api/webhook", handlers.PaymentWebhook).Methods("POST")
	router.HandleFunc("/api/payments/{transaction_id}/verify", handlers.VerifyPayment).Methods("POST")

	authRoutes := router.PathPrefix("/api").Subrouter()
	authRoutes.Use(middlewares.AuthMiddleware)

	authRoutes.HandleFunc("/logout", handlers.Logout).Methods("POST")

	// owners n admins
	ownerOnly := middlewares.RoleBasedMiddleware(models.RoleAdmin, models.RoleOwner)
	authRoutes.Handle("/restaurants", ownerOnly(http.HandlerFunc(handlers.CreateRestaurant))).Methods("POST")

	authRoutes.HandleFunc("/restaurants", handlers.ListRestaurants).Methods("GET")
	authRoutes.HandleFunc("/restaurants/{id}", handlers.GetRestaurant).Methods("GET")
	authRoutes.HandleFunc("/restaurants/{id}", handlers.UpdateRestaurant).Methods("PUT")

	authRoutes.HandleFunc("/restaurants/{id}/menu", handlers.ListMenuItems).Methods("GET")
	authRoutes.HandleFunc("/restaurants/{id}/menu", handlers.CreateMenuItem).Methods("POST")
	authRoutes.HandleFunc("/restaurants/{id}/menu/{itemId}", handlers.UpdateMenuItem).Methods("PUT")
	authRoutes.HandleFunc("/restaurants/{id}/menu/{itemId}", handlers.ArchiveMenuItem).Methods("DELETE")
	authRoutes.HandleFunc("/restaurants/{id}/menu/{itemId}/availability", handlers.SetMenuItemAvailability).Methods("PATCH")

	authRoutes.HandleFunc("/restaurants/{id}/orders", handlers.ListOrders).Methods("GET")
	authRoutes.HandleFunc("/orders/{id}/status", handlers.UpdateOrderStatus).Methods("PATCH")
	authRoutes.HandleFunc("/restaurants/{id}/live", handlers.LiveOrders).Methods("GET")

	authRoutes.HandleFunc("/restaurants/{id}/payment-settings", handlers.GetPaymentSettings).Methods("GET")
	authRoutes.HandleFunc("/restaurants/{id}/payment-settings", handlers.UpdatePaymentSettings).Methods("PUT")

	authRoutes.HandleFunc("/restaurants/{id}/analytics", handlers.GetAnalytics).Methods("GET")
	authRoutes.HandleFunc("/invoices/{order_id}", handlers.GetInvoice).Methods("GET")
	authRoutes.HandleFunc("/invoices/{order_id}/send", handlers.SendInvoice).Methods("POST")

	authRoutes.HandleFunc("/restaurants/{id}/managers", handlers.ListManagers).Methods("GET")
	authRoutes.HandleFunc("/restaurants/{id}/managers", handlers.AssignManager).Methods("POST")

	// admin only
	admin := authRoutes.PathPrefix("/admin").Subrouter()
	admin.Use(middlewares.RoleBasedMiddleware(models.RoleAdmin))

	admin.HandleFunc("/owners", handlers.GrantOwner).Methods("POST")
	admin.HandleFunc("/owners", handlers.ListOwners).Methods("GET")

	return &Server{
		Router: router,
	}
}

func (svr *Server) Run(port string) error {
	svr.server = &http.Server{
		Addr:              port,
		Handler:           svr.Router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	return svr.server.ListenAndServe()
}

func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return svr.server.Shutdown(ctx)
}
