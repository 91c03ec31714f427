package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kpetrov-dev/bookstore-api/internal/auth"
	"github.com/kpetrov-dev/bookstore-api/internal/catalog"
	"github.com/kpetrov-dev/bookstore-api/internal/handler"
	"github.com/kpetrov-dev/bookstore-api/internal/metrics"
	"github.com/kpetrov-dev/bookstore-api/internal/order"
)

func NewRouter(pool *pgxpool.Pool) *chi.Mux {
	r := chi.NewRouter()

	httpMetrics := metrics.NewHTTPMetrics("api")
	r.Use(httpMetrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	books := catalog.NewRepository(pool)
	orderRepo := order.NewRepository(pool)
	orderSvc := order.NewService(orderRepo, books)

	bookHandler := handler.NewBookHandler(books)
	orderHandler := handler.NewOrderHandler(orderSvc)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(auth.Middleware)
		bookHandler.RegisterRoutes(api)
		orderHandler.RegisterRoutes(api)
	})

	return r
}
