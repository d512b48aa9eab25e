package rpc

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/vintage-exchange/marketnode/internal/escrow"
	"github.com/vintage-exchange/marketnode/internal/rpc/handlers"
	"go.uber.org/zap"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func StartRPCServer(port int, ctx context.Context, sqlDB *sql.DB, escrowClient escrow.Client) func() {
	zap.L().Info("Starting RPC server on port", zap.Int("port", port))
	mux := http.NewServeMux()

	handlers.SetupHandlers(mux, Routes(sqlDB, escrowClient))

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: loggingMiddleware(mux),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				zap.L().Info("RPC server closed")
			} else {
				zap.L().Fatal("starting RPC server failed", zap.Error(err))
			}
		}
	}()
	closeFunc := func() {
		zap.L().Info("Closing RPC server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server shutdown failed", zap.Error(err))
		}
	}
	return closeFunc
}

// Routes maps every API path to its method handlers. Subtree paths carry a
// trailing slash so mint and seller segments route to the same handler.
func Routes(sqlDB *sql.DB, escrowClient escrow.Client) handlers.MethodHandlers {
	routes := handlers.MethodHandlers{
		handlers.CreateApiPath(handlers.ApiV1, "status"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.StatusGetHandler(r, sqlDB)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "collections"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.CollectionsGetHandler(r, sqlDB)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "nfts"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.NFTsGetHandler(r, sqlDB)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "listings"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.ListingsGetHandler(r, sqlDB)
			},
			handlers.HTTP_POST: func(r *http.Request) (any, error) {
				return handlers.ListingCreateHandler(r, sqlDB, escrowClient)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "purchases"): {
			handlers.HTTP_POST: func(r *http.Request) (any, error) {
				return handlers.PurchaseCreateHandler(r, sqlDB, escrowClient)
			},
		},
		handlers.CreateApiPath(handlers.ApiV1, "sales"): {
			handlers.HTTP_GET: func(r *http.Request) (any, error) {
				return handlers.SalesGetHandler(r, sqlDB)
			},
		},
	}

	routes[handlers.CreateApiPath(handlers.ApiV1, "collections/")] = routes[handlers.CreateApiPath(handlers.ApiV1, "collections")]
	routes[handlers.CreateApiPath(handlers.ApiV1, "nfts/")] = routes[handlers.CreateApiPath(handlers.ApiV1, "nfts")]
	routes[handlers.CreateApiPath(handlers.ApiV1, "sales/")] = routes[handlers.CreateApiPath(handlers.ApiV1, "sales")]

	routes[handlers.CreateApiPath(handlers.ApiV1, "listings/")] = map[handlers.Method]func(r *http.Request) (any, error){
		handlers.HTTP_GET: func(r *http.Request) (any, error) {
			return handlers.ListingsGetHandler(r, sqlDB)
		},
		handlers.HTTP_DELETE: func(r *http.Request) (any, error) {
			return handlers.ListingDeleteHandler(r, sqlDB, escrowClient)
		},
	}

	return routes
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)

		zap.L().Info("Request",
			zap.String("ip", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
		)
	})
}
