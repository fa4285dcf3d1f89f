package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"docsync/config"
	documents "docsync/internal/document"
	"docsync/internal/document/repository"
	"docsync/internal/document/service"
	"docsync/middleware"
	"docsync/socket"
)

func Setup(repo repository.Store, hub *socket.Hub, cfg *config.Config, limiter middleware.Limiter, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	docService := service.NewDocumentService(repo, hub)
	relay := socket.Options{
		SendBuffer:   cfg.Relay.SendBuffer,
		MessageRate:  rate.Limit(cfg.Relay.MessageRPS),
		MessageBurst: cfg.Relay.MessageBurst,
	}
	docHandler := documents.NewDocumentHandler(docService, hub, relay)

	authn := middleware.NewAuthenticator(cfg.JWT.Secret)
	limit := middleware.RateLimit(limiter, cfg.RateLimit.TrustedProxies...)
	auth := func(h http.HandlerFunc) http.Handler { return authn.RequireAuth(limit(h)) }
	optional := func(h http.HandlerFunc) http.Handler { return authn.OptionalAuth(limit(h)) }

	// WebSocket
	mux.Handle("GET /ws", optional(docHandler.ServeWs))

	// REST API
	mux.Handle("POST /api/documents", auth(docHandler.CreateDocument))
	mux.Handle("GET /api/documents", auth(docHandler.ListDocuments))
	mux.Handle("GET /api/documents/{ref}", optional(docHandler.GetContent))
	mux.Handle("PUT /api/documents/{ref}", optional(docHandler.SaveDocument))
	mux.Handle("DELETE /api/documents/{id}", auth(docHandler.DeleteDocument))
	mux.Handle("GET /api/documents/{id}/meta", auth(docHandler.GetMetadata))
	mux.Handle("POST /api/documents/{id}/links", auth(docHandler.CreateLink))
	mux.Handle("PUT /api/documents/{id}/collaborators", auth(docHandler.ShareWith))
	mux.Handle("DELETE /api/documents/{id}/collaborators/{userId}", auth(docHandler.RemoveShare))
	mux.Handle("GET /api/documents/{ref}/versions", optional(docHandler.ListVersions))
	mux.Handle("POST /api/documents/{id}/versions/{versionId}/restore", auth(docHandler.RestoreVersion))
	mux.Handle("POST /api/documents/{id}/comments", auth(docHandler.AddComment))
	mux.Handle("GET /api/documents/{id}/comments", auth(docHandler.ListComments))
	mux.Handle("POST /api/comments/{commentId}/replies", auth(docHandler.ReplyComment))
	mux.Handle("DELETE /api/comments/{commentId}", auth(docHandler.ResolveComment))

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return middleware.RequestLogger(middleware.CORS(cfg.CORS.Origins)(mux))
}
