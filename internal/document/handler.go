package handler

import (
	"net/http"

	"docsync/internal/access"
	"docsync/internal/document/model"
	"docsync/internal/document/service"
	"docsync/middleware"
	"docsync/pkg/httputil"
	"docsync/socket"
)

type DocumentHandler struct {
	Service *service.DocumentService
	Hub     *socket.Hub
	Relay   socket.Options
}

func NewDocumentHandler(service *service.DocumentService, hub *socket.Hub, relay socket.Options) *DocumentHandler {
	return &DocumentHandler{Service: service, Hub: hub, Relay: relay}
}

func actorFrom(r *http.Request) access.Actor {
	return access.Actor{UserID: middleware.UserIDFrom(r.Context())}
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDocRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	meta, err := h.Service.CreateDocument(r.Context(), middleware.UserIDFrom(r.Context()), req)
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, meta)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.ListByOwner(r.Context(), middleware.UserIDFrom(r.Context()))
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, docs)
}

// GetContent serves GET /api/documents/{ref}; ref is a document id or a link token.
func (h *DocumentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.GetContent(r.Context(), r.PathValue("ref"), actorFrom(r))
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, view)
}

// SaveDocument serves PUT /api/documents/{ref}.
func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	var req model.SaveDocRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	res, err := h.Service.Save(r.Context(), r.PathValue("ref"), actorFrom(r), *req.Content)
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Service.GetMetadata(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, meta)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteDocument(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id")); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req model.CreateLinkRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	link, err := h.Service.CreateLink(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id"), req)
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, link)
}

func (h *DocumentHandler) ShareWith(w http.ResponseWriter, r *http.Request) {
	var req model.ShareRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	meta, err := h.Service.ShareWith(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id"), req)
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, meta)
}

func (h *DocumentHandler) RemoveShare(w http.ResponseWriter, r *http.Request) {
	err := h.Service.RemoveShare(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.Service.ListVersions(r.Context(), r.PathValue("ref"), actorFrom(r))
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, versions)
}

func (h *DocumentHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.RestoreVersion(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id"), r.PathValue("versionId"))
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, view)
}

func (h *DocumentHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req model.CommentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	c, err := h.Service.AddComment(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id"), req)
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, c)
}

func (h *DocumentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.Service.ListComments(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("id"), r.URL.Query().Get("sectionId"))
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, comments)
}

func (h *DocumentHandler) ReplyComment(w http.ResponseWriter, r *http.Request) {
	var req model.ReplyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	c, err := h.Service.Reply(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("commentId"), req)
	if err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, c)
}

func (h *DocumentHandler) ResolveComment(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ResolveComment(r.Context(), middleware.UserIDFrom(r.Context()), r.PathValue("commentId")); err != nil {
		httputil.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeWs upgrades to the relay. Anonymous connections are allowed and can
// join documents through link tokens.
func (h *DocumentHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	socket.ServeWs(h.Hub, h.Service, w, r, middleware.UserIDFrom(r.Context()), h.Relay)
}
