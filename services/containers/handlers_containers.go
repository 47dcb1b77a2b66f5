package containers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type generateRequest struct {
	Kind    string            `json:"kind"`
	OrderID int64             `json:"order_id"`
	Fields  map[string]string `json:"fields"`
}

func (a *API) handleGenerateContainer(w http.ResponseWriter, r *http.Request) {
	if a.meta == nil {
		respondError(w, http.StatusFailedDependency, errors.New("metadata store not configured"))
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req.Kind = strings.TrimSpace(req.Kind)
	if req.Kind == "" || req.OrderID <= 0 {
		respondError(w, http.StatusBadRequest, errors.New("kind and a positive order_id are required"))
		return
	}

	ctx, cancel := a.withTimeout(r.Context())
	defer cancel()

	container, err := a.factory.Generate(ctx, req.Kind, req.Fields, req.OrderID)
	if err != nil {
		if IsInputError(err) {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		a.logger.Printf("ERROR generate kind=%s order=%d: %v", req.Kind, req.OrderID, err)
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if err := a.meta.Save(ctx, container, "api"); err != nil {
		a.logger.Printf("ERROR persist container order=%d: %v", req.OrderID, err)
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	link, err := a.codec.MintURL(a.config.BaseURL, container, container.OrderID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	a.publishJSON(ctx, generatedTopic, map[string]any{
		"container_id": container.ID.String(),
		"order_id":     container.OrderID,
		"kind":         container.Kind,
		"location":     container.Location,
		"expires_at":   container.ExpiresAt.Format(time.RFC3339),
	})

	respondJSON(w, http.StatusCreated, map[string]any{
		"container":    container,
		"download_url": link,
	})
}

func (a *API) handleListOrderContainers(w http.ResponseWriter, r *http.Request) {
	if a.meta == nil {
		respondError(w, http.StatusFailedDependency, errors.New("metadata store not configured"))
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		respondError(w, http.StatusBadRequest, errors.New("valid order id is required"))
		return
	}

	containers, err := a.meta.ByOrder(r.Context(), orderID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"containers": containers})
}

type mintLinkRequest struct {
	ContainerID string `json:"container_id"`
	OrderID     int64  `json:"order_id"`
}

// handleMintLink re-mints a download URL for an already persisted container.
// Each minted token is independently valid until the container's expiry.
func (a *API) handleMintLink(w http.ResponseWriter, r *http.Request) {
	if a.meta == nil {
		respondError(w, http.StatusFailedDependency, errors.New("metadata store not configured"))
		return
	}

	var req mintLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	containerID, err := uuid.Parse(strings.TrimSpace(req.ContainerID))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid container_id is required"))
		return
	}
	if req.OrderID <= 0 {
		respondError(w, http.StatusBadRequest, errors.New("a positive order_id is required"))
		return
	}

	container, err := a.meta.ByID(r.Context(), containerID, req.OrderID)
	if err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			respondError(w, http.StatusNotFound, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if a.linkExpired(container) {
		respondError(w, http.StatusGone, errors.New("container has expired"))
		return
	}

	link, err := a.codec.MintURL(a.config.BaseURL, container, req.OrderID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"download_url": link,
		"expires_at":   container.ExpiresAt.Format(time.RFC3339),
	})
}

func (a *API) handleListKinds(w http.ResponseWriter, _ *http.Request) {
	kinds := a.registry.Kinds()
	out := make([]map[string]any, 0, len(kinds))
	for _, spec := range kinds {
		fields := make([]map[string]string, 0, len(spec.Fields))
		for _, fld := range spec.Fields {
			fields = append(fields, map[string]string{
				"name":     fld.Name,
				"encoding": string(fld.Encoding),
			})
		}
		out = append(out, map[string]any{
			"id":           spec.ID,
			"content_type": spec.ContentType,
			"filename":     spec.Filename,
			"fields":       fields,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"kinds": out})
}
