package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/custom-orders/internal/apperr"
	"github.com/ariefcatur/custom-orders/internal/metrics"
	"github.com/ariefcatur/custom-orders/internal/orders"
	"github.com/ariefcatur/custom-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 3 * time.Second
)

type OrdersHandler struct {
	Orders *orders.Service
	Idem   *redisx.Idempotency
	Log    *zap.Logger
}

type statusReq struct {
	Status string `json:"order_status"`
}

// Register mounts the order and resource routes. Every route needs an
// authenticated caller.
func (h *OrdersHandler) Register(r chi.Router, authn Authenticator) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r.Route("/orders", func(r chi.Router) {
		r.Use(RequireAuth(authn, h.Log))

		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)

		r.Get("/resources", h.listResources)
		r.Post("/resources", h.createResource)
		r.Put("/resources/{id}", h.updateResource)

		r.Patch("/status/{id}", h.updateStatus)
		r.Get("/user/{userID}/orders", h.listUserOrders)
		r.Get("/user/{userID}/order/{id}", h.getUserOrder)

		r.Get("/{id}", h.getOrder)
		r.Put("/{id}", h.updateOrder)
		r.Delete("/{id}", h.deleteOrder)
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Orders.ListOrders(ctx, identity(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.OrderInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()
	who := identity(r)

	// Fast-path idempotency via Redis; the engine stays the source of truth
	idemKey := r.Header.Get("Idempotency-Key")
	var staleID string
	if id, ok, err := h.Idem.Lookup(ctx, who.UserID, idemKey); err != nil {
		h.Log.Warn("idempotency lookup", zap.Error(err))
	} else if ok {
		o, err := h.Orders.GetOrder(ctx, who, id)
		if err == nil {
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, o)
			return
		}
		if errors.Is(err, apperr.ErrNotFound) {
			staleID = id
		}
		h.Log.Warn("idempotency key points at unreadable order", zap.String("order_id", id), zap.Error(err))
	}

	o, err := h.Orders.CreateOrder(ctx, who, req)
	metrics.RecordOrderOperation("create", err == nil)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.rememberCreate(ctx, who.UserID, idemKey, staleID, o.ID)
	writeJSON(w, http.StatusCreated, o)
}

// rememberCreate records the new order under the Idempotency-Key. A key left
// pointing at a deleted order is moved so later retries replay this one.
func (h *OrdersHandler) rememberCreate(ctx context.Context, userID, key, staleID, orderID string) {
	if staleID != "" {
		if _, err := h.Idem.Replace(ctx, userID, key, staleID, orderID); err != nil {
			h.Log.Warn("idempotency replace", zap.String("order_id", orderID), zap.Error(err))
		}
		return
	}
	if err := h.Idem.Remember(ctx, userID, key, orderID); err != nil {
		h.Log.Warn("idempotency remember", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.OrderInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	o, err := h.Orders.UpdateOrder(ctx, identity(r), chi.URLParam(r, "id"), req)
	metrics.RecordOrderOperation("update", err == nil)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	_, err := h.Orders.DeleteOrder(ctx, identity(r), chi.URLParam(r, "id"))
	metrics.RecordOrderOperation("delete", err == nil)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, identity(r), chi.URLParam(r, "id"), req.Status)
	metrics.RecordOrderOperation("update_status", err == nil)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Orders.ListUserOrders(ctx, identity(r), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getUserOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	o, err := h.Orders.GetUserOrder(ctx, identity(r), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listResources(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	list, err := h.Orders.ListResources(ctx, identity(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) createResource(w http.ResponseWriter, r *http.Request) {
	var req orders.ResourceInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Orders.CreateResource(ctx, identity(r), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *OrdersHandler) updateResource(w http.ResponseWriter, r *http.Request) {
	var req orders.ResourceInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	res, err := h.Orders.UpdateResource(ctx, identity(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
