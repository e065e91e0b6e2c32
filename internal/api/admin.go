package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// listOrders lists all orders, optionally filtered by status, phone or customer
func (h *Handler) listOrders(c *gin.Context) {
	filter, ok := orderFilter(c)
	if !ok {
		return
	}
	if raw := c.Query("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid customer_id")
			return
		}
		filter.CustomerID = &id
	}

	h.respondOrders(c, filter)
}

// getOrder returns any order with its items and customer
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}

// updateOrderStatus moves an order to a new status
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.statuses.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
}

// markOrderPaid records payment for an order
func (h *Handler) markOrderPaid(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.statuses.MarkPaid(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
}
