package api

import (
	"net/http"

	"shop-service/internal/models"
	"shop-service/internal/service"

	"github.com/gin-gonic/gin"
)

// placeOrder handles order creation from an explicit item list
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	id := customerID(c)
	req.CustomerID = &id
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(headerIdempotencyKey)
	}

	placed, err := h.orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPlaced(c, placed)
}

// checkout handles order creation from the customer's cart
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req.CustomerID = customerID(c)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(headerIdempotencyKey)
	}

	placed, err := h.orders.PlaceOrderFromCart(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondPlaced(c, placed)
}

func respondPlaced(c *gin.Context, placed *service.PlacedOrder) {
	status := http.StatusCreated
	if placed.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success":  true,
		"order_id": placed.Order.ID,
		"data":     placed,
	})
}

// listMyOrders lists the caller's orders
func (h *Handler) listMyOrders(c *gin.Context) {
	filter, ok := orderFilter(c)
	if !ok {
		return
	}
	id := customerID(c)
	filter.CustomerID = &id
	filter.Phone = ""

	h.respondOrders(c, filter)
}

// getMyOrder returns one of the caller's orders
func (h *Handler) getMyOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.orders.GetOrderForCustomer(c.Request.Context(), customerID(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}

// placeQuickOrder handles guest service requests
func (h *Handler) placeQuickOrder(c *gin.Context) {
	var req service.QuickOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	quick, err := h.orders.PlaceQuickOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"order_id":    quick.Order.ID,
		"customer_id": quick.Customer.ID,
		"data":        quick,
	})
}

// trackOrder returns the public status of an order
func (h *Handler) trackOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.orders.TrackOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": view})
}

func orderFilter(c *gin.Context) (models.OrderFilter, bool) {
	offset, ok := queryInt(c, "offset")
	if !ok {
		return models.OrderFilter{}, false
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return models.OrderFilter{}, false
	}
	return models.OrderFilter{
		Status: c.Query("status"),
		Phone:  c.Query("phone"),
		Offset: offset,
		Limit:  limit,
	}, true
}

func (h *Handler) respondOrders(c *gin.Context, filter models.OrderFilter) {
	orders, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"count":   len(orders),
		"offset":  filter.Offset,
	})
}
