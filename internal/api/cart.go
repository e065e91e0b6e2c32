package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type addToCartRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type cartLineResponse struct {
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	ImageURL      *string         `json:"image_url,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	LineTotal     decimal.Decimal `json:"line_total"`
	InStock       bool            `json:"in_stock"`
	StockQuantity int             `json:"stock_quantity"`
}

// addToCart adds a quantity of a product to the caller's cart
func (h *Handler) addToCart(c *gin.Context) {
	var req addToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	item, err := h.carts.AddToCart(c.Request.Context(), customerID(c), req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": item})
}

// getCart returns the caller's cart with current prices
func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), customerID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	lines := make([]cartLineResponse, 0, cart.Len())
	for p, qty := range cart.Lines() {
		lines = append(lines, cartLineResponse{
			ProductID:     p.ID,
			Name:          p.Name,
			ImageURL:      p.ImageURL,
			Price:         p.Price,
			Quantity:      qty,
			LineTotal:     p.Price.Mul(decimal.NewFromInt(int64(qty))),
			InStock:       p.IsActive && p.StockQuantity >= qty,
			StockQuantity: p.StockQuantity,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"customer_id": cart.CustomerID,
			"items":       lines,
			"subtotal":    cart.Subtotal(),
		},
	})
}

// removeFromCart deletes a product from the caller's cart
func (h *Handler) removeFromCart(c *gin.Context) {
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	if err := h.carts.RemoveFromCart(c.Request.Context(), customerID(c), productID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
