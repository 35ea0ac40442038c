package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	invhandler "gastra-system/internal/services/inventory/handler"
)

type InventoryHTTPHandler struct {
	inventory *invhandler.InventoryHandler
}

func NewInventoryHTTPHandler(inventory *invhandler.InventoryHandler) *InventoryHTTPHandler {
	return &InventoryHTTPHandler{
		inventory: inventory,
	}
}

func (s *InventoryHTTPHandler) GetStock(c *gin.Context) {
	warehouseID, err := parseIntParam(c, "warehouseId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid warehouse id")
		return
	}
	variantID, err := parseIntParam(c, "variantId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid variant id")
		return
	}
	stock, err := s.inventory.GetStock(c.Request.Context(), warehouseID, variantID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, stock)
}

func (s *InventoryHTTPHandler) ListStocks(c *gin.Context) {
	stocks, err := s.inventory.ListStocks(c.Request.Context(), parseIntQuery(c, "warehouse_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, stocks)
}

func (s *InventoryHTTPHandler) ListLowStock(c *gin.Context) {
	threshold := int32(10)
	if t := parseIntQuery(c, "threshold"); t != nil {
		threshold = *t
	}
	stocks, err := s.inventory.ListLowStock(c.Request.Context(), threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, stocks)
}

func (s *InventoryHTTPHandler) ListMovements(c *gin.Context) {
	limit := 50
	if l := parseIntQuery(c, "limit"); l != nil {
		limit = int(*l)
	}
	movements, err := s.inventory.ListMovements(c.Request.Context(),
		parseIntQuery(c, "warehouse_id"), parseIntQuery(c, "variant_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, movements)
}

type transferRequest struct {
	FromWarehouseID int32   `json:"fromWarehouseId" binding:"required"`
	ToWarehouseID   int32   `json:"toWarehouseId" binding:"required"`
	VariantID       int32   `json:"variantId" binding:"required"`
	FilledQty       int32   `json:"filledQty"`
	EmptyQty        int32   `json:"emptyQty"`
	Notes           *string `json:"notes"`
}

func (s *InventoryHTTPHandler) TransferStock(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	err := s.inventory.TransferStock(c.Request.Context(), invhandler.TransferInput{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		VariantID:       req.VariantID,
		FilledQty:       req.FilledQty,
		EmptyQty:        req.EmptyQty,
		TransferredBy:   userIDFromContext(c),
		Notes:           req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{"transferred": true})
}

type receiveStockRequest struct {
	SupplierID  int32   `json:"supplierId" binding:"required"`
	WarehouseID int32   `json:"warehouseId" binding:"required"`
	VariantID   int32   `json:"variantId" binding:"required"`
	FilledQty   int32   `json:"filledQty"`
	EmptyQty    int32   `json:"emptyQty"`
	Notes       *string `json:"notes"`
}

func (s *InventoryHTTPHandler) ReceiveStock(c *gin.Context) {
	var req receiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	err := s.inventory.ReceiveSupplierStock(c.Request.Context(), invhandler.SupplierReceiptInput{
		SupplierID:  req.SupplierID,
		WarehouseID: req.WarehouseID,
		VariantID:   req.VariantID,
		FilledQty:   req.FilledQty,
		EmptyQty:    req.EmptyQty,
		ReceivedBy:  userIDFromContext(c),
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{"received": true})
}

func userIDFromContext(c *gin.Context) int64 {
	if v, ok := c.Get("userId"); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
