package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	saleshandler "gastra-system/internal/services/sales/handler"
)

type SalesHTTPHandler struct {
	sales *saleshandler.SalesHandler
}

func NewSalesHTTPHandler(sales *saleshandler.SalesHandler) *SalesHTTPHandler {
	return &SalesHTTPHandler{
		sales: sales,
	}
}

type saleItemRequest struct {
	VariantID        int32           `json:"variantId" binding:"required"`
	Quantity         int32           `json:"quantity" binding:"required"`
	EmptiesCollected int32           `json:"emptiesCollected"`
	UnitPrice        decimal.Decimal `json:"unitPrice" binding:"required"`
}

type createSaleRequest struct {
	CustomerID     int64             `json:"customerId" binding:"required"`
	WarehouseID    int32             `json:"warehouseId" binding:"required"`
	SaleDate       time.Time         `json:"saleDate" binding:"required"`
	Items          []saleItemRequest `json:"items" binding:"required"`
	AmountReceived decimal.Decimal   `json:"amountReceived"`
	PaymentTypeID  *int32            `json:"paymentTypeId"`
	BankAccountID  *int64            `json:"bankAccountId"`
	Notes          *string           `json:"notes"`
}

func (s *SalesHTTPHandler) CreateSale(c *gin.Context) {
	var req createSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	items := make([]saleshandler.SaleItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, saleshandler.SaleItemInput{
			VariantID:        item.VariantID,
			Quantity:         item.Quantity,
			EmptiesCollected: item.EmptiesCollected,
			UnitPrice:        item.UnitPrice,
		})
	}

	sale, err := s.sales.CreateSale(c.Request.Context(), saleshandler.CreateSaleInput{
		CustomerID:     req.CustomerID,
		WarehouseID:    req.WarehouseID,
		SaleDate:       req.SaleDate,
		Items:          items,
		AmountReceived: req.AmountReceived,
		PaymentTypeID:  req.PaymentTypeID,
		BankAccountID:  req.BankAccountID,
		Notes:          req.Notes,
		CreatedBy:      userIDFromContext(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, sale)
}

type voidSaleRequest struct {
	Reason string `json:"reason"`
}

func (s *SalesHTTPHandler) VoidSale(c *gin.Context) {
	saleID, err := parseInt64Param(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid sale id")
		return
	}
	var req voidSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sale, err := s.sales.VoidSale(c.Request.Context(), saleID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, sale)
}

func (s *SalesHTTPHandler) GetSale(c *gin.Context) {
	saleID, err := parseInt64Param(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid sale id")
		return
	}
	sale, err := s.sales.GetSale(c.Request.Context(), saleID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, sale)
}

func (s *SalesHTTPHandler) ListSales(c *gin.Context) {
	page, pageSize := pagination(c)
	sales, total, err := s.sales.ListSales(c.Request.Context(), parseInt64Query(c, "customer_id"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	successList(c, sales, total, page, pageSize)
}
