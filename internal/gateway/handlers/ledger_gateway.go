package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"gastra-system/internal/database/models"
	ledgerhandler "gastra-system/internal/services/ledger/handler"
)

type LedgerHTTPHandler struct {
	ledger *ledgerhandler.LedgerHandler
}

func NewLedgerHTTPHandler(ledger *ledgerhandler.LedgerHandler) *LedgerHTTPHandler {
	return &LedgerHTTPHandler{
		ledger: ledger,
	}
}

type createEntryRequest struct {
	CustomerID      int64            `json:"customerId" binding:"required"`
	WarehouseID     *int32           `json:"warehouseId"`
	VariantID       *int32           `json:"variantId"`
	TransactionDate time.Time        `json:"transactionDate" binding:"required"`
	TransactionType string           `json:"transactionType" binding:"required"`
	RefID           *int64           `json:"refId"`
	RefType         *string          `json:"refType"`
	FilledOut       int32            `json:"filledOut"`
	EmptyIn         int32            `json:"emptyIn"`
	TotalAmount     *decimal.Decimal `json:"totalAmount"`
	AmountReceived  *decimal.Decimal `json:"amountReceived"`
	PaymentTypeID   *int32           `json:"paymentTypeId"`
	BankAccountID   *int64           `json:"bankAccountId"`
}

func (s *LedgerHTTPHandler) CreateEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	entry, err := s.ledger.CreateEntry(c.Request.Context(), ledgerhandler.CreateEntryInput{
		CustomerID:      req.CustomerID,
		WarehouseID:     req.WarehouseID,
		VariantID:       req.VariantID,
		TransactionDate: req.TransactionDate,
		TransactionType: models.TransactionType(req.TransactionType),
		RefID:           req.RefID,
		RefType:         req.RefType,
		FilledOut:       req.FilledOut,
		EmptyIn:         req.EmptyIn,
		TotalAmount:     req.TotalAmount,
		AmountReceived:  req.AmountReceived,
		PaymentTypeID:   req.PaymentTypeID,
		BankAccountID:   req.BankAccountID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, entry)
}

type updateEntryRequest struct {
	FilledOut      *int32           `json:"filledOut"`
	EmptyIn        *int32           `json:"emptyIn"`
	TotalAmount    *decimal.Decimal `json:"totalAmount"`
	AmountReceived *decimal.Decimal `json:"amountReceived"`
	UpdateReason   string           `json:"updateReason" binding:"required"`
}

func (s *LedgerHTTPHandler) UpdateEntry(c *gin.Context) {
	entryID, err := parseInt64Param(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid entry id")
		return
	}
	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	entry, err := s.ledger.UpdateEntry(c.Request.Context(), entryID, ledgerhandler.UpdateEntryInput{
		FilledOut:      req.FilledOut,
		EmptyIn:        req.EmptyIn,
		TotalAmount:    req.TotalAmount,
		AmountReceived: req.AmountReceived,
		UpdateReason:   req.UpdateReason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, entry)
}

type recordPaymentRequest struct {
	CustomerID      int64           `json:"customerId" binding:"required"`
	TransactionDate time.Time       `json:"transactionDate" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	PaymentTypeID   *int32          `json:"paymentTypeId"`
	BankAccountID   *int64          `json:"bankAccountId"`
}

func (s *LedgerHTTPHandler) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	entry, err := s.ledger.RecordPayment(c.Request.Context(), ledgerhandler.PaymentInput{
		CustomerID:      req.CustomerID,
		TransactionDate: req.TransactionDate,
		Amount:          req.Amount,
		PaymentTypeID:   req.PaymentTypeID,
		BankAccountID:   req.BankAccountID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, entry)
}

func (s *LedgerHTTPHandler) GetEntry(c *gin.Context) {
	entryID, err := parseInt64Param(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid entry id")
		return
	}
	entry, err := s.ledger.GetEntry(c.Request.Context(), entryID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, entry)
}

func (s *LedgerHTTPHandler) ListEntries(c *gin.Context) {
	customerID, err := parseInt64Param(c, "customerId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid customer id")
		return
	}
	page, pageSize := pagination(c)

	if variantID := parseIntQuery(c, "variant_id"); variantID != nil {
		entries, total, err := s.ledger.ListByCustomerVariant(c.Request.Context(), customerID, *variantID, page, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		successList(c, entries, total, page, pageSize)
		return
	}

	entries, total, err := s.ledger.ListByCustomer(c.Request.Context(), customerID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	successList(c, entries, total, page, pageSize)
}

func (s *LedgerHTTPHandler) ListEntriesByDate(c *gin.Context) {
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		fail(c, http.StatusBadRequest, "Invalid or missing 'from' date")
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		fail(c, http.StatusBadRequest, "Invalid or missing 'to' date")
		return
	}
	page, pageSize := pagination(c)

	entries, total, err := s.ledger.ListByDateRange(c.Request.Context(),
		parseInt64Query(c, "customer_id"), from, to, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	successList(c, entries, total, page, pageSize)
}

func (s *LedgerHTTPHandler) GetBalance(c *gin.Context) {
	customerID, err := parseInt64Param(c, "customerId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid customer id")
		return
	}
	variantID, err := parseIntParam(c, "variantId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid variant id")
		return
	}
	balance, err := s.ledger.GetCurrentBalance(c.Request.Context(), customerID, variantID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{
		"customerId": customerID,
		"variantId":  variantID,
		"balance":    balance,
	})
}

func (s *LedgerHTTPHandler) GetDue(c *gin.Context) {
	customerID, err := parseInt64Param(c, "customerId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid customer id")
		return
	}
	due, err := s.ledger.GetCustomerDue(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{
		"customerId": customerID,
		"dueAmount":  due,
	})
}

func (s *LedgerHTTPHandler) GetPendingReturns(c *gin.Context) {
	customerID, err := parseInt64Param(c, "customerId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid customer id")
		return
	}
	count, err := s.ledger.GetPendingReturnCount(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{
		"customerId":    customerID,
		"emptyReturned": count,
	})
}

func (s *LedgerHTTPHandler) GetCustomerSummary(c *gin.Context) {
	customerID, err := parseInt64Param(c, "customerId")
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid customer id")
		return
	}
	summary, err := s.ledger.GetCustomerSummary(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, summary)
}

func (s *LedgerHTTPHandler) ListCustomerSummaries(c *gin.Context) {
	page, pageSize := pagination(c)
	summaries, total, err := s.ledger.ListCustomerSummaries(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	successList(c, summaries, total, page, pageSize)
}

func (s *LedgerHTTPHandler) Recalculate(c *gin.Context) {
	result, err := s.ledger.RecalculateAllBalances(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, result)
}
