package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gastra-system/internal/gateway/handlers"
	"gastra-system/internal/gateway/middleware"
	invhandler "gastra-system/internal/services/inventory/handler"
	ledgerhandler "gastra-system/internal/services/ledger/handler"
	saleshandler "gastra-system/internal/services/sales/handler"
)

func setupRouter(ledger *ledgerhandler.LedgerHandler, inventory *invhandler.InventoryHandler, sales *saleshandler.SalesHandler) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit("120-M"))

	ledgerHandler := handlers.NewLedgerHTTPHandler(ledger)
	inventoryHandler := handlers.NewInventoryHTTPHandler(inventory)
	salesHandler := handlers.NewSalesHTTPHandler(sales)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		ledgerGroup := protected.Group("/ledger")
		{
			ledgerGroup.POST("/entries", ledgerHandler.CreateEntry)
			ledgerGroup.GET("/entries/:id", ledgerHandler.GetEntry)
			ledgerGroup.PUT("/entries/:id", ledgerHandler.UpdateEntry)
			ledgerGroup.GET("/entries", ledgerHandler.ListEntriesByDate)
			ledgerGroup.POST("/payments", ledgerHandler.RecordPayment)
			ledgerGroup.POST("/recalculate", ledgerHandler.Recalculate)

			ledgerGroup.GET("/customers", ledgerHandler.ListCustomerSummaries)
			ledgerGroup.GET("/customers/:customerId/entries", ledgerHandler.ListEntries)
			ledgerGroup.GET("/customers/:customerId/due", ledgerHandler.GetDue)
			ledgerGroup.GET("/customers/:customerId/returns", ledgerHandler.GetPendingReturns)
			ledgerGroup.GET("/customers/:customerId/summary", ledgerHandler.GetCustomerSummary)
			ledgerGroup.GET("/customers/:customerId/balance/:variantId", ledgerHandler.GetBalance)
		}

		inventoryGroup := protected.Group("/inventory")
		{
			inventoryGroup.GET("/stocks", inventoryHandler.ListStocks)
			inventoryGroup.GET("/stocks/low", inventoryHandler.ListLowStock)
			inventoryGroup.GET("/stocks/:warehouseId/:variantId", inventoryHandler.GetStock)
			inventoryGroup.GET("/movements", inventoryHandler.ListMovements)
			inventoryGroup.POST("/transfers", inventoryHandler.TransferStock)
			inventoryGroup.POST("/receipts", inventoryHandler.ReceiveStock)
		}

		salesGroup := protected.Group("/sales")
		{
			salesGroup.POST("", salesHandler.CreateSale)
			salesGroup.GET("", salesHandler.ListSales)
			salesGroup.GET("/:id", salesHandler.GetSale)
			salesGroup.POST("/:id/void", salesHandler.VoidSale)
		}
	}

	return r
}
