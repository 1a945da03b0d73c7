package handlers

import (
	"errors"
	"net/http"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler exposes the back office operations over JSON.
type Handler struct {
	Parcels    *services.ParcelService
	Trips      *services.TripService
	Ledger     *services.LedgerService
	Collection *services.CollectionGate
	Directory  *services.DirectoryService
	Logger     *logrus.Logger
}

// Register mounts every route on rg. rg is expected to carry the auth middleware.
func (h *Handler) Register(rg gin.IRouter) {
	rg.POST("/clients", h.createClient)
	rg.GET("/clients/:id", h.getClient)
	rg.PUT("/clients/:id", h.updateClient)
	rg.POST("/warehouses", h.createWarehouse)

	rg.POST("/parcels", h.createParcel)
	rg.GET("/parcels/:id", h.getParcel)
	rg.DELETE("/parcels/:id", h.deleteParcel)
	rg.POST("/parcels/bulk-status", h.bulkStatus)
	rg.POST("/parcels/assign", h.assignParcels)
	rg.POST("/parcels/unassign", h.unassignParcels)
	rg.GET("/parcels/:id/collection-check", h.collectionCheck)
	rg.POST("/parcels/:id/collect", h.collect)
	rg.POST("/parcels/scan-collect", h.scanCollect)

	rg.POST("/trips", h.createTrip)
	rg.GET("/trips/:id", h.getTrip)
	rg.PUT("/trips/:id", h.updateTrip)
	rg.DELETE("/trips/:id", h.deleteTrip)
	rg.POST("/trips/:id/status", h.transitionTrip)
	rg.POST("/trips/:id/close", h.closeTrip)
	rg.POST("/trips/:id/duplicate", h.duplicateTrip)
	rg.POST("/trips/:id/expenses", h.addExpense)
	rg.DELETE("/trips/:id/expenses/:expenseId", h.deleteExpense)

	rg.POST("/invoices", h.createInvoice)
	rg.POST("/invoices/from-trip", h.createInvoiceFromTrip)
	rg.GET("/invoices/:id", h.getInvoice)
	rg.PUT("/invoices/:id", h.updateInvoice)
	rg.DELETE("/invoices/:id", h.deleteInvoice)
	rg.POST("/invoices/:id/payments", h.recordPayment)
	rg.POST("/invoices/:id/reassign-parcels", h.reassignParcels)
	rg.DELETE("/payments/:id", h.deletePayment)
}

func (h *Handler) logger() *logrus.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return config.GetLogger()
}

// bind decodes the body into dest and answers 400 itself when that fails.
func bind(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request",
			"code":   utils.ErrorKindInvalidRequest,
			"fields": utils.ProcessValidationErrors(err),
		})
		return false
	}
	return true
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	var appErr *utils.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		_ = c.Error(err)
		config.LogError(h.logger(), "handlers", c.FullPath(), c.Request.Method, nil, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": utils.ErrorKindInternal})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": appErr.Message, "code": appErr.Kind})
}
