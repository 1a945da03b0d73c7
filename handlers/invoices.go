package handlers

import (
	"net/http"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"github.com/gin-gonic/gin"
)

func (h *Handler) createInvoice(c *gin.Context) {
	var input models.NewInvoice
	if !bind(c, &input) {
		return
	}
	view, err := h.Ledger.CreateInvoice(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, presentInvoice(view))
}

func (h *Handler) createInvoiceFromTrip(c *gin.Context) {
	var input services.InvoiceFromTrip
	if !bind(c, &input) {
		return
	}
	view, err := h.Ledger.CreateFromTrip(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, presentInvoice(view))
}

func (h *Handler) getInvoice(c *gin.Context) {
	view, err := h.Ledger.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presentInvoice(view))
}

func (h *Handler) updateInvoice(c *gin.Context) {
	var input models.UpdateInvoice
	if !bind(c, &input) {
		return
	}
	view, err := h.Ledger.UpdateInvoice(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presentInvoice(view))
}

func (h *Handler) deleteInvoice(c *gin.Context) {
	if err := h.Ledger.DeleteInvoice(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) recordPayment(c *gin.Context) {
	var input models.NewPayment
	if !bind(c, &input) {
		return
	}
	res, err := h.Ledger.RecordPayment(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, presentPayment(res))
}

func (h *Handler) deletePayment(c *gin.Context) {
	if err := h.Ledger.DeletePayment(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reassignParcels(c *gin.Context) {
	var req parcelIdsRequest
	if !bind(c, &req) {
		return
	}
	results, err := h.Ledger.Reassign(c.Request.Context(), c.Param("id"), req.ParcelIds)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
