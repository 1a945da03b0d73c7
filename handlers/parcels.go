package handlers

import (
	"net/http"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"github.com/gin-gonic/gin"
)

type parcelIdsRequest struct {
	ParcelIds []string `json:"parcel_ids" binding:"required,min=1"`
}

type assignRequest struct {
	ParcelIds []string `json:"parcel_ids" binding:"required,min=1"`
	TripId    string   `json:"trip_id" binding:"required"`
}

type bulkStatusRequest struct {
	ParcelIds   []string            `json:"parcel_ids" binding:"required,min=1"`
	Status      models.ParcelStatus `json:"status" binding:"required"`
	WarehouseId *string             `json:"warehouse_id"`
}

type collectRequest struct {
	Note string `json:"note"`
}

type scanCollectRequest struct {
	Code string `json:"code" binding:"required"`
	Note string `json:"note"`
}

func (h *Handler) createParcel(c *gin.Context) {
	var input models.NewParcel
	if !bind(c, &input) {
		return
	}
	p, err := h.Parcels.Create(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) getParcel(c *gin.Context) {
	p, err := h.Parcels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteParcel(c *gin.Context) {
	if err := h.Parcels.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) bulkStatus(c *gin.Context) {
	var req bulkStatusRequest
	if !bind(c, &req) {
		return
	}
	var res *services.BulkStatusResult
	var err error
	if req.Status == models.ParcelStatusWarehouse {
		res, err = h.Parcels.ReturnToWarehouse(c.Request.Context(), req.ParcelIds, req.WarehouseId)
	} else {
		res, err = h.Parcels.BulkUpdateStatus(c.Request.Context(), req.ParcelIds, req.Status)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) assignParcels(c *gin.Context) {
	var req assignRequest
	if !bind(c, &req) {
		return
	}
	n, err := h.Parcels.AssignToTrip(c.Request.Context(), req.ParcelIds, req.TripId)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assigned": n})
}

func (h *Handler) unassignParcels(c *gin.Context) {
	var req parcelIdsRequest
	if !bind(c, &req) {
		return
	}
	n, err := h.Parcels.UnassignFromTrip(c.Request.Context(), req.ParcelIds)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unassigned": n})
}

func (h *Handler) collectionCheck(c *gin.Context) {
	check, err := h.Collection.Check(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presentCheck(check))
}

func (h *Handler) collect(c *gin.Context) {
	var req collectRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	res, err := h.Collection.Commit(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) scanCollect(c *gin.Context) {
	var req scanCollectRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.Collection.ScanAndCollect(c.Request.Context(), req.Code, req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
