package handlers

import (
	"net/http"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"github.com/gin-gonic/gin"
)

type tripStatusRequest struct {
	Status models.TripStatus `json:"status" binding:"required"`
}

func (h *Handler) createTrip(c *gin.Context) {
	var input models.NewTrip
	if !bind(c, &input) {
		return
	}
	trip, err := h.Trips.Create(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

func (h *Handler) getTrip(c *gin.Context) {
	detail, err := h.Trips.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presentTrip(detail))
}

func (h *Handler) updateTrip(c *gin.Context) {
	var input services.UpdateTrip
	if !bind(c, &input) {
		return
	}
	trip, err := h.Trips.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

func (h *Handler) deleteTrip(c *gin.Context) {
	if err := h.Trips.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) transitionTrip(c *gin.Context) {
	var req tripStatusRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.Trips.Transition(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) closeTrip(c *gin.Context) {
	trip, err := h.Trips.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

func (h *Handler) duplicateTrip(c *gin.Context) {
	trip, err := h.Trips.Duplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

func (h *Handler) addExpense(c *gin.Context) {
	var input models.NewTripExpense
	if !bind(c, &input) {
		return
	}
	e, err := h.Trips.AddExpense(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, presentExpense(e))
}

func (h *Handler) deleteExpense(c *gin.Context) {
	if err := h.Trips.DeleteExpense(c.Request.Context(), c.Param("id"), c.Param("expenseId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
