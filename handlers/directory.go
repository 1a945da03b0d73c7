package handlers

import (
	"net/http"

	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"github.com/gin-gonic/gin"
)

func (h *Handler) createClient(c *gin.Context) {
	var input models.NewClient
	if !bind(c, &input) {
		return
	}
	client, err := h.Directory.CreateClient(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, presentClient(client))
}

func (h *Handler) getClient(c *gin.Context) {
	client, err := h.Directory.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presentClient(client))
}

func (h *Handler) updateClient(c *gin.Context) {
	var input models.NewClient
	if !bind(c, &input) {
		return
	}
	client, err := h.Directory.UpdateClient(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, presentClient(client))
}

func (h *Handler) createWarehouse(c *gin.Context) {
	var input models.NewWarehouse
	if !bind(c, &input) {
		return
	}
	w, err := h.Directory.CreateWarehouse(c.Request.Context(), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}
