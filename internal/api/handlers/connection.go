package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stocklink/internal/logger"
	"stocklink/internal/models"
)

type ConnectionHandler struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewConnectionHandler(db *gorm.DB, logger *logger.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		db:     db,
		logger: logger,
	}
}

func (h *ConnectionHandler) List(c *gin.Context) {
	var connections []models.Connection

	query := h.db.Model(&models.Connection{})
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	if err := query.Find(&connections).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch connections"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connections})
}

func (h *ConnectionHandler) Get(c *gin.Context) {
	id := c.Param("id")

	var connection models.Connection
	if err := h.db.First(&connection, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch connection"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connection})
}

func (h *ConnectionHandler) Create(c *gin.Context) {
	var connection models.Connection
	if err := c.ShouldBindJSON(&connection); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Create(&connection).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create connection"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": connection})
}

func (h *ConnectionHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var connection models.Connection
	if err := h.db.First(&connection, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch connection"})
		return
	}

	if err := c.ShouldBindJSON(&connection); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Save(&connection).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update connection"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": connection})
}

func (h *ConnectionHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	if err := h.db.Delete(&models.Connection{}, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete connection"})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}
