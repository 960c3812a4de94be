package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stocklink/internal/logger"
	"stocklink/internal/models"
)

type CanonicalHandler struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewCanonicalHandler(db *gorm.DB, logger *logger.Logger) *CanonicalHandler {
	return &CanonicalHandler{
		db:     db,
		logger: logger,
	}
}

func (h *CanonicalHandler) List(c *gin.Context) {
	var products []models.CanonicalProduct

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset := (page - 1) * limit

	query := h.db.Model(&models.CanonicalProduct{})

	if cleaned := c.Query("cleaned"); cleaned != "" {
		query = query.Where("cleaned = ?", cleaned == "true")
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("display_name ILIKE ? OR upc ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	query.Count(&total)

	if err := query.Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch canonical products"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": products,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *CanonicalHandler) Get(c *gin.Context) {
	id := c.Param("id")

	var product models.CanonicalProduct
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Canonical product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch canonical product"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}
