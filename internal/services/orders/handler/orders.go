package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"estatecare-system/internal/database/models"
	"estatecare-system/internal/middleware"
)

const (
	ORDERS_CACHE_KEY       = "orders:list"
	CONSOLIDATED_CACHE_KEY = "inventory:report:consolidated"
	ORDER_EVENTS_CHANNEL   = "estatecare:events:orders"
)

type OrderHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	logger *zap.Logger
}

func NewOrderHandler(db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

func (s *OrderHandler) invalidateOrderCaches(c *gin.Context) {
	if s.redis != nil {
		_ = s.redis.Del(c.Request.Context(), ORDERS_CACHE_KEY, CONSOLIDATED_CACHE_KEY)
	}
}

func (s *OrderHandler) fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *OrderHandler) ok(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

type OrderEvent struct {
	EventType string    `json:"event_type"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *OrderHandler) publishOrderEvent(c *gin.Context, event OrderEvent) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.redis.Publish(c.Request.Context(), ORDER_EVENTS_CHANNEL, payload).Err(); err != nil {
		s.logger.Warn("failed to publish order event", zap.Error(err))
	}
}

// nextOrderNumber issues MR-<yy><mm><seq> with the sequence scoped to the
// current month. Must run inside the surrounding transaction so concurrent
// creates cannot take the same number.
func nextOrderNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("MR-%02d%02d", now.Year()%100, int(now.Month()))

	var last models.Order
	err := tx.Where("id LIKE ?", prefix+"%").Order("id DESC").First(&last).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return "", err
	}

	seq := 1
	if err == nil {
		if n, convErr := strconv.Atoi(strings.TrimPrefix(last.ID, prefix)); convErr == nil {
			seq = n + 1
		}
	}

	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

type OrderLineRequest struct {
	LineID     string  `json:"line_id" binding:"required"`
	ItemNameEn string  `json:"item_name_en"`
	ItemNameAr string  `json:"item_name_ar"`
	Variant    *string `json:"variant"`
	Quantity   int64   `json:"quantity" binding:"required"`
}

type CreateOrderRequest struct {
	ResidenceID string             `json:"residence_id" binding:"required"`
	Notes       *string            `json:"notes"`
	Items       []OrderLineRequest `json:"items" binding:"required"`
}

func (s *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "residence_id and items are required")
		return
	}
	if len(req.Items) == 0 {
		s.fail(c, http.StatusBadRequest, "order must have at least one item")
		return
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.LineID) == "" {
			s.fail(c, http.StatusBadRequest, "every line needs a line_id")
			return
		}
		if line.Quantity <= 0 {
			s.fail(c, http.StatusBadRequest, fmt.Sprintf("line %s: quantity must be greater than 0", line.LineID))
			return
		}
	}

	var residence models.Complex
	if err := s.db.First(&residence, "id = ?", req.ResidenceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Residence not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	now := time.Now()
	orderID, err := nextOrderNumber(tx, now)
	if err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to generate order number")
		return
	}

	order := models.Order{
		ID:            orderID,
		ResidenceID:   residence.ID,
		ResidenceName: residence.Name,
		Status:        models.OrderStatusPending,
		RequestedBy:   c.GetInt64(middleware.ContextUserID),
		Notes:         req.Notes,
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to create order: "+err.Error())
		return
	}

	for i, line := range req.Items {
		item := models.OrderItem{
			OrderID:    order.ID,
			LineID:     strings.TrimSpace(line.LineID),
			ItemNameEn: line.ItemNameEn,
			ItemNameAr: line.ItemNameAr,
			Variant:    line.Variant,
			Quantity:   line.Quantity,
			Position:   int32(i),
		}
		if err := tx.Create(&item).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to create order item: "+err.Error())
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to commit transaction: "+err.Error())
		return
	}

	if err := s.db.Preload("Items", orderItemsInPosition).First(&order, "id = ?", order.ID).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to reload order")
		return
	}

	s.invalidateOrderCaches(c)
	s.publishOrderEvent(c, OrderEvent{
		EventType: "order_created",
		OrderID:   order.ID,
		Status:    order.Status,
		Timestamp: time.Now(),
	})

	s.ok(c, http.StatusCreated, order)
}

func orderItemsInPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (s *OrderHandler) ListOrders(c *gin.Context) {
	var orders []models.Order
	var total int64

	query := s.db.Model(&models.Order{}).Preload("Items", orderItemsInPosition)

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if residenceID := c.Query("residence_id"); residenceID != "" {
		query = query.Where("residence_id = ?", residenceID)
	}

	if err := query.Count(&total).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize <= 0 {
		pageSize = 20
	}
	pageNumber := 1
	if token := c.Query("page_token"); token != "" {
		if n, err := strconv.Atoi(token); err == nil && n > 0 {
			pageNumber = n
		}
	}

	offset := (pageNumber - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&orders).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	nextPageToken := ""
	if int64(pageNumber*pageSize) < total {
		nextPageToken = strconv.Itoa(pageNumber + 1)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"data":            orders,
		"total":           total,
		"next_page_token": nextPageToken,
	})
}

func (s *OrderHandler) GetOrder(c *gin.Context) {
	var order models.Order
	if err := s.db.Preload("Items", orderItemsInPosition).First(&order, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Order not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.ok(c, http.StatusOK, order)
}

// ApproveOrder moves a Pending order to Approved, making it eligible for
// receiving.
func (s *OrderHandler) ApproveOrder(c *gin.Context) {
	s.transitionOrder(c, models.OrderStatusPending, models.OrderStatusApproved, "Only pending orders can be approved")
}

// CancelOrder rejects a Pending order. Orders that have started receiving
// cannot be cancelled.
func (s *OrderHandler) CancelOrder(c *gin.Context) {
	s.transitionOrder(c, models.OrderStatusPending, models.OrderStatusCancelled, "Only pending orders can be cancelled")
}

func (s *OrderHandler) transitionOrder(c *gin.Context, from, to, guardMessage string) {
	var order models.Order
	if err := s.db.First(&order, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Order not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	if order.Status != from {
		s.fail(c, http.StatusConflict, guardMessage)
		return
	}

	order.Status = to
	if err := s.db.Save(&order).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to update order")
		return
	}

	s.invalidateOrderCaches(c)
	s.publishOrderEvent(c, OrderEvent{
		EventType: "order_status_changed",
		OrderID:   order.ID,
		Status:    order.Status,
		Timestamp: time.Now(),
	})

	s.ok(c, http.StatusOK, order)
}
