package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"estatecare-system/internal/database/models"
	"estatecare-system/internal/middleware"
)

const (
	CONSOLIDATED_CACHE_KEY = "inventory:report:consolidated"
)

type IssuanceHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	logger *zap.Logger
}

func NewIssuanceHandler(db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) *IssuanceHandler {
	return &IssuanceHandler{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

func (s *IssuanceHandler) invalidateStockCaches(c *gin.Context) {
	if s.redis != nil {
		_ = s.redis.Del(c.Request.Context(), CONSOLIDATED_CACHE_KEY)
	}
}

func (s *IssuanceHandler) fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *IssuanceHandler) ok(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

type IssueLineRequest struct {
	ItemID   string `json:"item_id" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required"`
}

type CreateVoucherRequest struct {
	ResidenceID string             `json:"residence_id" binding:"required"`
	BuildingID  *string            `json:"building_id"`
	RoomID      *string            `json:"room_id"`
	IssuedTo    string             `json:"issued_to"`
	Notes       *string            `json:"notes"`
	Items       []IssueLineRequest `json:"items" binding:"required"`
}

// CreateVoucher issues stock OUT of a residence. Every line is validated
// against the residence sub-balance before anything is written; an
// insufficient line aborts the whole voucher.
func (s *IssuanceHandler) CreateVoucher(c *gin.Context) {
	role := c.GetString(middleware.ContextRole)
	if role != models.RoleAdmin && role != models.RoleSupervisor {
		s.fail(c, http.StatusForbidden, "Only Admin or Supervisor can issue stock")
		return
	}

	var req CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "residence_id and items are required")
		return
	}
	if len(req.Items) == 0 {
		s.fail(c, http.StatusBadRequest, "voucher must have at least one item")
		return
	}
	for _, line := range req.Items {
		if strings.TrimSpace(line.ItemID) == "" || line.Quantity <= 0 {
			s.fail(c, http.StatusBadRequest, "every line needs an item_id and a quantity greater than 0")
			return
		}
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// --- Read phase ---

	var residence models.Complex
	if err := tx.First(&residence, "id = ?", req.ResidenceID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Residence not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	itemIDs := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		itemIDs = append(itemIDs, strings.TrimSpace(line.ItemID))
	}

	var items []models.InventoryItem
	if err := tx.Where("id IN ?", itemIDs).Find(&items).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	itemsByID := map[string]*models.InventoryItem{}
	for i := range items {
		itemsByID[items[i].ID] = &items[i]
	}

	var rows []models.ResidenceStock
	if err := tx.Where("item_id IN ? AND residence_id = ?", itemIDs, req.ResidenceID).Find(&rows).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	rowByItem := map[string]*models.ResidenceStock{}
	for i := range rows {
		rowByItem[rows[i].ItemID] = &rows[i]
	}

	// --- Validation phase ---

	// Duplicate lines for one item count against the balance cumulatively,
	// never each against the same snapshot.
	requested := map[string]int64{}
	for _, line := range req.Items {
		requested[strings.TrimSpace(line.ItemID)] += line.Quantity
	}

	for _, line := range req.Items {
		itemID := strings.TrimSpace(line.ItemID)
		if _, ok := itemsByID[itemID]; !ok {
			tx.Rollback()
			s.fail(c, http.StatusNotFound, fmt.Sprintf("Item not found: %q", itemID))
			return
		}
		row, ok := rowByItem[itemID]
		available := int64(0)
		if ok && row.Quantity > 0 {
			available = row.Quantity
		}
		if available < requested[itemID] {
			tx.Rollback()
			s.fail(c, http.StatusConflict, fmt.Sprintf("Insufficient stock for %q. Available: %d, Requested: %d",
				itemID, available, requested[itemID]))
			return
		}
	}

	// --- Write phase ---

	now := time.Now()
	voucher := models.IssueVoucher{
		ID:          "IV-" + uuid.NewString()[:8],
		ResidenceID: residence.ID,
		BuildingID:  req.BuildingID,
		RoomID:      req.RoomID,
		IssuedTo:    req.IssuedTo,
		Notes:       req.Notes,
		CreatedBy:   c.GetInt64(middleware.ContextUserID),
	}
	if err := tx.Create(&voucher).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to create voucher: "+err.Error())
		return
	}

	for _, line := range req.Items {
		itemID := strings.TrimSpace(line.ItemID)
		item := itemsByID[itemID]
		row := rowByItem[itemID]

		row.Quantity -= line.Quantity
		if err := tx.Save(row).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to update stock")
			return
		}

		if _, err := models.RecomputeItemStock(tx, itemID); err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to recompute stock total")
			return
		}

		voucherItem := models.IssueVoucherItem{
			VoucherID:  voucher.ID,
			ItemID:     itemID,
			ItemNameEn: item.NameEn,
			Quantity:   line.Quantity,
		}
		if err := tx.Create(&voucherItem).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to create voucher item")
			return
		}

		audit := models.InventoryTransaction{
			Type:          models.TransactionTypeOut,
			ItemID:        item.ID,
			ItemNameEn:    item.NameEn,
			ItemNameAr:    item.NameAr,
			ResidenceID:   residence.ID,
			ResidenceName: residence.Name,
			Quantity:      -line.Quantity,
			Reference:     voucher.ID,
			CreatedBy:     c.GetInt64(middleware.ContextUserID),
			Date:          now,
		}
		if err := tx.Create(&audit).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to create transaction record")
			return
		}
	}

	if err := tx.Commit().Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to commit transaction: "+err.Error())
		return
	}

	if err := s.db.Preload("Items").First(&voucher, "id = ?", voucher.ID).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to reload voucher")
		return
	}

	s.invalidateStockCaches(c)
	s.ok(c, http.StatusCreated, voucher)
}

func (s *IssuanceHandler) ListVouchers(c *gin.Context) {
	var vouchers []models.IssueVoucher

	query := s.db.Preload("Items").Order("created_at DESC")
	if residenceID := c.Query("residence_id"); residenceID != "" {
		query = query.Where("residence_id = ?", residenceID)
	}

	if err := query.Limit(100).Find(&vouchers).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.ok(c, http.StatusOK, vouchers)
}

func (s *IssuanceHandler) GetVoucher(c *gin.Context) {
	var voucher models.IssueVoucher
	if err := s.db.Preload("Items").First(&voucher, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Voucher not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.ok(c, http.StatusOK, voucher)
}
