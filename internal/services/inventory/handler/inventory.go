package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"estatecare-system/internal/database/models"
	"estatecare-system/internal/middleware"
)

const (
	ITEMS_CACHE_KEY        = "inventory:items"
	CONSOLIDATED_CACHE_KEY = "inventory:report:consolidated"
	CACHE_TTL_MEDIUM       = 30 * time.Minute
)

type InventoryHandler struct {
	db     *gorm.DB
	redis  *redis.Client
	logger *zap.Logger
}

func NewInventoryHandler(db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

func (s *InventoryHandler) InvalidateInventoryCaches(c *gin.Context) {
	if s.redis != nil {
		_ = s.redis.Del(c.Request.Context(), ITEMS_CACHE_KEY, CONSOLIDATED_CACHE_KEY)
	}
}

func (s *InventoryHandler) fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *InventoryHandler) ok(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

// -- Items --

type CreateItemRequest struct {
	ID       string   `json:"id"`
	NameEn   string   `json:"name_en" binding:"required"`
	NameAr   string   `json:"name_ar"`
	Category string   `json:"category"`
	Unit     string   `json:"unit"`
	Variants []string `json:"variants"`
	UnitCost string   `json:"unit_cost"`
}

func (s *InventoryHandler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "name_en is required")
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	unitCost := req.UnitCost
	if unitCost != "" {
		if _, err := decimal.NewFromString(unitCost); err != nil {
			s.fail(c, http.StatusBadRequest, "unit_cost must be a decimal number")
			return
		}
	}

	item := models.InventoryItem{
		ID:       id,
		NameEn:   req.NameEn,
		NameAr:   req.NameAr,
		Category: req.Category,
		Unit:     req.Unit,
		Variants: req.Variants,
		UnitCost: unitCost,
		Stock:    0,
		IsActive: true,
	}

	if err := s.db.Create(&item).Error; err != nil {
		s.logger.Error("failed to create item", zap.Error(err))
		s.fail(c, http.StatusConflict, "Failed to create item, id may already exist")
		return
	}

	s.InvalidateInventoryCaches(c)
	s.ok(c, http.StatusCreated, item)
}

type UpdateItemRequest struct {
	NameEn   *string   `json:"name_en"`
	NameAr   *string   `json:"name_ar"`
	Category *string   `json:"category"`
	Unit     *string   `json:"unit"`
	Variants *[]string `json:"variants"`
	UnitCost *string   `json:"unit_cost"`
	IsActive *bool     `json:"is_active"`
}

func (s *InventoryHandler) UpdateItem(c *gin.Context) {
	var item models.InventoryItem
	if err := s.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Item not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.NameEn != nil {
		item.NameEn = *req.NameEn
	}
	if req.NameAr != nil {
		item.NameAr = *req.NameAr
	}
	if req.Category != nil {
		item.Category = *req.Category
	}
	if req.Unit != nil {
		item.Unit = *req.Unit
	}
	if req.Variants != nil {
		item.Variants = *req.Variants
	}
	if req.UnitCost != nil {
		if _, err := decimal.NewFromString(*req.UnitCost); err != nil {
			s.fail(c, http.StatusBadRequest, "unit_cost must be a decimal number")
			return
		}
		item.UnitCost = *req.UnitCost
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}

	if err := s.db.Save(&item).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to update item")
		return
	}

	s.InvalidateInventoryCaches(c)
	s.ok(c, http.StatusOK, item)
}

func (s *InventoryHandler) ListItems(c *gin.Context) {
	var items []models.InventoryItem
	var total int64

	query := s.db.Model(&models.InventoryItem{}).Preload("ResidenceStocks")

	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if active := c.Query("is_active"); active != "" {
		if v, err := strconv.ParseBool(active); err == nil {
			query = query.Where("is_active = ?", v)
		}
	}
	if search := c.Query("search"); search != "" {
		term := "%" + search + "%"
		query = query.Where("id LIKE ? OR name_en LIKE ? OR name_ar LIKE ?", term, term, term)
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
	if err := query.Order("name_en").Offset(offset).Limit(pageSize).Find(&items).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	nextPageToken := ""
	if int64(pageNumber*pageSize) < total {
		nextPageToken = strconv.Itoa(pageNumber + 1)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"data":            items,
		"total":           total,
		"next_page_token": nextPageToken,
	})
}

func (s *InventoryHandler) GetItem(c *gin.Context) {
	var item models.InventoryItem
	if err := s.db.Preload("ResidenceStocks").First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Item not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.ok(c, http.StatusOK, item)
}

// -- Transactions --

func (s *InventoryHandler) ListTransactions(c *gin.Context) {
	var transactions []models.InventoryTransaction

	query := s.db.Model(&models.InventoryTransaction{}).Order("date DESC, id DESC")

	if itemID := c.Query("item_id"); itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}
	if residenceID := c.Query("residence_id"); residenceID != "" {
		query = query.Where("residence_id = ?", residenceID)
	}
	if txType := c.Query("type"); txType != "" {
		query = query.Where("type = ?", txType)
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			query = query.Where("date >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			query = query.Where("date < ?", t.AddDate(0, 0, 1))
		}
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	if err := query.Limit(limit).Find(&transactions).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.ok(c, http.StatusOK, transactions)
}

// -- Audit adjustment --

type AdjustStockRequest struct {
	ItemID          string  `json:"item_id" binding:"required"`
	ResidenceID     string  `json:"residence_id" binding:"required"`
	CountedQuantity int64   `json:"counted_quantity"`
	Notes           *string `json:"notes"`
}

// AdjustStock sets an item's counted quantity for a residence, recording the
// signed difference as an ADJUSTMENT transaction.
func (s *InventoryHandler) AdjustStock(c *gin.Context) {
	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "item_id and residence_id are required")
		return
	}
	if req.CountedQuantity < 0 {
		s.fail(c, http.StatusBadRequest, "counted_quantity cannot be negative")
		return
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item models.InventoryItem
	if err := tx.First(&item, "id = ?", req.ItemID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Item not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

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

	var row models.ResidenceStock
	current := int64(0)
	err := tx.Where("item_id = ? AND residence_id = ?", req.ItemID, req.ResidenceID).First(&row).Error
	if err == nil {
		current = row.Quantity
	} else if err != gorm.ErrRecordNotFound {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	diff := req.CountedQuantity - current
	if diff == 0 {
		tx.Rollback()
		s.ok(c, http.StatusOK, gin.H{"item_id": req.ItemID, "quantity": current, "difference": 0})
		return
	}

	if row.ID == 0 {
		row = models.ResidenceStock{ItemID: req.ItemID, ResidenceID: req.ResidenceID}
	}
	row.Quantity = req.CountedQuantity
	if err := tx.Save(&row).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to update stock")
		return
	}

	if _, err := models.RecomputeItemStock(tx, req.ItemID); err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to recompute stock total")
		return
	}

	audit := models.InventoryTransaction{
		Type:          models.TransactionTypeAdjustment,
		ItemID:        item.ID,
		ItemNameEn:    item.NameEn,
		ItemNameAr:    item.NameAr,
		ResidenceID:   residence.ID,
		ResidenceName: residence.Name,
		Quantity:      diff,
		Reference:     "AUDIT",
		Notes:         req.Notes,
		CreatedBy:     c.GetInt64(middleware.ContextUserID),
		Date:          time.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to create adjustment record")
		return
	}

	if err := tx.Commit().Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to commit transaction: "+err.Error())
		return
	}

	s.InvalidateInventoryCaches(c)
	s.ok(c, http.StatusOK, gin.H{
		"item_id":    req.ItemID,
		"quantity":   req.CountedQuantity,
		"difference": diff,
	})
}

// -- Depreciation --

type DepreciationRequest struct {
	ItemID      string `json:"item_id" binding:"required"`
	ResidenceID string `json:"residence_id" binding:"required"`
	Quantity    int64  `json:"quantity" binding:"required"`
	UnitValue   string `json:"unit_value"`
	Reason      string `json:"reason"`
}

// Depreciate writes off stock from a residence. The write-off is clamped to
// the available quantity so a sub-balance never goes negative.
func (s *InventoryHandler) Depreciate(c *gin.Context) {
	var req DepreciationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "item_id, residence_id and quantity are required")
		return
	}
	if req.Quantity <= 0 {
		s.fail(c, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	unitValue := decimal.Zero
	if req.UnitValue != "" {
		v, err := decimal.NewFromString(req.UnitValue)
		if err != nil {
			s.fail(c, http.StatusBadRequest, "unit_value must be a decimal number")
			return
		}
		unitValue = v
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item models.InventoryItem
	if err := tx.First(&item, "id = ?", req.ItemID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Item not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

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

	var row models.ResidenceStock
	if err := tx.Where("item_id = ? AND residence_id = ?", req.ItemID, req.ResidenceID).First(&row).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusUnprocessableEntity, "No stock for this item at this residence")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	available := row.Quantity
	if available < 0 {
		available = 0
	}
	writeOff := req.Quantity
	if writeOff > available {
		writeOff = available
	}

	row.Quantity = available - writeOff
	if err := tx.Save(&row).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to update stock")
		return
	}

	if _, err := models.RecomputeItemStock(tx, req.ItemID); err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to recompute stock total")
		return
	}

	totalValue := unitValue.Mul(decimal.NewFromInt(writeOff))
	entry := models.DepreciationEntry{
		ItemID:      item.ID,
		ResidenceID: residence.ID,
		Quantity:    writeOff,
		UnitValue:   unitValue.StringFixed(2),
		TotalValue:  totalValue.StringFixed(2),
		Reason:      req.Reason,
		CreatedBy:   c.GetInt64(middleware.ContextUserID),
		Date:        time.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to create depreciation entry")
		return
	}

	notes := "Depreciation"
	if req.Reason != "" {
		notes = "Depreciation: " + req.Reason
	}
	audit := models.InventoryTransaction{
		Type:          models.TransactionTypeOut,
		ItemID:        item.ID,
		ItemNameEn:    item.NameEn,
		ItemNameAr:    item.NameAr,
		ResidenceID:   residence.ID,
		ResidenceName: residence.Name,
		Quantity:      -writeOff,
		Reference:     "DEPRECIATION",
		Notes:         &notes,
		CreatedBy:     c.GetInt64(middleware.ContextUserID),
		Date:          time.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to create transaction record")
		return
	}

	if err := tx.Commit().Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to commit transaction: "+err.Error())
		return
	}

	s.InvalidateInventoryCaches(c)
	s.ok(c, http.StatusOK, entry)
}

func (s *InventoryHandler) ListDepreciation(c *gin.Context) {
	var entries []models.DepreciationEntry

	query := s.db.Order("date DESC, id DESC")
	if itemID := c.Query("item_id"); itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}
	if residenceID := c.Query("residence_id"); residenceID != "" {
		query = query.Where("residence_id = ?", residenceID)
	}

	if err := query.Limit(200).Find(&entries).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.ok(c, http.StatusOK, entries)
}

// -- Reports --

type movementTotals struct {
	In  int64 `json:"in"`
	Out int64 `json:"out"`
	Net int64 `json:"net"`
}

type itemMovement struct {
	ItemID     string `json:"item_id"`
	ItemNameEn string `json:"item_name_en"`
	In         int64  `json:"in"`
	Out        int64  `json:"out"`
}

// StockMovementReport aggregates the transaction log per item over the
// requested filters.
func (s *InventoryHandler) StockMovementReport(c *gin.Context) {
	var transactions []models.InventoryTransaction

	query := s.db.Model(&models.InventoryTransaction{}).Order("date")
	if itemID := c.Query("item_id"); itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}
	if residenceID := c.Query("residence_id"); residenceID != "" {
		query = query.Where("residence_id = ?", residenceID)
	}
	if txType := c.Query("type"); txType != "" {
		query = query.Where("type = ?", txType)
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			query = query.Where("date >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			query = query.Where("date < ?", t.AddDate(0, 0, 1))
		}
	}

	if err := query.Find(&transactions).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	totals := movementTotals{}
	perItem := map[string]*itemMovement{}
	order := []string{}

	for _, t := range transactions {
		entry, ok := perItem[t.ItemID]
		if !ok {
			entry = &itemMovement{ItemID: t.ItemID, ItemNameEn: t.ItemNameEn}
			perItem[t.ItemID] = entry
			order = append(order, t.ItemID)
		}
		if t.Quantity >= 0 {
			entry.In += t.Quantity
			totals.In += t.Quantity
		} else {
			entry.Out += -t.Quantity
			totals.Out += -t.Quantity
		}
	}
	totals.Net = totals.In - totals.Out

	items := make([]itemMovement, 0, len(order))
	for _, id := range order {
		items = append(items, *perItem[id])
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"totals":       totals,
		"items":        items,
		"transactions": transactions,
	})
}

type consolidatedRow struct {
	ItemID      string           `json:"item_id"`
	ItemNameEn  string           `json:"item_name_en"`
	Unit        string           `json:"unit"`
	Total       int64            `json:"total"`
	TotalValue  string           `json:"total_value"`
	ByResidence map[string]int64 `json:"by_residence"`
}

// ConsolidatedReport lists every item with its per-residence sub-balances.
// The result is cached; any stock mutation invalidates it.
func (s *InventoryHandler) ConsolidatedReport(c *gin.Context) {
	if s.redis != nil {
		if cached, err := s.redis.Get(c.Request.Context(), CONSOLIDATED_CACHE_KEY).Result(); err == nil {
			var rows []consolidatedRow
			if json.Unmarshal([]byte(cached), &rows) == nil {
				c.JSON(http.StatusOK, gin.H{
					"success": true,
					"data":    rows,
					"cached":  true,
				})
				return
			}
		}
	}

	var items []models.InventoryItem
	if err := s.db.Preload("ResidenceStocks").Order("name_en").Find(&items).Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	rows := make([]consolidatedRow, 0, len(items))
	for _, item := range items {
		row := consolidatedRow{
			ItemID:      item.ID,
			ItemNameEn:  item.NameEn,
			Unit:        item.Unit,
			Total:       item.Stock,
			ByResidence: map[string]int64{},
		}
		for _, stock := range item.ResidenceStocks {
			qty := stock.Quantity
			if qty < 0 {
				qty = 0
			}
			row.ByResidence[stock.ResidenceID] = qty
		}

		unitCost, err := decimal.NewFromString(item.UnitCost)
		if err != nil {
			unitCost = decimal.Zero
		}
		row.TotalValue = unitCost.Mul(decimal.NewFromInt(item.Stock)).StringFixed(2)

		rows = append(rows, row)
	}

	if s.redis != nil {
		if payload, err := json.Marshal(rows); err == nil {
			_ = s.redis.Set(c.Request.Context(), CONSOLIDATED_CACHE_KEY, payload, CACHE_TTL_MEDIUM)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rows,
		"cached":  false,
	})
}
