package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"estatecare-system/internal/database"
	"estatecare-system/internal/database/models"
	"estatecare-system/internal/middleware"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	return db
}

func newInventoryRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewInventoryHandler(db, nil, zap.NewNop())

	asAdmin := func(c *gin.Context) {
		c.Set(middleware.ContextUserID, int64(1))
		c.Set(middleware.ContextUsername, "tester")
		c.Set(middleware.ContextRole, models.RoleAdmin)
		c.Next()
	}

	r := gin.New()
	r.POST("/items", asAdmin, h.CreateItem)
	r.PUT("/items/:id", asAdmin, h.UpdateItem)
	r.GET("/items", asAdmin, h.ListItems)
	r.GET("/items/:id", asAdmin, h.GetItem)
	r.GET("/transactions", asAdmin, h.ListTransactions)
	r.POST("/adjust", asAdmin, h.AdjustStock)
	r.POST("/depreciation", asAdmin, h.Depreciate)
	r.GET("/depreciation", asAdmin, h.ListDepreciation)
	r.GET("/reports/stock-movement", asAdmin, h.StockMovementReport)
	r.GET("/reports/consolidated", asAdmin, h.ConsolidatedReport)
	return r
}

func performRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedResidence(t *testing.T, db *gorm.DB, id, name string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Complex{ID: id, Name: name, IsActive: true}).Error)
}

func seedItemWithStock(t *testing.T, db *gorm.DB, itemID, residenceID string, qty int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.InventoryItem{
		ID: itemID, NameEn: itemID, Stock: qty, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&models.ResidenceStock{
		ItemID: itemID, ResidenceID: residenceID, Quantity: qty,
	}).Error)
}

func residenceStock(t *testing.T, db *gorm.DB, itemID, residenceID string) int64 {
	t.Helper()
	var row models.ResidenceStock
	err := db.Where("item_id = ? AND residence_id = ?", itemID, residenceID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0
	}
	require.NoError(t, err)
	return row.Quantity
}

func TestCreateItem(t *testing.T) {
	db := newTestDB(t)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodPost, "/items", CreateItemRequest{
		ID:       "paint",
		NameEn:   "Paint",
		NameAr:   "دهان",
		Category: "finishing",
		Unit:     "can",
		Variants: []string{"Red", "Blue"},
		UnitCost: "12.50",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var item models.InventoryItem
	require.NoError(t, db.First(&item, "id = ?", "paint").Error)
	assert.Equal(t, "Paint", item.NameEn)
	assert.Equal(t, models.StringList{"Red", "Blue"}, item.Variants)
	assert.Equal(t, int64(0), item.Stock)

	// Duplicate id is rejected.
	w = performRequest(r, http.MethodPost, "/items", CreateItemRequest{ID: "paint", NameEn: "Paint"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Malformed cost is rejected.
	w = performRequest(r, http.MethodPost, "/items", CreateItemRequest{NameEn: "Cement", UnitCost: "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateItem(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&models.InventoryItem{ID: "paint", NameEn: "Paint", IsActive: true}).Error)
	r := newInventoryRouter(db)

	inactive := false
	nameAr := "دهان"
	w := performRequest(r, http.MethodPut, "/items/paint", UpdateItemRequest{
		NameAr: &nameAr, IsActive: &inactive,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var item models.InventoryItem
	require.NoError(t, db.First(&item, "id = ?", "paint").Error)
	assert.Equal(t, "دهان", item.NameAr)
	assert.False(t, item.IsActive)
	assert.Equal(t, "Paint", item.NameEn)

	w = performRequest(r, http.MethodPut, "/items/missing", UpdateItemRequest{NameAr: &nameAr})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdjustStock(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	seedItemWithStock(t, db, "paint", "res-1", 10)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodPost, "/adjust", AdjustStockRequest{
		ItemID: "paint", ResidenceID: "res-1", CountedQuantity: 7,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, int64(7), residenceStock(t, db, "paint", "res-1"))

	var item models.InventoryItem
	require.NoError(t, db.First(&item, "id = ?", "paint").Error)
	assert.Equal(t, int64(7), item.Stock)

	var audit models.InventoryTransaction
	require.NoError(t, db.Where("type = ?", models.TransactionTypeAdjustment).First(&audit).Error)
	assert.Equal(t, int64(-3), audit.Quantity)
	assert.Equal(t, "AUDIT", audit.Reference)
}

func TestAdjustStock_NoChange(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	seedItemWithStock(t, db, "paint", "res-1", 10)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodPost, "/adjust", AdjustStockRequest{
		ItemID: "paint", ResidenceID: "res-1", CountedQuantity: 10,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// A zero difference writes no adjustment row.
	var count int64
	require.NoError(t, db.Model(&models.InventoryTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAdjustStock_FirstCount(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	require.NoError(t, db.Create(&models.InventoryItem{ID: "paint", NameEn: "Paint", IsActive: true}).Error)
	r := newInventoryRouter(db)

	// No stock row yet: the count creates one.
	w := performRequest(r, http.MethodPost, "/adjust", AdjustStockRequest{
		ItemID: "paint", ResidenceID: "res-1", CountedQuantity: 5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(5), residenceStock(t, db, "paint", "res-1"))
}

func TestDepreciate(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	seedItemWithStock(t, db, "paint", "res-1", 10)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodPost, "/depreciation", DepreciationRequest{
		ItemID: "paint", ResidenceID: "res-1", Quantity: 4, UnitValue: "12.50", Reason: "water damage",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, int64(6), residenceStock(t, db, "paint", "res-1"))

	var entry models.DepreciationEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, int64(4), entry.Quantity)
	assert.Equal(t, "12.50", entry.UnitValue)
	assert.Equal(t, "50.00", entry.TotalValue)

	var audit models.InventoryTransaction
	require.NoError(t, db.Where("type = ?", models.TransactionTypeOut).First(&audit).Error)
	assert.Equal(t, int64(-4), audit.Quantity)
	assert.Equal(t, "DEPRECIATION", audit.Reference)
}

func TestDepreciate_ClampsToAvailable(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	seedItemWithStock(t, db, "paint", "res-1", 3)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodPost, "/depreciation", DepreciationRequest{
		ItemID: "paint", ResidenceID: "res-1", Quantity: 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Only the 3 available are written off; the balance never goes negative.
	assert.Equal(t, int64(0), residenceStock(t, db, "paint", "res-1"))

	var entry models.DepreciationEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, int64(3), entry.Quantity)
}

func TestDepreciate_NoStockRow(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	require.NoError(t, db.Create(&models.InventoryItem{ID: "paint", NameEn: "Paint", IsActive: true}).Error)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodPost, "/depreciation", DepreciationRequest{
		ItemID: "paint", ResidenceID: "res-1", Quantity: 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStockMovementReport(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	seedItemWithStock(t, db, "paint", "res-1", 10)
	require.NoError(t, db.Create(&models.InventoryTransaction{
		Type: models.TransactionTypeIn, ItemID: "paint", ItemNameEn: "paint",
		ResidenceID: "res-1", Quantity: 10, Reference: "MR-2508001",
	}).Error)
	require.NoError(t, db.Create(&models.InventoryTransaction{
		Type: models.TransactionTypeOut, ItemID: "paint", ItemNameEn: "paint",
		ResidenceID: "res-1", Quantity: -4, Reference: "IV-abc",
	}).Error)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodGet, "/reports/stock-movement?item_id=paint", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Totals movementTotals `json:"totals"`
		Items  []itemMovement `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(10), resp.Totals.In)
	assert.Equal(t, int64(4), resp.Totals.Out)
	assert.Equal(t, int64(6), resp.Totals.Net)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(10), resp.Items[0].In)
	assert.Equal(t, int64(4), resp.Items[0].Out)
}

func TestConsolidatedReport(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	require.NoError(t, db.Create(&models.InventoryItem{
		ID: "paint", NameEn: "Paint", Unit: "can", UnitCost: "2.50", Stock: 6, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&models.ResidenceStock{ItemID: "paint", ResidenceID: "res-1", Quantity: 6}).Error)
	require.NoError(t, db.Create(&models.ResidenceStock{ItemID: "paint", ResidenceID: "res-2", Quantity: -3}).Error)
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodGet, "/reports/consolidated", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data   []consolidatedRow `json:"data"`
		Cached bool              `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	require.Len(t, resp.Data, 1)
	row := resp.Data[0]
	assert.Equal(t, int64(6), row.Total)
	assert.Equal(t, "15.00", row.TotalValue)
	assert.Equal(t, int64(6), row.ByResidence["res-1"])
	// Corrupt negative balances render as zero.
	assert.Equal(t, int64(0), row.ByResidence["res-2"])
}

func TestListItems_SearchAndPaging(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 25; i++ {
		require.NoError(t, db.Create(&models.InventoryItem{
			ID: fmt.Sprintf("item-%02d", i), NameEn: fmt.Sprintf("Widget %02d", i), IsActive: true,
		}).Error)
	}
	r := newInventoryRouter(db)

	w := performRequest(r, http.MethodGet, "/items?page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data          []models.InventoryItem `json:"data"`
		Total         int64                  `json:"total"`
		NextPageToken string                 `json:"next_page_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 10)
	assert.Equal(t, int64(25), resp.Total)
	assert.Equal(t, "2", resp.NextPageToken)

	w = performRequest(r, http.MethodGet, "/items?search=Widget+07", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, "item-07", resp.Data[0].ID)
}
