package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
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

func asRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, int64(1))
		c.Set(middleware.ContextUsername, "tester")
		c.Set(middleware.ContextRole, role)
		c.Next()
	}
}

func newOrdersRouter(db *gorm.DB, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewOrderHandler(db, nil, zap.NewNop())

	r := gin.New()
	r.POST("/orders", asRole(role), h.CreateOrder)
	r.GET("/orders/:id", asRole(role), h.GetOrder)
	r.POST("/orders/:id/approve", asRole(role), h.ApproveOrder)
	r.POST("/orders/:id/cancel", asRole(role), h.CancelOrder)
	r.POST("/orders/:id/receive", asRole(role), h.ReceiveOrderItems)
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

// queryCounter counts every statement gorm issues, so tests can assert that
// a rejected call never touched the store.
type queryCounter struct {
	count int
}

func attachQueryCounter(t *testing.T, db *gorm.DB) *queryCounter {
	t.Helper()

	qc := &queryCounter{}
	bump := func(*gorm.DB) { qc.count++ }

	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test_count_query", bump))
	require.NoError(t, db.Callback().Raw().Before("gorm:raw").Register("test_count_raw", bump))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("test_count_row", bump))
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test_count_create", bump))
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test_count_update", bump))
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test_count_delete", bump))
	return qc
}

func seedResidence(t *testing.T, db *gorm.DB, id, name string) models.Complex {
	t.Helper()
	residence := models.Complex{ID: id, Name: name, IsActive: true}
	require.NoError(t, db.Create(&residence).Error)
	return residence
}

func seedItem(t *testing.T, db *gorm.DB, id, name string) models.InventoryItem {
	t.Helper()
	item := models.InventoryItem{ID: id, NameEn: name, IsActive: true}
	require.NoError(t, db.Create(&item).Error)
	return item
}

func seedOrder(t *testing.T, db *gorm.DB, id, residenceID, status string, lines []models.OrderItem) models.Order {
	t.Helper()
	order := models.Order{ID: id, ResidenceID: residenceID, ResidenceName: "Test Residence", Status: status}
	require.NoError(t, db.Create(&order).Error)
	for i := range lines {
		lines[i].OrderID = id
		lines[i].Position = int32(i)
		require.NoError(t, db.Create(&lines[i]).Error)
	}
	return order
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

func itemStockTotal(t *testing.T, db *gorm.DB, itemID string) int64 {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, db.First(&item, "id = ?", itemID).Error)
	return item.Stock
}

func orderStatus(t *testing.T, db *gorm.DB, orderID string) string {
	t.Helper()
	var order models.Order
	require.NoError(t, db.First(&order, "id = ?", orderID).Error)
	return order.Status
}

func lineReceived(t *testing.T, db *gorm.DB, orderID, lineID string) int64 {
	t.Helper()
	var line models.OrderItem
	require.NoError(t, db.Where("order_id = ? AND line_id = ?", orderID, lineID).First(&line).Error)
	return line.QuantityReceived
}

func countTransactions(t *testing.T, db *gorm.DB, txType string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.InventoryTransaction{}).Where("type = ?", txType).Count(&count).Error)
	return count
}

func receiveBody(force bool, lines ...ReceivedLine) ReceiveOrderRequest {
	return ReceiveOrderRequest{Items: lines, ForceComplete: force}
}
