package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatecare-system/internal/database/models"
)

func TestNextOrderNumber(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2025, time.August, 15, 10, 0, 0, 0, time.UTC)

	first, err := nextOrderNumber(db, now)
	require.NoError(t, err)
	assert.Equal(t, "MR-2508001", first)

	require.NoError(t, db.Create(&models.Order{ID: first, Status: models.OrderStatusPending}).Error)

	second, err := nextOrderNumber(db, now)
	require.NoError(t, err)
	assert.Equal(t, "MR-2508002", second)

	// The sequence restarts each month.
	september, err := nextOrderNumber(db, now.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, "MR-2509001", september)
}

func TestCreateOrder(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")

	r := newOrdersRouter(db, models.RoleTechnician)
	w := performRequest(r, http.MethodPost, "/orders", CreateOrderRequest{
		ResidenceID: "res-1",
		Items: []OrderLineRequest{
			{LineID: "paint::Red", ItemNameEn: "Paint", Quantity: 3},
			{LineID: "cement", ItemNameEn: "Cement", Quantity: 5},
		},
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, `^MR-\d{4}\d{3}$`, resp.Data.ID)
	assert.Equal(t, models.OrderStatusPending, resp.Data.Status)
	assert.Equal(t, "North Complex", resp.Data.ResidenceName)
	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, "paint::Red", resp.Data.Items[0].LineID)
	assert.Equal(t, int32(0), resp.Data.Items[0].Position)
	assert.Equal(t, int32(1), resp.Data.Items[1].Position)
}

func TestCreateOrder_Validation(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	r := newOrdersRouter(db, models.RoleTechnician)

	w := performRequest(r, http.MethodPost, "/orders", CreateOrderRequest{
		ResidenceID: "missing",
		Items:       []OrderLineRequest{{LineID: "paint", Quantity: 1}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(r, http.MethodPost, "/orders", CreateOrderRequest{
		ResidenceID: "res-1",
		Items:       []OrderLineRequest{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(r, http.MethodPost, "/orders", CreateOrderRequest{
		ResidenceID: "res-1",
		Items:       []OrderLineRequest{{LineID: "paint", Quantity: -2}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApproveOrder(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	seedOrder(t, db, "MR-2508001", "res-1", models.OrderStatusPending, nil)
	r := newOrdersRouter(db, models.RoleSupervisor)

	w := performRequest(r, http.MethodPost, "/orders/MR-2508001/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusApproved, orderStatus(t, db, "MR-2508001"))

	// Approving twice trips the state guard.
	w = performRequest(r, http.MethodPost, "/orders/MR-2508001/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelOrder(t *testing.T) {
	db := newTestDB(t)
	seedResidence(t, db, "res-1", "North Complex")
	seedOrder(t, db, "MR-2508001", "res-1", models.OrderStatusPending, nil)
	seedOrder(t, db, "MR-2508002", "res-1", models.OrderStatusDelivered, nil)
	r := newOrdersRouter(db, models.RoleSupervisor)

	w := performRequest(r, http.MethodPost, "/orders/MR-2508001/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusCancelled, orderStatus(t, db, "MR-2508001"))

	w = performRequest(r, http.MethodPost, "/orders/MR-2508002/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.OrderStatusDelivered, orderStatus(t, db, "MR-2508002"))
}

func TestGetOrder_NotFound(t *testing.T) {
	db := newTestDB(t)
	r := newOrdersRouter(db, models.RoleTechnician)

	w := performRequest(r, http.MethodGet, "/orders/MR-0000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
