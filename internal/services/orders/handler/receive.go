package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"estatecare-system/internal/database/models"
	"estatecare-system/internal/middleware"
)

// Receiving records the arrival of goods against a requisition order. The
// whole operation runs inside one database transaction: all reads happen
// first, then pure validation, then all writes, so either every mutation
// (stock rows, audit rows, order lines, status) commits or none do.

type ReceivedLine struct {
	LineID           string `json:"line_id"`
	QuantityReceived int64  `json:"quantity_received"`
}

type ReceiveOrderRequest struct {
	Items         []ReceivedLine `json:"items"`
	ForceComplete bool           `json:"force_complete"`
}

// sanitizeReceivedLines drops lines with a blank id or a non-positive
// quantity. Line ids are trimmed.
func sanitizeReceivedLines(lines []ReceivedLine) []ReceivedLine {
	sanitized := make([]ReceivedLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.LineID)
		if id == "" || line.QuantityReceived <= 0 {
			continue
		}
		sanitized = append(sanitized, ReceivedLine{LineID: id, QuantityReceived: line.QuantityReceived})
	}
	return sanitized
}

// candidateItemIDs derives the base-item candidates for a possibly composite
// line id: the raw id, the part before "::", then the part before "-". The
// first candidate that exists in the catalog wins.
func candidateItemIDs(lineID string) []string {
	candidates := []string{lineID}
	if idx := strings.Index(lineID, "::"); idx > 0 {
		candidates = appendUnique(candidates, lineID[:idx])
	}
	if idx := strings.Index(lineID, "-"); idx > 0 {
		candidates = appendUnique(candidates, lineID[:idx])
	}
	return candidates
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

// resolveBaseItem picks the first candidate present in the catalog map.
func resolveBaseItem(lineID string, itemsByID map[string]*models.InventoryItem) *models.InventoryItem {
	for _, candidate := range candidateItemIDs(lineID) {
		if item, ok := itemsByID[candidate]; ok {
			return item
		}
	}
	return nil
}

// aggregateByBaseItem sums received quantities per resolved base item so each
// item gets exactly one stock update even when several variant lines share
// it. Returns base ids in first-seen order for deterministic writes.
func aggregateByBaseItem(lines []ReceivedLine, baseOf map[string]string) ([]string, map[string]int64) {
	order := make([]string, 0, len(lines))
	deltas := make(map[string]int64, len(lines))
	for _, line := range lines {
		baseID, ok := baseOf[line.LineID]
		if !ok {
			continue
		}
		if _, seen := deltas[baseID]; !seen {
			order = append(order, baseID)
		}
		deltas[baseID] += line.QuantityReceived
	}
	return order, deltas
}

// allocateToOrderLines distributes a per-item received delta back onto the
// order's own lines sharing that base item, in list order: each line takes
// min(remaining, requested-received). Any surplus left after all lines are
// satisfied is dumped entirely on the FIRST line sharing the item;
// over-receipt is recorded, not rejected.
func allocateToOrderLines(lines []models.OrderItem, lineBase map[int64]string, baseID string, delta int64) {
	remaining := delta
	firstIdx := -1

	for i := range lines {
		if lineBase[lines[i].ID] != baseID {
			continue
		}
		if firstIdx < 0 {
			firstIdx = i
		}
		room := lines[i].Quantity - lines[i].QuantityReceived
		if room < 0 {
			room = 0
		}
		take := remaining
		if take > room {
			take = room
		}
		lines[i].QuantityReceived += take
		remaining -= take
		if remaining == 0 {
			break
		}
	}

	if remaining > 0 && firstIdx >= 0 {
		lines[firstIdx].QuantityReceived += remaining
	}
}

// deriveOrderStatus recomputes fulfillment status from the order lines.
func deriveOrderStatus(lines []models.OrderItem, forceComplete bool) string {
	if forceComplete {
		return models.OrderStatusDelivered
	}
	for _, line := range lines {
		if line.QuantityReceived < line.Quantity {
			return models.OrderStatusPartiallyDelivered
		}
	}
	return models.OrderStatusDelivered
}

func (s *OrderHandler) ReceiveOrderItems(c *gin.Context) {
	// Permission check comes before any database access.
	role := c.GetString(middleware.ContextRole)
	if role != models.RoleAdmin && role != models.RoleSupervisor {
		s.fail(c, http.StatusForbidden, "Only Admin or Supervisor can receive order items")
		return
	}

	var req ReceiveOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sanitized := sanitizeReceivedLines(req.Items)
	if len(sanitized) == 0 && !req.ForceComplete {
		s.fail(c, http.StatusBadRequest, "No valid items to receive")
		return
	}

	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// --- Read phase ---

	var order models.Order
	if err := tx.Preload("Items", orderItemsInPosition).First(&order, "id = ?", c.Param("id")).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			s.fail(c, http.StatusNotFound, "Order not found")
			return
		}
		s.fail(c, http.StatusInternalServerError, "Database error")
		return
	}

	if order.ResidenceID == "" {
		tx.Rollback()
		s.fail(c, http.StatusUnprocessableEntity, "Order has no residence reference")
		return
	}

	// Candidates for the received lines and for the order's own lines are
	// collected up front and fetched in one batch, before any write.
	candidateSet := map[string]bool{}
	for _, line := range sanitized {
		for _, candidate := range candidateItemIDs(line.LineID) {
			candidateSet[candidate] = true
		}
	}
	for _, line := range order.Items {
		for _, candidate := range candidateItemIDs(line.LineID) {
			candidateSet[candidate] = true
		}
	}

	itemsByID := map[string]*models.InventoryItem{}
	if len(candidateSet) > 0 {
		candidates := make([]string, 0, len(candidateSet))
		for id := range candidateSet {
			candidates = append(candidates, id)
		}
		var items []models.InventoryItem
		if err := tx.Where("id IN ?", candidates).Find(&items).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Database error")
			return
		}
		for i := range items {
			itemsByID[items[i].ID] = &items[i]
		}
	}

	// --- Validation phase (pure) ---

	// Every sanitized line must resolve to a real catalog entry. One
	// unresolvable line aborts the whole receipt; there is no best-effort
	// subset receiving.
	baseOf := map[string]string{}
	for _, line := range sanitized {
		item := resolveBaseItem(line.LineID, itemsByID)
		if item == nil {
			tx.Rollback()
			s.fail(c, http.StatusNotFound, fmt.Sprintf("Item not found for line %q", line.LineID))
			return
		}
		baseOf[line.LineID] = item.ID
	}

	baseOrder, deltas := aggregateByBaseItem(sanitized, baseOf)

	lineBase := map[int64]string{}
	for _, line := range order.Items {
		if item := resolveBaseItem(line.LineID, itemsByID); item != nil {
			lineBase[line.ID] = item.ID
		}
	}

	// Remaining reads: every residence sub-balance of the touched items, so
	// denormalized totals can be recomputed without reading after writes.
	stockRows := map[string][]models.ResidenceStock{}
	if len(baseOrder) > 0 {
		var rows []models.ResidenceStock
		if err := tx.Where("item_id IN ?", baseOrder).Find(&rows).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Database error")
			return
		}
		for _, row := range rows {
			stockRows[row.ItemID] = append(stockRows[row.ItemID], row)
		}
	}

	// --- Write phase ---

	now := time.Now()

	for _, baseID := range baseOrder {
		delta := deltas[baseID]
		rows := stockRows[baseID]

		idx := -1
		for i := range rows {
			if rows[i].ResidenceID == order.ResidenceID {
				idx = i
				break
			}
		}
		if idx < 0 {
			rows = append(rows, models.ResidenceStock{
				ItemID:      baseID,
				ResidenceID: order.ResidenceID,
			})
			idx = len(rows) - 1
		}

		// Missing entries count as zero and a corrupt negative balance is
		// floored at zero before the delta is applied.
		current := rows[idx].Quantity
		if current < 0 {
			current = 0
		}
		rows[idx].Quantity = current + delta

		if err := tx.Save(&rows[idx]).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to update stock")
			return
		}

		total := models.ClampedStockTotal(rows)
		if err := tx.Model(&models.InventoryItem{}).Where("id = ?", baseID).Update("stock", total).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to update stock total")
			return
		}
	}

	// One audit row per received line, not per aggregated item.
	for _, line := range sanitized {
		item := itemsByID[baseOf[line.LineID]]
		audit := models.InventoryTransaction{
			Type:          models.TransactionTypeIn,
			ItemID:        item.ID,
			ItemNameEn:    item.NameEn,
			ItemNameAr:    item.NameAr,
			ResidenceID:   order.ResidenceID,
			ResidenceName: order.ResidenceName,
			Quantity:      line.QuantityReceived,
			Reference:     order.ID,
			CreatedBy:     c.GetInt64(middleware.ContextUserID),
			Date:          now,
		}
		if err := tx.Create(&audit).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to create transaction record")
			return
		}
	}

	for _, baseID := range baseOrder {
		allocateToOrderLines(order.Items, lineBase, baseID, deltas[baseID])
	}
	for i := range order.Items {
		if err := tx.Model(&models.OrderItem{}).Where("id = ?", order.Items[i].ID).
			Update("quantity_received", order.Items[i].QuantityReceived).Error; err != nil {
			tx.Rollback()
			s.fail(c, http.StatusInternalServerError, "Failed to update order line")
			return
		}
	}

	order.Status = deriveOrderStatus(order.Items, req.ForceComplete)
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", order.Status).Error; err != nil {
		tx.Rollback()
		s.fail(c, http.StatusInternalServerError, "Failed to update order status")
		return
	}

	if err := tx.Commit().Error; err != nil {
		s.fail(c, http.StatusInternalServerError, "Failed to commit transaction: "+err.Error())
		return
	}

	s.invalidateOrderCaches(c)
	s.publishOrderEvent(c, OrderEvent{
		EventType: "order_received",
		OrderID:   order.ID,
		Status:    order.Status,
		Timestamp: now,
	})

	s.ok(c, http.StatusOK, order)
}
