package models

import "gorm.io/gorm"

// ClampedStockTotal sums residence sub-balances treating any negative entry
// as zero. Stray negative rows from older data must never drag the
// denormalized total down.
func ClampedStockTotal(rows []ResidenceStock) int64 {
	var total int64
	for _, row := range rows {
		if row.Quantity > 0 {
			total += row.Quantity
		}
	}
	return total
}

// RecomputeItemStock refreshes an item's denormalized stock total from its
// ResidenceStock rows. Must be called inside the same transaction as the
// mutation that changed the rows; the total is always recomputed, never
// incremented independently.
func RecomputeItemStock(tx *gorm.DB, itemID string) (int64, error) {
	var rows []ResidenceStock
	if err := tx.Where("item_id = ?", itemID).Find(&rows).Error; err != nil {
		return 0, err
	}

	total := ClampedStockTotal(rows)
	if err := tx.Model(&InventoryItem{}).Where("id = ?", itemID).Update("stock", total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
