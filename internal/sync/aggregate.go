package sync

import "stocklink/internal/services/pos"

// Aggregate is the merged stock picture for one item across locations.
type Aggregate struct {
	QtyOnHand    int
	Sellable     int
	ReorderPoint int
	ReorderLevel int
}

// AggregateInventory merges per-location records into one aggregate per
// item. A record for the sentinel "all locations" location wins outright;
// otherwise quantity-on-hand is summed and the first-seen sellable and
// reorder figures are carried. Items whose aggregated quantity-on-hand is
// not strictly positive are dropped; absence from the map is the signal
// later phases use to exclude them.
func AggregateInventory(records []pos.InventoryRecord) map[string]Aggregate {
	aggregates := make(map[string]Aggregate)
	sentinel := make(map[string]bool)

	for _, record := range records {
		if record.LocationID == pos.AllLocationsID {
			aggregates[record.ItemID] = Aggregate{
				QtyOnHand:    record.QtyOnHand,
				Sellable:     record.Sellable,
				ReorderPoint: record.ReorderPoint,
				ReorderLevel: record.ReorderLevel,
			}
			sentinel[record.ItemID] = true
			continue
		}
		if sentinel[record.ItemID] {
			continue
		}
		agg, seen := aggregates[record.ItemID]
		if !seen {
			aggregates[record.ItemID] = Aggregate{
				QtyOnHand:    record.QtyOnHand,
				Sellable:     record.Sellable,
				ReorderPoint: record.ReorderPoint,
				ReorderLevel: record.ReorderLevel,
			}
			continue
		}
		agg.QtyOnHand += record.QtyOnHand
		aggregates[record.ItemID] = agg
	}

	for itemID, agg := range aggregates {
		if agg.QtyOnHand <= 0 {
			delete(aggregates, itemID)
		}
	}
	return aggregates
}
