package pos

import "time"

// Item is one stock-keeping unit as the POS platform reports it. Decoded
// once at the client boundary; never persisted verbatim.
type Item struct {
	ID             string    `json:"itemID"`
	Description    string    `json:"description"`
	CategoryID     string    `json:"categoryID"`
	ManufacturerID string    `json:"manufacturerID"`
	UPC            *string   `json:"upc"`
	ModelYear      int       `json:"modelYear"`
	Prices         []Price   `json:"prices"`
	Images         []Image   `json:"images"`
	TimeStamp      time.Time `json:"timeStamp"`
}

type Price struct {
	Amount  float64 `json:"amount"`
	UseType string  `json:"useType"`
}

type Image struct {
	URL      string `json:"url"`
	Ordering int    `json:"ordering"`
}

// DefaultPrice returns the "Default" price when present, otherwise the
// first listed price.
func (i *Item) DefaultPrice() float64 {
	for _, p := range i.Prices {
		if p.UseType == "Default" {
			return p.Amount
		}
	}
	if len(i.Prices) > 0 {
		return i.Prices[0].Amount
	}
	return 0
}

// PrimaryImageURL returns the lowest-ordered image URL, or "".
func (i *Item) PrimaryImageURL() string {
	if len(i.Images) == 0 {
		return ""
	}
	best := i.Images[0]
	for _, img := range i.Images[1:] {
		if img.Ordering < best.Ordering {
			best = img
		}
	}
	return best.URL
}

// AllLocationsID is the sentinel location whose inventory record already
// aggregates every physical location.
const AllLocationsID = "0"

// InventoryRecord is per-item, per-location stock as reported by the POS.
type InventoryRecord struct {
	ItemID       string `json:"itemID"`
	LocationID   string `json:"locationID"`
	QtyOnHand    int    `json:"qoh"`
	Sellable     int    `json:"sellable"`
	ReorderPoint int    `json:"reorderPoint"`
	ReorderLevel int    `json:"reorderLevel"`
}

type Category struct {
	ID       string `json:"categoryID"`
	Name     string `json:"name"`
	FullPath string `json:"fullPathName"`
}

type Manufacturer struct {
	ID   string `json:"manufacturerID"`
	Name string `json:"name"`
}
