package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// ProductAddedEvent is emitted after a new product is committed.
type ProductAddedEvent struct {
	EventID   string    `json:"event_id"`
	ProductID uint      `json:"product_id"`
	Name      string    `json:"name"`
	Inventory int       `json:"inventory"`
	Price     float64   `json:"price"`
	AddedAt   time.Time `json:"added_at"`
}

// ProductAddedV1 is the typed event definition for product creation.
// Subject: events.catalog.v1.product-added
var ProductAddedV1 = helper.EventDefinition[ProductAddedEvent](
	"catalog", "ProductAdded", "v1",
)

// ProductRemovedEvent is emitted after a product deletion is committed.
type ProductRemovedEvent struct {
	EventID   string    `json:"event_id"`
	ProductID uint      `json:"product_id"`
	Name      string    `json:"name"`
	RemovedAt time.Time `json:"removed_at"`
}

// ProductRemovedV1 is the typed event definition for product removal.
// Subject: events.catalog.v1.product-removed
var ProductRemovedV1 = helper.EventDefinition[ProductRemovedEvent](
	"catalog", "ProductRemoved", "v1",
)

// OrderPlacedEvent is emitted after an order and its inventory decrement are committed.
type OrderPlacedEvent struct {
	EventID            string    `json:"event_id"`
	OrderID            uint      `json:"order_id"`
	ProductID          uint      `json:"product_id"`
	ProductName        string    `json:"product_name"`
	Quantity           int       `json:"quantity"`
	CustomerIdentifier string    `json:"customer_identifier"`
	RemainingInventory int       `json:"remaining_inventory"`
	PlacedAt           time.Time `json:"placed_at"`
}

// OrderPlacedV1 is the typed event definition for placed orders.
// Subject: events.catalog.v1.order-placed
var OrderPlacedV1 = helper.EventDefinition[OrderPlacedEvent](
	"catalog", "OrderPlaced", "v1",
)
