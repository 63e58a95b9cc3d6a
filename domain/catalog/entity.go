package catalog

import "time"

// Product represents a product in the catalog.
type Product struct {
	ID          uint    `gorm:"primarykey" json:"id"`
	Name        string  `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description *string `gorm:"type:text" json:"description"`
	Inventory   int     `gorm:"not null;default:0;check:chk_products_inventory,inventory >= 0" json:"inventory"`
	Price       float64 `gorm:"type:numeric(10,2);not null;default:0;check:chk_products_price,price >= 0" json:"price"`
}

// TableName returns the table name for Product model.
func (Product) TableName() string {
	return "products"
}

// Order records a fulfilled purchase of a product.
type Order struct {
	ID                 uint      `gorm:"primarykey" json:"id"`
	ProductID          uint      `gorm:"not null;index" json:"product_id"`
	Product            *Product  `gorm:"constraint:OnDelete:RESTRICT;" json:"-"`
	Quantity           int       `gorm:"not null;check:chk_orders_quantity,quantity > 0" json:"quantity"`
	CustomerIdentifier string    `gorm:"size:255;not null" json:"customer_identifier"`
	CreatedAt          time.Time `json:"created_at"`
}

// TableName returns the table name for Order model.
func (Order) TableName() string {
	return "orders"
}

// Models returns the models whose tables must exist before the catalog can serve requests.
func Models() []any {
	return []any{&Product{}, &Order{}}
}
