package catalog

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInventoryChanged is returned by DecrementInventory when the guarded
// update matched no row, either because the product vanished or because
// its inventory dropped below the requested quantity.
var ErrInventoryChanged = errors.New("inventory changed concurrently")

// Repository provides access to catalog storage within one unit of work.
// A nil result with a nil error means the record does not exist.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository bound to db, usually a transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID retrieves a product by its ID.
func (r *Repository) FindByID(id uint) (*Product, error) {
	return r.first(r.db, "id = ?", id)
}

// FindByIDForUpdate retrieves a product and locks its row until the
// surrounding transaction ends. Engines without row locks (SQLite) rely on
// DecrementInventory's guard instead.
func (r *Repository) FindByIDForUpdate(id uint) (*Product, error) {
	tx := r.db
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.first(tx, "id = ?", id)
}

// FindByName retrieves a product by its exact name.
func (r *Repository) FindByName(name string) (*Product, error) {
	return r.first(r.db, "name = ?", name)
}

func (r *Repository) first(tx *gorm.DB, query string, args ...any) (*Product, error) {
	var product Product
	if err := tx.Where(query, args...).Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return &product, nil
}

// List retrieves a page of products ordered by ID.
func (r *Repository) List(skip, limit int) ([]Product, error) {
	products := make([]Product, 0)
	if limit == 0 {
		return products, nil
	}
	if err := r.db.Order("id ASC").Offset(skip).Limit(limit).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// Search retrieves a page of products whose name or description contains
// query, ignoring case. PostgreSQL folds case with ILIKE; SQLite's LOWER only
// folds ASCII letters, so the query is folded the same way there.
func (r *Repository) Search(query string, skip, limit int) ([]Product, error) {
	products := make([]Product, 0)
	if limit == 0 {
		return products, nil
	}
	tx := r.db
	if r.db.Dialector.Name() == "postgres" {
		pattern := "%" + escapeLike(query) + "%"
		tx = tx.Where(`name ILIKE ? ESCAPE '\' OR description ILIKE ? ESCAPE '\'`, pattern, pattern)
	} else {
		pattern := "%" + escapeLike(asciiLower(query)) + "%"
		tx = tx.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`, pattern, pattern)
	}
	err := tx.
		Order("id ASC").
		Offset(skip).
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return products, nil
}

// Create saves a new product; the assigned ID is written back to product.
func (r *Repository) Create(product *Product) error {
	if err := r.db.Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Delete removes a product by ID and returns the removed record.
func (r *Repository) Delete(id uint) (*Product, error) {
	product, err := r.FindByID(id)
	if err != nil || product == nil {
		return nil, err
	}
	result := r.db.Delete(&Product{}, "id = ?", id)
	if err := result.Error; err != nil {
		return nil, fmt.Errorf("failed to delete product: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return product, nil
}

// DecrementInventory subtracts quantity from a product's inventory only if
// enough stock remains at the moment of the update.
func (r *Repository) DecrementInventory(id uint, quantity int) error {
	result := r.db.Model(&Product{}).
		Where("id = ? AND inventory >= ?", id, quantity).
		UpdateColumn("inventory", gorm.Expr("inventory - ?", quantity))
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrInventoryChanged
	}
	return nil
}

// CreateOrder saves a new order; the assigned ID is written back to order.
func (r *Repository) CreateOrder(order *Order) error {
	if err := r.db.Omit(clause.Associations).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
