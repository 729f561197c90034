package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jogardn/aquaflow/pkg/models"
)

func (s *PostgresStore) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.Name == "" {
		return validationErrorf("product name is required")
	}
	if product.Stock < 0 {
		return validationErrorf("product stock must not be negative")
	}
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit_price, wholesale_price, stock, description, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		product.ID, product.Name, nullString(product.Category), product.UnitPrice,
		product.WholesalePrice, product.Stock, nullString(product.Description),
		nullString(product.ImageURL), product.CreatedAt)
	return err
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, selectProduct+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]*models.Product, error) {
	rows, err := s.db.QueryContext(ctx, selectProduct+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

const selectProduct = `
	SELECT id, name, category, unit_price, wholesale_price, stock, description, image_url, created_at
	FROM products`

func scanProduct(row rowScanner) (*models.Product, error) {
	product := &models.Product{}
	var category, description, imageURL sql.NullString
	var wholesalePrice sql.NullFloat64

	err := row.Scan(&product.ID, &product.Name, &category, &product.UnitPrice,
		&wholesalePrice, &product.Stock, &description, &imageURL, &product.CreatedAt)
	if err != nil {
		return nil, err
	}

	product.WholesalePrice = wholesalePrice.Float64
	product.Category = category.String
	product.Description = description.String
	product.ImageURL = imageURL.String
	return product, nil
}
