package models

import "time"

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       string    `json:"category"`
	UnitPrice      float64   `json:"unit_price"`
	WholesalePrice float64   `json:"wholesale_price,omitempty"`
	Stock          int       `json:"stock"`
	Description    string    `json:"description,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
