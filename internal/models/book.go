// Package models defines the data types shared across the Mikke service.
package models

import "time"

// Book is a catalog entry for a single book cover.
type Book struct {
	ID        string    `json:"book_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      string    `json:"isbn,omitempty"`
	Publisher string    `json:"publisher,omitempty"`
	ImagePath string    `json:"image_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
