package books

import "time"

type CreateBookRequest struct {
	Title       string  `json:"title" binding:"required"`
	Author      *string `json:"author,omitempty"`
	ISBN        *string `json:"isbn,omitempty"`
	TotalCopies int     `json:"total_copies" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type BookResponse struct {
	BookID          int64     `json:"book_id"`
	BookULID        string    `json:"book_ulid"`
	Title           string    `json:"title"`
	Author          *string   `json:"author,omitempty"`
	ISBN            *string   `json:"isbn,omitempty"`
	Status          string    `json:"status"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	IsAvailable     bool      `json:"is_available"`
	CreatedAt       time.Time `json:"created_at"`
}

type BookListResponse struct {
	Items []BookResponse `json:"items"`
	Total int64          `json:"total"`
}

func toResponse(b *Book) BookResponse {
	resp := BookResponse{
		BookID:          b.BookID,
		BookULID:        b.BookULID,
		Title:           b.Title,
		Status:          b.Status,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		IsAvailable:     b.IsAvailable(),
		CreatedAt:       b.CreatedAt,
	}
	if b.Author.Valid {
		v := b.Author.String
		resp.Author = &v
	}
	if b.ISBN.Valid {
		v := b.ISBN.String
		resp.ISBN = &v
	}
	return resp
}
