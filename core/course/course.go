package course

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers (10.5), not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type Course struct {
	ID          string          `json:"id" db:"course_id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	ImageURL    string          `json:"imageUrl" db:"image_url"`
	VideoURL    string          `json:"videoUrl" db:"video_url"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
	Version     int             `json:"-" db:"version"`
}

type CourseNew struct {
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description" validate:"required"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0,lte=10000"`
	ImageURL    string           `json:"imageUrl" validate:"omitempty,url"`
	VideoURL    string           `json:"videoUrl" validate:"omitempty,url"`
}

// CourseUp is a partial update: nil fields keep their stored value.
type CourseUp struct {
	Title       *string          `json:"title" validate:"omitempty,min=1"`
	Description *string          `json:"description" validate:"omitempty,min=1"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0,lte=10000"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,url"`
	VideoURL    *string          `json:"videoUrl" validate:"omitempty,url"`
}

// Apply copies the fields present in up onto c.
func (up CourseUp) Apply(c Course) Course {
	if up.Title != nil {
		c.Title = *up.Title
	}
	if up.Description != nil {
		c.Description = *up.Description
	}
	if up.Price != nil {
		c.Price = *up.Price
	}
	if up.ImageURL != nil {
		c.ImageURL = *up.ImageURL
	}
	if up.VideoURL != nil {
		c.VideoURL = *up.VideoURL
	}
	return c
}
