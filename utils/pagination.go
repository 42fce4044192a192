package utils

import "gorm.io/gorm"

const (
	pageSizeDefault = 20
	pageSizeMax     = 100
)

// Page is the window of a list query.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// NewPage reads optional offset and limit values. A missing or negative offset
// starts at the beginning; a missing or non-positive limit uses the default and
// any limit is capped at pageSizeMax.
func NewPage(offset, limit *int) Page {
	page := Page{Limit: pageSizeDefault}
	if offset != nil && *offset > 0 {
		page.Offset = *offset
	}
	if limit != nil && *limit > 0 {
		page.Limit = min(*limit, pageSizeMax)
	}
	return page
}

// Scope applies the window to a gorm query.
func (p Page) Scope(db *gorm.DB) *gorm.DB {
	return db.Offset(p.Offset).Limit(p.Limit)
}
