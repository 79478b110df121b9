package shared

// Listing defaults shared by paginated endpoints.
const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// NormalizePage clamps a requested page and page size. Pages start at 1.
func NormalizePage(page, perPage int) (int, int) {
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	return page, perPage
}

// PageOffset returns the row offset of page after normalisation.
func PageOffset(page, perPage int) int {
	page, perPage = NormalizePage(page, perPage)
	return (page - 1) * perPage
}

// NewPagination computes pagination metadata for total rows.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = NormalizePage(page, perPage)
	totalPages := (total + perPage - 1) / perPage
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
