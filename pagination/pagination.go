package pagination

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Page is a normalized page request.
type Page struct {
	Number int
	Limit  int
}

// Normalize clamps raw page/limit values into a usable Page. Page numbers
// start at 1; limits fall back to the default and are capped at 100.
func Normalize(page, limit int) Page {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Page{Number: page, Limit: limit}
}

// Offset returns the row offset for SQL LIMIT/OFFSET queries.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// Meta is the pagination block attached to list responses.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// MetaFor computes response metadata for a page over total rows.
func MetaFor(p Page, total int) Meta {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{
		Page:  p.Number,
		Limit: p.Limit,
		Total: total,
		Pages: pages,
	}
}
