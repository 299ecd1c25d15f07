package circulation

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" | "desc"
}

// Normalize clamps paging parameters the same way the list endpoints do.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}
