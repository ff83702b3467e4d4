package resource

// Page is one window of a remote collection. Pages are never cached as a
// unit; only their items are.
type Page struct {
	kind   Kind
	href   string
	Offset int64
	Limit  int64
	// Size is the total number of items in the collection.
	Size  int64
	Items []Resource
}

// Kind returns the collection kind.
func (p *Page) Kind() Kind { return p.kind }

// Href returns the collection href.
func (p *Page) Href() string { return p.href }

// NextOffset returns the offset of the following page.
func (p *Page) NextOffset() int64 {
	return p.Offset + int64(len(p.Items))
}

// HasMore reports whether items remain past this page.
func (p *Page) HasMore() bool {
	return len(p.Items) > 0 && p.NextOffset() < p.Size
}
