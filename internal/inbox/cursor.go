package inbox

// Cursor tracks offset pagination over the server's notification list.
type Cursor struct {
	// HasMore reports whether another page is expected.
	HasMore bool `json:"hasMore"`

	// Loading is true while a load-more fetch is outstanding.
	Loading bool `json:"loading"`

	// TotalCount is the server-reported total, or the local count when the
	// server does not report one.
	TotalCount int `json:"totalCount"`

	// Offset is where the next page starts.
	Offset int `json:"offset"`
}

// Load is a reserved load-more fetch. A full replace invalidates every
// Load issued before it.
type Load struct {
	// Offset is where the page to fetch starts.
	Offset int

	gen uint64
}

// advance moves the cursor past a page of n items.
func (c *Cursor) advance(n, pageSize, total int) {
	c.Offset += n
	c.HasMore = pageSize > 0 && n == pageSize
	if total > 0 {
		c.TotalCount = total
		if c.Offset >= total {
			c.HasMore = false
		}
	}
}
