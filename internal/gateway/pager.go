package gateway

// PageComputer picks the 0-based page to show for a result set.
type PageComputer interface {
	CurrentPage(total, perPage int) int
}

// PageComputerFunc adapts a function to PageComputer.
type PageComputerFunc func(total, perPage int) int

func (f PageComputerFunc) CurrentPage(total, perPage int) int { return f(total, perPage) }

// RequestedPage is the 0-based page asked for by a caller, typically from a
// ?page= query parameter. It is clamped to the last page, and to 0 when
// there are no results.
type RequestedPage int

func (p RequestedPage) CurrentPage(total, perPage int) int {
	last := pageCount(total, perPage) - 1
	return max(min(int(p), last), 0)
}

// Pager describes the page links to render next to a result page.
type Pager struct {
	Current  int   `json:"current"` // 1-based
	Pages    int   `json:"pages"`
	PerPage  int   `json:"per_page"`
	Total    int   `json:"total"`
	Previous *int  `json:"previous,omitempty"`
	Next     *int  `json:"next,omitempty"`
	Window   []int `json:"window"`
}

// pagerQuantity is the number of page links shown around the current page.
const pagerQuantity = 9

func newPager(current, pages, perPage, total int) Pager {
	p := Pager{Current: current + 1, Pages: pages, PerPage: perPage, Total: total, Window: []int{}}
	if current > 0 {
		prev := current
		p.Previous = &prev
	}
	if current+1 < pages {
		next := current + 2
		p.Next = &next
	}
	first := max(current+1-pagerQuantity/2, 1)
	last := min(first+pagerQuantity-1, pages)
	first = max(last-pagerQuantity+1, 1)
	for i := first; i <= last; i++ {
		p.Window = append(p.Window, i)
	}
	return p
}

func pageCount(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
