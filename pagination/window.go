// Package pagination computes page windows over a list and the condensed page
// range a pager renders.
package pagination

// Ellipsis marks a gap in a page range.
const Ellipsis = -1

// DefaultPageSize is used when no positive page size is given.
const DefaultPageSize = 10

// condensedAbove is the page count from which ranges are condensed.
const condensedAbove = 5

// neighbours is how many pages are shown on each side of the current page.
const neighbours = 2

// PageSizeConfig configures page size normalization.
type PageSizeConfig struct {
	Default int
	Max     int
}

// ClampPageSize applies defaults and limits for page sizes.
func ClampPageSize(value int, cfg PageSizeConfig) int {
	pageSize := value
	if pageSize <= 0 {
		pageSize = cfg.Default
	}
	if cfg.Max > 0 && pageSize > cfg.Max {
		pageSize = cfg.Max
	}
	if pageSize <= 0 {
		pageSize = 1
	}
	return pageSize
}

// Window is a page of a list. Every constructor and setter re-clamps the
// current page into [1, TotalPages()].
type Window struct {
	totalItems  int
	pageSize    int
	currentPage int
}

// New builds a window. A non positive page size selects DefaultPageSize and
// a negative total counts as zero.
func New(totalItems, pageSize, currentPage int) Window {
	w := Window{
		totalItems:  max(totalItems, 0),
		pageSize:    ClampPageSize(pageSize, PageSizeConfig{Default: DefaultPageSize}),
		currentPage: currentPage,
	}
	return w.clamp()
}

func (w Window) clamp() Window {
	w.currentPage = min(max(w.currentPage, 1), w.TotalPages())
	return w
}

// TotalItems returns the item count the window was computed for.
func (w Window) TotalItems() int { return w.totalItems }

// PageSize returns the page size.
func (w Window) PageSize() int { return w.pageSize }

// CurrentPage returns the clamped current page, starting at 1.
func (w Window) CurrentPage() int { return w.currentPage }

// TotalPages is max(1, ceil(totalItems/pageSize)).
func (w Window) TotalPages() int {
	if w.pageSize <= 0 {
		return 1
	}
	return max(1, (w.totalItems+w.pageSize-1)/w.pageSize)
}

// WithTotal recomputes the window for a new item count.
func (w Window) WithTotal(totalItems int) Window {
	return New(totalItems, w.pageSize, w.currentPage)
}

// WithPage moves to page.
func (w Window) WithPage(page int) Window {
	return New(w.totalItems, w.pageSize, page)
}

// WithPageSize changes the page size and keeps the first visible item on
// screen.
func (w Window) WithPageSize(pageSize int) Window {
	first := w.Offset()
	next := New(w.totalItems, pageSize, 1)
	return next.WithPage(first/next.pageSize + 1)
}

// Next moves one page forward, staying on the last page.
func (w Window) Next() Window { return w.WithPage(w.currentPage + 1) }

// Prev moves one page back, staying on the first page.
func (w Window) Prev() Window { return w.WithPage(w.currentPage - 1) }

// HasNext reports whether a later page exists.
func (w Window) HasNext() bool { return w.currentPage < w.TotalPages() }

// HasPrev reports whether an earlier page exists.
func (w Window) HasPrev() bool { return w.currentPage > 1 }

// Offset is the index of the first item on the current page.
func (w Window) Offset() int { return (w.currentPage - 1) * w.pageSize }

// Limit is the number of items requested per page.
func (w Window) Limit() int { return w.pageSize }

// Bounds returns the [start, end) slice bounds of the current page within
// the items the window was computed for.
func (w Window) Bounds() (start, end int) {
	start = min(w.Offset(), w.totalItems)
	end = min(start+w.pageSize, w.totalItems)
	return start, end
}

// Range returns the condensed page range of the window.
func (w Window) Range() []int {
	return PageRange(w.currentPage, w.TotalPages())
}

// PageRange lists the pages a pager shows. Up to five pages are listed in
// full. Beyond that the range holds the first page, up to two pages on each
// side of current, the last page, and Ellipsis wherever pages are skipped.
func PageRange(current, totalPages int) []int {
	totalPages = max(totalPages, 1)
	current = min(max(current, 1), totalPages)

	if totalPages <= condensedAbove {
		out := make([]int, totalPages)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}

	start := max(2, current-neighbours)
	end := min(totalPages-1, current+neighbours)

	out := make([]int, 0, end-start+5)
	out = append(out, 1)
	if start > 2 {
		out = append(out, Ellipsis)
	}
	for p := start; p <= end; p++ {
		out = append(out, p)
	}
	if end < totalPages-1 {
		out = append(out, Ellipsis)
	}
	return append(out, totalPages)
}
