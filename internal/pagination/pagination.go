// Package pagination turns a total row count into a page window and the
// page numbers a pager control displays.
package pagination

import (
	"errors"
	"fmt"
)

// DefaultDisplayed is the number of pages in the window around the current page.
const DefaultDisplayed = 5

var ErrInvalidDisplayed = errors.New("displayed page count must be odd and at least 3")

// Window is one page of a listing.
type Window struct {
	Page      int
	PageCount int
	Offset    int
	Length    int
	// Pages always starts with 1 and ends with PageCount. When PageCount
	// exceeds the displayed count it holds the displayed window plus whichever
	// of page 1 and PageCount fall outside it, so between displayed+1 and
	// displayed+2 entries.
	Pages []int
}

// GapBefore reports whether an ellipsis belongs before Pages[i].
func (w Window) GapBefore(i int) bool {
	return i > 0 && i < len(w.Pages) && w.Pages[i]-w.Pages[i-1] > 1
}

// Calculator builds windows of a fixed number of pages centred on the
// requested page.
type Calculator struct {
	displayed int
}

func New(displayed int) (Calculator, error) {
	if displayed < 3 || displayed%2 == 0 {
		return Calculator{}, fmt.Errorf("%w: got %d", ErrInvalidDisplayed, displayed)
	}
	return Calculator{displayed: displayed}, nil
}

// Paginate clamps requestedPage into range instead of failing. A pageSize
// below 1 is treated as 1.
func (c Calculator) Paginate(total, pageSize, requestedPage int) Window {
	if pageSize < 1 {
		pageSize = 1
	}
	if total < 0 {
		total = 0
	}
	count := (total + pageSize - 1) / pageSize
	if count < 1 {
		count = 1
	}
	page := min(max(requestedPage, 1), count)

	offset := (page - 1) * pageSize
	return Window{
		Page:      page,
		PageCount: count,
		Offset:    offset,
		Length:    max(min(pageSize, total-offset), 0),
		Pages:     c.pages(page, count),
	}
}

func (c Calculator) pages(page, count int) []int {
	displayed := c.displayed
	if displayed == 0 {
		displayed = DefaultDisplayed
	}
	if displayed >= count {
		all := make([]int, count)
		for i := range all {
			all[i] = i + 1
		}
		return all
	}

	first := page - displayed/2
	first = max(first, 1)
	first = min(first, count-displayed+1)
	last := first + displayed - 1

	pages := make([]int, 0, displayed+2)
	if first > 1 {
		pages = append(pages, 1)
	}
	for p := first; p <= last; p++ {
		pages = append(pages, p)
	}
	if last < count {
		pages = append(pages, count)
	}
	return pages
}
