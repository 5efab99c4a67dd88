package query

import "strconv"

// MaxPage bounds the page parameter.
const MaxPage = 100000

// CalcStartingRow parses the page parameter and returns the zero-based first
// row together with the normalized page. Invalid input means page 1.
func CalcStartingRow(page string, rowsPerPage int) (int, int) {
	p, err := strconv.Atoi(page)
	if err != nil || p < 1 {
		p = 1
	}
	if p > MaxPage {
		p = MaxPage
	}
	return rowsPerPage * (p - 1), p
}

// TotalPages is the number of pages for numFound hits, never less than one.
func TotalPages(numFound, pageSize int) int {
	if pageSize <= 0 {
		pageSize = 10
	}
	pages := (numFound + pageSize - 1) / pageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}

// ClampPage forces current into [1, pages].
func ClampPage(current, pages int) int {
	if current > pages {
		current = pages
	}
	if current < 1 {
		current = 1
	}
	return current
}

// CalcPaginationRange returns the condensed page sequence: the first and last
// page, the pages within radius of the current one, and 0 for each elided run.
// A gap of exactly one page is filled in rather than marked.
func CalcPaginationRange(numFound, pageSize, current, radius int) []int {
	pages := TotalPages(numFound, pageSize)
	current = ClampPage(current, pages)
	left := current - radius
	right := current + radius + 1

	var kept []int
	for i := 1; i <= pages; i++ {
		if i == 1 || i == pages || (i >= left && i < right) {
			kept = append(kept, i)
		}
	}

	out := make([]int, 0, len(kept)+2)
	last := 0
	for _, i := range kept {
		if last > 0 {
			switch {
			case i-last == 2:
				out = append(out, last+1)
			case i-last != 1:
				out = append(out, 0)
			}
		}
		out = append(out, i)
		last = i
	}
	return out
}
