package tree

// Page is one window over the flattened forest. Positions are 1-based.
type Page struct {
	Items       []*Node `json:"items"`
	Page        int     `json:"page"`
	PageSize    int     `json:"page_size,omitempty"`
	TotalPages  int     `json:"total_pages"`
	Total       int     `json:"total"`
	WindowStart int     `json:"window_start"`
	WindowEnd   int     `json:"window_end"`
}

// Paginate slices the flattened ordering into the requested window.
//
// pageSize <= 0 disables pagination: everything lands on a single implicit
// page. An out-of-range page number (including anything below 1) normalizes
// to page 1, mirroring the redirect-to-first-page behaviour of the admin UI
// this feeds; the effective page is reported in the result. A window may cut
// through the middle of a reply chain; that is accepted behaviour.
func Paginate(flat []*Node, pageSize, page int) Page {
	total := len(flat)

	if pageSize <= 0 {
		out := Page{Items: flat, Page: 1, TotalPages: 1, Total: total, WindowEnd: total}
		if total > 0 {
			out.WindowStart = 1
		}
		return out
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 || page > totalPages {
		page = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}

	out := Page{
		Items:      flat[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Total:      total,
		WindowEnd:  end,
	}
	if total > 0 {
		out.WindowStart = start + 1
	}
	return out
}

// PageOf returns the 1-based page a comment falls on in the flattened
// ordering, for "jump to my comment" links after a submit. Returns 0 when the
// comment is not in the flattened set (for example, still pending).
func PageOf(flat []*Node, commentID int64, pageSize int) int {
	for i, n := range flat {
		if n.Comment.ID == commentID {
			if pageSize <= 0 {
				return 1
			}
			return i/pageSize + 1
		}
	}
	return 0
}
