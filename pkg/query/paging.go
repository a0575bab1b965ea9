package query

import (
	"errors"
	"fmt"
	"net/url"

	qs "github.com/google/go-querystring/query"
)

// Paging parameter keys injected at fetch time.
const (
	ParamPage    = "page"
	ParamPerPage = "per_page"
	ParamCursor  = "cursor"
)

const (
	// MaxPerPage is the largest page size the service accepts.
	MaxPerPage = 200

	// StartCursor starts a cursor walk.
	StartCursor = "*"
)

// ErrInvalidPerPage is returned for page sizes outside 1..MaxPerPage.
var ErrInvalidPerPage = errors.New("per_page must be a number between 1 and 200")

// Paging selects one page of a list request. Zero fields are omitted and the
// service defaults apply.
type Paging struct {
	Page    int    `url:"page,omitempty"`
	PerPage int    `url:"per_page,omitempty"`
	Cursor  string `url:"cursor,omitempty"`
}

// Validate checks the page size and page number.
func (p Paging) Validate() error {
	if p.PerPage != 0 && (p.PerPage < 1 || p.PerPage > MaxPerPage) {
		return fmt.Errorf("%w (got %d)", ErrInvalidPerPage, p.PerPage)
	}
	if p.Page < 0 {
		return fmt.Errorf("page must be positive (got %d)", p.Page)
	}
	return nil
}

// Apply returns a copy of params with the paging keys set.
func (p Paging) Apply(params url.Values) (url.Values, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out := make(url.Values, len(params)+3)
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}

	paging, err := qs.Values(p)
	if err != nil {
		return nil, fmt.Errorf("encode paging: %w", err)
	}
	for k, v := range paging {
		out[k] = v
	}
	return out, nil
}
