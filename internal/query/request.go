package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// filterParamPrefix marks query parameters that carry filter terms,
// e.g. filter_lot=SaaS.
const filterParamPrefix = "filter_"

// Request is the parsed form of a search or aggregation request. It is
// built from the multi-valued query-parameter map handed over by the
// routing layer; the core never parses raw HTTP itself.
type Request struct {
	Keywords     string
	Filters      map[string][]string
	Aggregations []string
	Page         int // 1-based; 0 when absent
	IDOnly       bool

	// Params preserves the original parameters for echoing into response
	// metadata and pagination links.
	Params url.Values
}

// ParseRequest interprets the query parameters. Unrecognized parameters are
// carried but ignored; only a malformed page is an error.
func ParseRequest(params url.Values, aggregations []string) (*Request, error) {
	req := &Request{
		Keywords:     strings.TrimSpace(params.Get("q")),
		Filters:      make(map[string][]string),
		Aggregations: aggregations,
		Params:       cloneValues(params),
	}

	if _, ok := params["idOnly"]; ok {
		req.IDOnly = true
	}

	if v := params.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return nil, errInvalidPage(v)
		}
		req.Page = page
	}

	for key, values := range params {
		field, ok := strings.CutPrefix(key, filterParamPrefix)
		if !ok || field == "" {
			continue
		}
		req.Filters[field] = values
	}

	return req, nil
}

// PageLabel names the requested page in user-facing messages.
func (r *Request) PageLabel() string {
	if r.Page == 0 {
		return "This page"
	}
	return fmt.Sprintf("Page %d", r.Page)
}

func cloneValues(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	return out
}
