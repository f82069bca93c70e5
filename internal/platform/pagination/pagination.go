// Package pagination parses paging query parameters and encodes list cursors.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 50
	// MaxPageSize caps pageSize.
	MaxPageSize = 200
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPage      = errors.New("pagination: invalid page")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Params are cursor paging inputs.
type Params struct {
	PageSize  int
	PageToken string
}

// Cursor positions a createdAt-descending listing after the last item returned.
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// ParseParams reads pageSize and pageToken. The token is validated but kept opaque.
func ParseParams(values url.Values) (Params, error) {
	size, err := parseSize(values.Get("pageSize"))
	if err != nil {
		return Params{}, err
	}
	token := strings.TrimSpace(values.Get("pageToken"))
	if token != "" {
		if _, err := DecodeCursor(token); err != nil {
			return Params{}, err
		}
	}
	return Params{PageSize: size, PageToken: token}, nil
}

// Page is offset paging input for in-memory listings. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and pageSize.
func ParsePage(values url.Values) (Page, error) {
	size, err := parseSize(values.Get("pageSize"))
	if err != nil {
		return Page{}, err
	}
	number := 1
	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Page{}, ErrInvalidPage
		}
		number = n
	}
	return Page{Number: number, Size: size}, nil
}

// Window returns the slice bounds [start, end) of page over total items.
func (p Page) Window(total int) (start, end int) {
	size := p.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	number := max(p.Number, 1)
	total = max(total, 0)
	if number-1 > total/size {
		return total, total
	}
	start = min((number-1)*size, total)
	end = start + min(size, total-start)
	return start, end
}

func parseSize(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ErrInvalidPageSize
	}
	return min(n, MaxPageSize), nil
}

// EncodeCursor serialises c into a URL-safe token.
func EncodeCursor(c Cursor) string {
	if c.ID == "" {
		return ""
	}
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" || c.CreatedAt.IsZero() {
		return Cursor{}, ErrInvalidPageToken
	}
	return c, nil
}
