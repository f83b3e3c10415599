package flickr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pders01/photorama/internal/debuglog"
	"github.com/pders01/photorama/internal/storage"
)

// DateTakenLayout is the format Flickr uses for the datetaken extra.
const DateTakenLayout = "2006-01-02 15:04:05"

type ListingKind int

const (
	Interesting ListingKind = iota
	Recent
)

func (k ListingKind) String() string {
	switch k {
	case Interesting:
		return "interesting"
	case Recent:
		return "recent"
	default:
		return fmt.Sprintf("ListingKind(%d)", int(k))
	}
}

// Method is the Flickr REST method serving this listing.
func (k ListingKind) Method() string {
	switch k {
	case Recent:
		return "flickr.photos.getRecent"
	default:
		return "flickr.interestingness.getList"
	}
}

func ParseListingKind(s string) (ListingKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interesting", "":
		return Interesting, nil
	case "recent":
		return Recent, nil
	default:
		return 0, fmt.Errorf("unknown listing %q (want interesting or recent)", s)
	}
}

// BuildListingURL returns the REST URL for a listing. Query parameters are
// encoded in sorted order so the same inputs always give the same URL.
func (c *Client) BuildListingURL(kind ListingKind) string {
	params := url.Values{}
	params.Set("method", kind.Method())
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("nojsoncallback", "1")
	params.Set("extras", "url_z,date_taken,tags")
	if c.perPage > 0 {
		params.Set("per_page", strconv.Itoa(c.perPage))
	}

	return c.baseURL + "?" + params.Encode()
}

type listingResponse struct {
	Stat    string       `json:"stat"`
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Photos  *photosBlock `json:"photos"`
}

// Entries are decoded one at a time so a single malformed entry is skipped
// instead of failing the whole listing.
type photosBlock struct {
	Photo []json.RawMessage `json:"photo"`
}

type rawPhoto struct {
	ID        flexString `json:"id"`
	Title     string     `json:"title"`
	DateTaken string     `json:"datetaken"`
	Tags      string     `json:"tags"`
	URLZ      string     `json:"url_z"`
	URLH      string     `json:"url_h"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ParseListing decodes a listing body into photo records. Entries that are
// malformed or lack a usable id are skipped; optional fields that fail to
// parse are left empty.
func (c *Client) ParseListing(data []byte) ([]*storage.ParsedPhoto, error) {
	var resp listingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decoding listing: %w", err)}
	}

	if resp.Stat == "fail" {
		return nil, &ParseError{Code: resp.Code, Message: resp.Message, Err: ErrUnknownShape}
	}
	if resp.Photos == nil || resp.Photos.Photo == nil {
		return nil, &ParseError{Err: ErrUnknownShape}
	}

	photos := make([]*storage.ParsedPhoto, 0, len(resp.Photos.Photo))
	skipped := 0
	for i, entry := range resp.Photos.Photo {
		var raw rawPhoto
		if err := json.Unmarshal(entry, &raw); err != nil {
			debuglog.Debugf("listing entry %d: %v", i, err)
			skipped++
			continue
		}

		id := strings.TrimSpace(string(raw.ID))
		if id == "" || strings.ContainsRune(id, 0) {
			skipped++
			continue
		}

		photo := &storage.ParsedPhoto{
			ID:    id,
			Title: raw.Title,
			Tags:  strings.Fields(raw.Tags),
		}

		if raw.DateTaken != "" {
			if t, err := time.Parse(DateTakenLayout, raw.DateTaken); err == nil {
				photo.DateTaken = t
			} else {
				debuglog.Debugf("photo %s: unparseable datetaken %q", id, raw.DateTaken)
			}
		}

		photo.RemoteURL = c.imageLink(id, raw.URLZ, raw.URLH)
		photos = append(photos, photo)
	}

	if skipped > 0 {
		debuglog.Infof("skipped %d malformed or id-less listing entries", skipped)
	}

	return photos, nil
}

// imageLink returns the first candidate that passes URL validation.
func (c *Client) imageLink(id string, candidates ...string) string {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		clean, err := c.urls.Validate(candidate)
		if err != nil {
			debuglog.Warnf("photo %s: dropping image url: %v", id, err)
			continue
		}
		return clean
	}
	return ""
}
