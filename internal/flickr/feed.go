package flickr

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pders01/photorama/internal/debuglog"
	"github.com/pders01/photorama/internal/storage"
)

var (
	imgSrcRegex = regexp.MustCompile(`<img[^>]+src=["']([^"']+)["']`)
	photoIDPath = regexp.MustCompile(`^[0-9]+$`)
)

// BuildPublicFeedURL returns the public photos Atom feed URL, optionally
// filtered by tags.
func (c *Client) BuildPublicFeedURL(tags ...string) string {
	params := url.Values{}
	params.Set("format", "atom")

	var cleaned []string
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	if len(cleaned) > 0 {
		params.Set("tags", strings.Join(cleaned, ","))
	}

	return c.feedURL + "?" + params.Encode()
}

// ParsePublicFeed parses the public photos Atom feed. Entries whose photo id
// cannot be recovered are skipped.
func (c *Client) ParsePublicFeed(reader io.Reader) ([]*storage.ParsedPhoto, error) {
	feed, err := gofeed.NewParser().Parse(reader)
	if err != nil {
		return nil, &ParseError{Err: fmt.Errorf("parsing feed: %w", err)}
	}

	photos := make([]*storage.ParsedPhoto, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := feedPhotoID(item)
		if id == "" {
			debuglog.Debugf("feed entry %q has no photo id", item.Title)
			continue
		}

		photo := &storage.ParsedPhoto{
			ID:        id,
			Title:     item.Title,
			DateTaken: feedDateTaken(item),
			Tags:      item.Categories,
		}
		photo.RemoteURL = c.imageLink(id, feedImageCandidates(item)...)

		photos = append(photos, photo)
	}

	return photos, nil
}

// feedPhotoID extracts the numeric id from the entry id
// ("tag:flickr.com,2005:/photo/123") or from the photo page link.
func feedPhotoID(item *gofeed.Item) string {
	if i := strings.LastIndex(item.GUID, "/photo/"); i >= 0 {
		if id := item.GUID[i+len("/photo/"):]; photoIDPath.MatchString(id) {
			return id
		}
	}

	if item.Link != "" {
		if u, err := url.Parse(item.Link); err == nil {
			if id := path.Base(strings.TrimSuffix(u.Path, "/")); photoIDPath.MatchString(id) {
				return id
			}
		}
	}

	return ""
}

func feedDateTaken(item *gofeed.Item) time.Time {
	if exts, ok := item.Extensions["flickr"]; ok {
		for _, e := range exts["date_taken"] {
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Value)); err == nil {
				return t
			}
		}
	}
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	return time.Time{}
}

func feedImageCandidates(item *gofeed.Item) []string {
	var urls []string

	for _, enclosure := range item.Enclosures {
		if enclosure.URL != "" {
			urls = append(urls, enclosure.URL)
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		urls = append(urls, item.Image.URL)
	}

	for _, match := range imgSrcRegex.FindAllStringSubmatch(item.Content+" "+item.Description, -1) {
		if len(match) > 1 {
			urls = append(urls, match[1])
		}
	}

	return urls
}
