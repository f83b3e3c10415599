package flickr

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingFixture = `{
  "photos": {
    "page": 1, "pages": 5, "perpage": 100, "total": 500,
    "photo": [
      {
        "id": "36000001", "owner": "1@N00", "secret": "abc", "server": "4", "farm": 5,
        "title": "Harbour at dusk",
        "datetaken": "2017-08-01 18:30:00", "datetakengranularity": 0,
        "tags": "harbour dusk boats",
        "url_z": "https://live.staticflickr.com/4/36000001_abc_z.jpg"
      },
      {
        "id": 36000002,
        "title": "",
        "datetaken": "not a date",
        "url_h": "https://live.staticflickr.com/4/36000002_abc_h.jpg"
      },
      {
        "title": "no id, skipped"
      },
      {
        "id": "36000003",
        "title": "bad link",
        "url_z": "javascript:alert(1)"
      }
    ]
  },
  "stat": "ok"
}`

func TestListingKind(t *testing.T) {
	assert.Equal(t, "flickr.interestingness.getList", Interesting.Method())
	assert.Equal(t, "flickr.photos.getRecent", Recent.Method())
	assert.Equal(t, "recent", Recent.String())

	kind, err := ParseListingKind("Recent")
	require.NoError(t, err)
	assert.Equal(t, Recent, kind)

	_, err = ParseListingKind("popular")
	assert.Error(t, err)
}

func TestBuildListingURL(t *testing.T) {
	client := newTestClient(t, "https://api.flickr.com/services/rest")

	got := client.BuildListingURL(Interesting)
	want := "https://api.flickr.com/services/rest?" +
		"api_key=test-key&extras=url_z%2Cdate_taken%2Ctags&format=json" +
		"&method=flickr.interestingness.getList&nojsoncallback=1&per_page=10"
	assert.Equal(t, want, got)

	assert.Equal(t, got, client.BuildListingURL(Interesting), "same input gives the same URL")
	assert.Contains(t, client.BuildListingURL(Recent), "method=flickr.photos.getRecent")
}

func TestParseListing(t *testing.T) {
	client := newTestClient(t, "https://api.flickr.com/services/rest")

	photos, err := client.ParseListing([]byte(listingFixture))
	require.NoError(t, err)
	require.Len(t, photos, 3)

	first := photos[0]
	assert.Equal(t, "36000001", first.ID)
	assert.Equal(t, "Harbour at dusk", first.Title)
	assert.Equal(t, time.Date(2017, 8, 1, 18, 30, 0, 0, time.UTC), first.DateTaken)
	assert.Equal(t, []string{"harbour", "dusk", "boats"}, first.Tags)
	assert.Equal(t, "https://live.staticflickr.com/4/36000001_abc_z.jpg", first.RemoteURL)

	second := photos[1]
	assert.Equal(t, "36000002", second.ID, "numeric ids are accepted")
	assert.True(t, second.DateTaken.IsZero(), "unparseable dates stay zero")
	assert.Equal(t, "https://live.staticflickr.com/4/36000002_abc_h.jpg", second.RemoteURL)
	assert.Empty(t, second.Tags)

	third := photos[2]
	assert.Equal(t, "36000003", third.ID)
	assert.Empty(t, third.RemoteURL, "invalid image URLs are dropped")
}

func TestParseListing_DuplicateIDs(t *testing.T) {
	client := newTestClient(t, "https://api.flickr.com/services/rest")

	body := `{"photos":{"photo":[{"id":"1","title":"A"},{"id":"1","title":"B"}]},"stat":"ok"}`
	photos, err := client.ParseListing([]byte(body))
	require.NoError(t, err)

	// De-duplication happens at the store boundary, not here.
	require.Len(t, photos, 2)
	assert.Equal(t, "A", photos[0].Title)
	assert.Equal(t, "B", photos[1].Title)
}

func TestParseListing_Errors(t *testing.T) {
	client := newTestClient(t, "https://api.flickr.com/services/rest")

	tests := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{name: "invalid json", body: `{"photos":`},
		{name: "not an object", body: `[1,2,3]`},
		{name: "missing photos", body: `{"stat":"ok"}`},
		{name: "missing photo array", body: `{"photos":{"page":1}}`},
		{name: "empty body", body: ``},
		{
			name:    "api failure",
			body:    `{"stat":"fail","code":100,"message":"Invalid API Key (Key has invalid format)"}`,
			code:    100,
			message: "Invalid API Key (Key has invalid format)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ParseListing([]byte(tt.body))

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "got %v", err)
			assert.Equal(t, tt.code, parseErr.Code)
			assert.Equal(t, tt.message, parseErr.Message)
			if tt.message != "" {
				assert.True(t, strings.Contains(err.Error(), "100"))
			}
		})
	}
}

func TestParseListing_SkipsMalformedEntries(t *testing.T) {
	client := newTestClient(t, "https://api.flickr.com/services/rest")

	tests := []struct {
		name  string
		entry string
	}{
		{name: "numeric title", entry: `{"id":"2","title":123}`},
		{name: "object id", entry: `{"id":{"_content":"x"},"title":"object"}`},
		{name: "bare string", entry: `"garbage"`},
		{name: "array tags", entry: `{"id":"3","tags":["a","b"]}`},
		{name: "nul in id", entry: `{"id":"4\u0000x","title":"nul"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"photos":{"photo":[{"id":"1","title":"ok"},` + tt.entry + `]},"stat":"ok"}`

			photos, err := client.ParseListing([]byte(body))
			require.NoError(t, err)
			require.Len(t, photos, 1)
			assert.Equal(t, "1", photos[0].ID)
			assert.Equal(t, "ok", photos[0].Title)
		})
	}
}

func TestParseListing_EmptyList(t *testing.T) {
	client := newTestClient(t, "https://api.flickr.com/services/rest")

	photos, err := client.ParseListing([]byte(`{"photos":{"photo":[]},"stat":"ok"}`))
	require.NoError(t, err)
	assert.Empty(t, photos)
}
