package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pders01/photorama/internal/config"
	"github.com/pders01/photorama/internal/fetch"
	"github.com/pders01/photorama/internal/flickr"
	"github.com/pders01/photorama/internal/imagecache"
	"github.com/pders01/photorama/internal/media"
	"github.com/pders01/photorama/internal/search"
	"github.com/pders01/photorama/internal/storage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	favStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1D3"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

const publicSource = "public"

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		tags   []string
		images bool
	)

	cmd := &cobra.Command{
		Use:       "fetch [interesting|recent|public]",
		Short:     "Download a listing and merge it into the library",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{flickr.Interesting.String(), flickr.Recent.String(), publicSource},
		RunE: func(_ *cobra.Command, args []string) error {
			source := flickr.Interesting.String()
			if len(args) == 1 {
				source = args[0]
			}

			return withApp(opts, func(a *app) error {
				var res fetch.PhotosResult
				if source == publicSource {
					res = await(func(done func(fetch.PhotosResult)) {
						a.coord.FetchPublicFeed(tags, done)
					})
				} else {
					kind, err := flickr.ParseListingKind(source)
					if err != nil {
						return err
					}
					res = await(func(done func(fetch.PhotosResult)) {
						a.coord.FetchListing(kind, done)
					})
				}
				if res.Err != nil {
					return res.Err
				}

				fmt.Fprintln(opts.out, headerStyle.Render(fmt.Sprintf("%s: %d photos", source, len(res.Photos))))
				renderPhotos(opts.out, res.Photos)

				if images {
					downloadImages(opts.out, a.coord, res.Photos)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Tags to filter the public feed by")
	cmd.Flags().BoolVar(&images, "images", false, "Also download every photo's image")
	return cmd
}

// downloadImages fetches all images concurrently and waits for every one.
func downloadImages(w io.Writer, coord *fetch.Coordinator, photos []*storage.Photo) {
	results := make(chan fetch.ImageResult, len(photos))
	requested := 0
	for _, p := range photos {
		if !p.HasRemoteURL() {
			continue
		}
		requested++
		coord.FetchImage(p, func(r fetch.ImageResult) { results <- r })
	}

	var failed, total int
	for range requested {
		r := <-results
		if r.Err != nil {
			failed++
			fmt.Fprintln(w, favStyle.Render("image: "+r.Err.Error()))
			continue
		}
		total += len(r.Image.Data)
	}

	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("images: %d downloaded, %d failed, %s",
		requested-failed, failed, formatBytes(total))))
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		favorites bool
		tag       string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored photos",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if favorites && tag != "" {
				return errors.New("--favorites and --tag cannot be combined")
			}

			return withApp(opts, func(a *app) error {
				res := await(func(done func(fetch.PhotosResult)) {
					switch {
					case favorites:
						a.coord.FetchFavoritePhotos(done)
					case tag != "":
						a.coord.FetchPhotosForTag(tag, done)
					default:
						a.coord.FetchAllPhotos(done)
					}
				})
				if res.Err != nil {
					return res.Err
				}
				if len(res.Photos) == 0 {
					fmt.Fprintln(opts.out, dimStyle.Render("no photos"))
					return nil
				}
				renderPhotos(opts.out, res.Photos)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&favorites, "favorites", false, "Only list favorite photos")
	cmd.Flags().StringVar(&tag, "tag", "", "Only list photos carrying this tag")
	return cmd
}

func newTagsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List every tag and how many photos carry it",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				res := await(a.coord.FetchAllTags)
				if res.Err != nil {
					return res.Err
				}
				if len(res.Tags) == 0 {
					fmt.Fprintln(opts.out, dimStyle.Render("no tags"))
					return nil
				}

				t := newTable("TAG", "PHOTOS")
				for _, tag := range res.Tags {
					t.Row(tag.Name, strconv.Itoa(len(tag.PhotoIDs)))
				}
				fmt.Fprintln(opts.out, t.Render())
				return nil
			})
		},
	}
}

func newImageCmd(opts *rootOptions) *cobra.Command {
	var blurHash bool

	cmd := &cobra.Command{
		Use:   "image <photo-id>",
		Short: "Download or load a photo's image from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				photo, err := lookupPhoto(a, args[0])
				if err != nil {
					return err
				}
				img, path, err := fetchImage(a, photo)
				if err != nil {
					return err
				}

				fmt.Fprintf(opts.out, "%s %s %dx%d %s\n",
					headerStyle.Render(photo.ID), img.Format, img.Width, img.Height, formatBytes(len(img.Data)))
				fmt.Fprintln(opts.out, dimStyle.Render(path))

				if blurHash {
					hash, err := img.BlurHash()
					if err != nil {
						return err
					}
					fmt.Fprintf(opts.out, "blurhash %s\n", hash)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&blurHash, "blurhash", false, "Print a BlurHash placeholder for the image")
	return cmd
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <photo-id>",
		Short: "Open a photo in the image viewer, downloading it first if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				launcher, err := media.NewLauncher(a.cfg)
				if err != nil {
					return err
				}

				photo, err := lookupPhoto(a, args[0])
				if err != nil {
					return err
				}
				_, path, err := fetchImage(a, photo)
				if err != nil {
					return err
				}

				if err := launcher.Open(path); err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "opened %s with %s\n", photo.ID, launcher.Viewer())
				return nil
			})
		},
	}
}

// fetchImage loads photo's image through the coordinator and returns it
// with the cache file that holds it.
func fetchImage(a *app, photo *storage.Photo) (*imagecache.Image, string, error) {
	if !photo.HasRemoteURL() {
		if _, ok := a.coord.CachedImagePath(photo); !ok {
			return nil, "", fmt.Errorf("photo %s has no image url", photo.ID)
		}
	}

	res := await(func(done func(fetch.ImageResult)) {
		a.coord.FetchImage(photo, done)
	})
	if res.Err != nil {
		return nil, "", res.Err
	}

	path, ok := a.coord.CachedImagePath(photo)
	if !ok {
		return nil, "", fmt.Errorf("image for photo %s is not in the cache", photo.ID)
	}
	return res.Image, path, nil
}

func newFavoriteCmd(opts *rootOptions) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "favorite <photo-id>",
		Short: "Mark a photo as favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				id := args[0]
				err := await(func(done func(error)) {
					a.coord.SetFavorite(id, !off, done)
				})
				if err != nil {
					return err
				}
				if off {
					fmt.Fprintf(opts.out, "%s is no longer a favorite\n", id)
				} else {
					fmt.Fprintln(opts.out, favStyle.Render("♥ ")+id)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "Clear the favorite flag instead")
	return cmd
}

type viewResult struct {
	views uint64
	err   error
}

func newViewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <photo-id>",
		Short: "Show a photo and record the view",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				res := await(func(done func(viewResult)) {
					a.coord.IncrementViewCount(args[0], func(views uint64, err error) {
						done(viewResult{views: views, err: err})
					})
				})
				if res.err != nil {
					return res.err
				}

				photo, err := lookupPhoto(a, args[0])
				if err != nil {
					return err
				}
				renderDetail(opts.out, photo)
				return nil
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search photo titles and tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				results, err := a.search.Search(strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				if len(results) == 0 {
					fmt.Fprintln(opts.out, dimStyle.Render("no matches"))
					return nil
				}
				renderResults(opts.out, results)
				if ds, ok := a.search.(search.DebugStatser); ok {
					if n, err := ds.DocCount(); err == nil {
						fmt.Fprintln(opts.out, dimStyle.Render(fmt.Sprintf("%d documents indexed", n)))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var (
		path  string
		force bool
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("failed to generate config: %w", err)
			}
			fmt.Fprintf(opts.out, "Generated default configuration at: %s\n", path)
			return nil
		},
	}
	generate.Flags().StringVar(&path, "path", "", "Where to write the file")
	generate.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(generate)
	return cmd
}

func lookupPhoto(a *app, id string) (*storage.Photo, error) {
	res := await(func(done func(fetch.PhotosResult)) {
		a.coord.FetchPhotos([]string{id}, done)
	})
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Photos[0], nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
}

func renderPhotos(w io.Writer, photos []*storage.Photo) {
	t := newTable("ID", "TITLE", "TAKEN", "VIEWS", "♥")
	for _, p := range photos {
		fav := ""
		if p.Favorite {
			fav = "♥"
		}
		t.Row(p.ID, truncate(p.Title, 40), formatDate(p), strconv.FormatUint(p.Views, 10), fav)
	}
	fmt.Fprintln(w, t.Render())
}

func renderResults(w io.Writer, results []*search.Result) {
	t := newTable("ID", "TITLE", "SCORE", "MATCHED")
	for _, r := range results {
		fields := make([]string, 0, len(r.Matches))
		for _, m := range r.Matches {
			fields = append(fields, m.Field)
		}
		t.Row(r.Photo.ID, truncate(r.Photo.Title, 40), fmt.Sprintf("%.2f", r.Score), strings.Join(fields, ","))
	}
	fmt.Fprintln(w, t.Render())
}

func renderDetail(w io.Writer, p *storage.Photo) {
	title := p.Title
	if title == "" {
		title = "(untitled)"
	}
	if p.Favorite {
		title = favStyle.Render("♥ ") + title
	}

	lines := []string{
		headerStyle.Render(title),
		dimStyle.Render("id     ") + p.ID,
		dimStyle.Render("taken  ") + formatDate(p),
		dimStyle.Render("views  ") + strconv.FormatUint(p.Views, 10),
	}
	if len(p.Tags) > 0 {
		lines = append(lines, dimStyle.Render("tags   ")+strings.Join(p.Tags, ", "))
	}
	if p.HasRemoteURL() {
		lines = append(lines, dimStyle.Render("url    ")+p.RemoteURL)
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(0, 2)
	fmt.Fprintln(w, box.Render(strings.Join(lines, "\n")))
}

func printStats(w io.Writer, coord *fetch.Coordinator) {
	families, err := coord.Registry().Gather()
	if err != nil {
		fmt.Fprintln(w, favStyle.Render("stats: "+err.Error()))
		return
	}

	t := newTable("METRIC", "LABELS", "VALUE")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			value := m.GetCounter().GetValue()
			if m.GetHistogram() != nil {
				value = float64(m.GetHistogram().GetSampleCount())
			}
			if value == 0 {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			t.Row(mf.GetName(), strings.Join(labels, " "), strconv.FormatFloat(value, 'f', -1, 64))
		}
	}
	fmt.Fprintln(w, t.Render())
}

func formatDate(p *storage.Photo) string {
	if p.DateTaken.IsZero() {
		return "-"
	}
	return p.DateTaken.Format("2006-01-02 15:04")
}

func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
