package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const schemaVersion = "1"

var (
	photosBucket    = []byte("photos")
	tagsBucket      = []byte("tags")
	photoTagsBucket = []byte("photo_tags") // photoID \x00 tag -> empty
	tagPhotosBucket = []byte("tag_photos") // tag \x00 photoID -> empty
	metaBucket      = []byte("metadata")

	schemaKey = []byte("schema_version")
)

const keySep = 0x00

// edit is a pending change to a photo in the working set. Only the fields
// the presentation layer may touch are tracked, so a save never overwrites
// data merged in by a concurrent upsert.
type edit struct {
	favorite *bool
	views    *uint64
}

type Store struct {
	db *bolt.DB

	mu    sync.Mutex
	edits map[string]*edit
}

func NewStore(dbPath string) (*Store, error) {
	return NewStoreWithTimeout(dbPath, 1*time.Second)
}

// NewStoreWithTimeout opens the database, waiting at most timeout for the
// file lock held by another process.
func NewStoreWithTimeout(dbPath string, timeout time.Duration) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{photosBucket, tagsBucket, photoTagsBucket, tagPhotosBucket, metaBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		meta := tx.Bucket(metaBucket)
		if meta.Get(schemaKey) == nil {
			return meta.Put(schemaKey, []byte(schemaVersion))
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, edits: make(map[string]*edit)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertPhotos merges parsed listing entries into the store in a single
// transaction. New ids are inserted; existing photos keep their fields and
// only gain tags and previously missing values. Either every record commits
// or none does. The affected ids are returned in first-seen order.
func (s *Store) UpsertPhotos(records []*ParsedPhoto) ([]string, error) {
	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	now := time.Now()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(photosBucket)
		for _, rec := range records {
			if rec == nil {
				continue
			}
			if err := validatePhotoID(rec.ID); err != nil {
				return err
			}

			photo, err := getPhoto(b, rec.ID)
			switch {
			case errors.Is(err, ErrPhotoNotFound):
				photo = &Photo{
					ID:        rec.ID,
					Title:     rec.Title,
					RemoteURL: rec.RemoteURL,
					DateTaken: rec.DateTaken,
				}
			case err != nil:
				return err
			default:
				fillMissing(photo, rec)
			}

			if err := putPhoto(b, photo); err != nil {
				return err
			}
			if err := attachTags(tx, rec.ID, rec.Tags, now); err != nil {
				return err
			}

			if !seen[rec.ID] {
				seen[rec.ID] = true
				ids = append(ids, rec.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("upsert photos", err)
	}
	return ids, nil
}

func fillMissing(photo *Photo, rec *ParsedPhoto) {
	if photo.Title == "" {
		photo.Title = rec.Title
	}
	if photo.RemoteURL == "" {
		photo.RemoteURL = rec.RemoteURL
	}
	if photo.DateTaken.IsZero() {
		photo.DateTaken = rec.DateTaken
	}
}

// AddTags attaches tags to an existing photo.
func (s *Store) AddTags(photoID string, names ...string) error {
	if err := validatePhotoID(photoID); err != nil {
		return wrapError("add tags", err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := getPhoto(tx.Bucket(photosBucket), photoID); err != nil {
			return err
		}
		return attachTags(tx, photoID, names, time.Now())
	})
	return wrapError("add tags", err)
}

func (s *Store) GetPhoto(id string) (*Photo, error) {
	var photo *Photo
	err := s.db.View(func(tx *bolt.Tx) error {
		p, err := getPhoto(tx.Bucket(photosBucket), id)
		if err != nil {
			return err
		}
		p.Tags = scanSecondary(tx.Bucket(photoTagsBucket), id)
		photo = p
		return nil
	})
	if err != nil {
		return nil, wrapError("get photo", err)
	}
	s.overlay(photo)
	return photo, nil
}

// GetPhotos returns the canonical photos for ids, in the order given.
func (s *Store) GetPhotos(ids []string) ([]*Photo, error) {
	photos := make([]*Photo, 0, len(ids))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(photosBucket)
		idx := tx.Bucket(photoTagsBucket)
		for _, id := range ids {
			p, err := getPhoto(b, id)
			if err != nil {
				return err
			}
			p.Tags = scanSecondary(idx, id)
			photos = append(photos, p)
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("get photos", err)
	}
	s.overlay(photos...)
	return photos, nil
}

// FetchAll returns every photo ordered by date taken, oldest first.
func (s *Store) FetchAll() ([]*Photo, error) {
	photos, err := s.loadPhotos()
	if err != nil {
		return nil, wrapError("fetch all", err)
	}
	sortByDateTaken(photos)
	return photos, nil
}

// FetchFavorites returns the favorite photos with the same ordering as FetchAll.
func (s *Store) FetchFavorites() ([]*Photo, error) {
	photos, err := s.loadPhotos()
	if err != nil {
		return nil, wrapError("fetch favorites", err)
	}
	favorites := photos[:0]
	for _, p := range photos {
		if p.Favorite {
			favorites = append(favorites, p)
		}
	}
	sortByDateTaken(favorites)
	return favorites, nil
}

func (s *Store) PhotosForTag(name string) ([]*Photo, error) {
	name = normalizeTag(name)
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		ids = scanSecondary(tx.Bucket(tagPhotosBucket), name)
		return nil
	})
	if err != nil {
		return nil, wrapError("photos for tag", err)
	}
	photos, err := s.GetPhotos(ids)
	if err != nil {
		return nil, err
	}
	sortByDateTaken(photos)
	return photos, nil
}

// FetchAllTags returns every tag ordered by name.
func (s *Store) FetchAllTags() ([]*Tag, error) {
	var tags []*Tag
	err := s.db.View(func(tx *bolt.Tx) error {
		members := loadIndex(tx.Bucket(tagPhotosBucket))
		return tx.Bucket(tagsBucket).ForEach(func(_ []byte, v []byte) error {
			var tag Tag
			if err := json.Unmarshal(v, &tag); err != nil {
				return err
			}
			tag.PhotoIDs = members[tag.Name]
			tags = append(tags, &tag)
			return nil
		})
	})
	if err != nil {
		return nil, wrapError("fetch all tags", err)
	}
	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Name < tags[j].Name
	})
	return tags, nil
}

// SetFavorite changes the favorite flag in the working set. The change is
// durable only after SaveIfDirty.
func (s *Store) SetFavorite(id string, favorite bool) error {
	if _, err := s.persisted(id); err != nil {
		return wrapError("set favorite", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.editFor(id).favorite = &favorite
	return nil
}

// IncrementViewCount bumps the view counter in the working set and returns
// the new value.
func (s *Store) IncrementViewCount(id string) (uint64, error) {
	// Held across the read so a concurrent SaveIfDirty cannot drop a bump.
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, err := s.persisted(id)
	if err != nil {
		return 0, wrapError("increment view count", err)
	}

	e := s.editFor(id)
	views := photo.Views
	if e.views != nil {
		views = *e.views
	}
	views++
	e.views = &views
	return views, nil
}

// HasChanges reports whether the working set holds unsaved edits.
func (s *Store) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits) > 0
}

// SaveIfDirty persists pending working set edits in one transaction. It is a
// no-op when nothing changed.
func (s *Store) SaveIfDirty() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.edits) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(photosBucket)
		for id, e := range s.edits {
			photo, err := getPhoto(b, id)
			if err != nil {
				return err
			}
			e.apply(photo)
			if err := putPhoto(b, photo); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapError("save", err)
	}

	s.edits = make(map[string]*edit)
	return nil
}

func (s *Store) persisted(id string) (*Photo, error) {
	var photo *Photo
	err := s.db.View(func(tx *bolt.Tx) error {
		p, err := getPhoto(tx.Bucket(photosBucket), id)
		photo = p
		return err
	})
	return photo, err
}

func (s *Store) loadPhotos() ([]*Photo, error) {
	var photos []*Photo
	err := s.db.View(func(tx *bolt.Tx) error {
		tagsByPhoto := loadIndex(tx.Bucket(photoTagsBucket))
		return tx.Bucket(photosBucket).ForEach(func(_ []byte, v []byte) error {
			var photo Photo
			if err := json.Unmarshal(v, &photo); err != nil {
				return err
			}
			photo.Tags = tagsByPhoto[photo.ID]
			photos = append(photos, &photo)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.overlay(photos...)
	return photos, nil
}

func (s *Store) overlay(photos ...*Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.edits) == 0 {
		return
	}
	for _, p := range photos {
		if e, ok := s.edits[p.ID]; ok {
			e.apply(p)
		}
	}
}

func (s *Store) editFor(id string) *edit {
	e, ok := s.edits[id]
	if !ok {
		e = &edit{}
		s.edits[id] = e
	}
	return e
}

func (e *edit) apply(p *Photo) {
	if e.favorite != nil {
		p.Favorite = *e.favorite
	}
	if e.views != nil {
		p.Views = *e.views
	}
}

func getPhoto(b *bolt.Bucket, id string) (*Photo, error) {
	data := b.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrPhotoNotFound, id)
	}
	var photo Photo
	if err := json.Unmarshal(data, &photo); err != nil {
		return nil, err
	}
	return &photo, nil
}

func putPhoto(b *bolt.Bucket, photo *Photo) error {
	data, err := json.Marshal(photo)
	if err != nil {
		return err
	}
	return b.Put([]byte(photo.ID), data)
}

func attachTags(tx *bolt.Tx, photoID string, names []string, now time.Time) error {
	tags := tx.Bucket(tagsBucket)
	photoTags := tx.Bucket(photoTagsBucket)
	tagPhotos := tx.Bucket(tagPhotosBucket)

	for _, raw := range names {
		name := normalizeTag(raw)
		if name == "" {
			continue
		}

		if tags.Get([]byte(name)) == nil {
			data, err := json.Marshal(&Tag{Name: name, CreatedAt: now})
			if err != nil {
				return err
			}
			if err := tags.Put([]byte(name), data); err != nil {
				return err
			}
		}
		if err := photoTags.Put(indexKey(photoID, name), []byte{}); err != nil {
			return err
		}
		if err := tagPhotos.Put(indexKey(name, photoID), []byte{}); err != nil {
			return err
		}
	}
	return nil
}

// validatePhotoID rejects ids that cannot be used as an index key half.
func validatePhotoID(id string) error {
	switch {
	case id == "":
		return ErrEmptyPhotoID
	case strings.IndexByte(id, keySep) >= 0:
		return ErrInvalidPhotoID
	}
	return nil
}

// normalizeTag lower-cases and trims a tag name and drops NUL bytes, which
// separate the halves of index keys.
func normalizeTag(name string) string {
	name = strings.ReplaceAll(name, string(rune(keySep)), "")
	return strings.ToLower(strings.TrimSpace(name))
}

func indexKey(primary, secondary string) []byte {
	key := make([]byte, 0, len(primary)+1+len(secondary))
	key = append(key, primary...)
	key = append(key, keySep)
	return append(key, secondary...)
}

func splitIndexKey(key []byte) (string, string, bool) {
	i := bytes.IndexByte(key, keySep)
	if i < 0 {
		return "", "", false
	}
	return string(key[:i]), string(key[i+1:]), true
}

// scanSecondary returns the secondary halves of all index keys under primary.
// Keys are stored sorted, so the result is sorted too.
func scanSecondary(b *bolt.Bucket, primary string) []string {
	prefix := indexKey(primary, "")
	var out []string
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		out = append(out, string(k[len(prefix):]))
	}
	return out
}

func loadIndex(b *bolt.Bucket) map[string][]string {
	index := make(map[string][]string)
	_ = b.ForEach(func(k, _ []byte) error {
		if primary, secondary, ok := splitIndexKey(k); ok {
			index[primary] = append(index[primary], secondary)
		}
		return nil
	})
	return index
}

func sortByDateTaken(photos []*Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		if !photos[i].DateTaken.Equal(photos[j].DateTaken) {
			return photos[i].DateTaken.Before(photos[j].DateTaken)
		}
		return photos[i].ID < photos[j].ID
	})
}
