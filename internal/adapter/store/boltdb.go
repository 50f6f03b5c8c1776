package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
	"voiceagent/internal/domain"
	"voiceagent/internal/port"
)

var (
	bucketCollections = []byte("collections")
	bucketVectors     = []byte("vectors")
	bucketSources     = []byte("sources")
	bucketInfo        = []byte("info")
	keyDimension      = []byte("dimension")
	keyModel          = []byte("model")
)

// scanCheckEvery is how many vectors a search visits between context checks.
const scanCheckEvery = 256

// BoltIndex implements port.VectorIndex on top of BoltDB. Each collection is
// a nested bucket, so handles bound to different collections never see each
// other's vectors. Search is brute force over the collection.
type BoltIndex struct {
	db         *bbolt.DB
	collection string
	ownsDB     bool
}

var _ port.VectorIndex = (*BoltIndex)(nil)

type storedVector struct {
	Vector   []float32            `json:"v"`
	SourceID string               `json:"s"`
	Text     string               `json:"t"`
	Metadata domain.ChunkMetadata `json:"m"`
}

// OpenBoltIndex opens (creating if needed) the database at path and binds
// the returned handle to collection, creating the collection when absent.
func OpenBoltIndex(path, collection string, timeout time.Duration) (*BoltIndex, error) {
	if collection == "" {
		return nil, domain.ConfigurationError("open index", "collection name is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, domain.StoreError("open index", fmt.Errorf("failed to create index directory: %w", err))
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, domain.StoreError("open index", fmt.Errorf("failed to open bolt db: %w", err))
	}

	idx, err := NewBoltIndex(db, collection)
	if err != nil {
		db.Close()
		return nil, err
	}
	idx.ownsDB = true
	return idx, nil
}

// NewBoltIndex binds a handle to collection on an already open database.
// The caller keeps ownership of db.
func NewBoltIndex(db *bbolt.DB, collection string) (*BoltIndex, error) {
	if collection == "" {
		return nil, domain.ConfigurationError("open index", "collection name is empty")
	}
	if err := checkSchema(db); err != nil {
		return nil, domain.StoreError("open index", err)
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketCollections)
		if err != nil {
			return err
		}
		return createCollection(root, collection)
	})
	if err != nil {
		return nil, domain.StoreError("open index", fmt.Errorf("failed to create collection %s: %w", collection, err))
	}

	return &BoltIndex{db: db, collection: collection}, nil
}

func createCollection(root *bbolt.Bucket, name string) error {
	coll, err := root.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return err
	}
	for _, b := range [][]byte{bucketVectors, bucketSources, bucketInfo} {
		if _, err := coll.CreateBucketIfNotExists(b); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", b, err)
		}
	}
	return nil
}

func (s *BoltIndex) Collection() string {
	return s.collection
}

// DB exposes the underlying database.
func (s *BoltIndex) DB() *bbolt.DB {
	return s.db
}

func (s *BoltIndex) bucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	root := tx.Bucket(bucketCollections)
	if root == nil {
		return nil, domain.NotFoundError("collection", fmt.Errorf("collection %s does not exist", s.collection))
	}
	coll := root.Bucket([]byte(s.collection))
	if coll == nil {
		return nil, domain.NotFoundError("collection", fmt.Errorf("collection %s does not exist", s.collection))
	}
	return coll, nil
}

// Upsert adds or updates vectors in the collection.
func (s *BoltIndex) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError("upsert", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		coll, err := s.bucket(tx)
		if err != nil {
			return err
		}
		return putItems(coll, items)
	})
	return domain.StoreError("upsert", err)
}

// ReplaceSource removes the previous chunks of sourceID and writes items in
// one transaction, so readers see either the old or the new version.
func (s *BoltIndex) ReplaceSource(ctx context.Context, sourceID string, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError("replace source", err)
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		coll, err := s.bucket(tx)
		if err != nil {
			return err
		}
		if _, err := deleteSource(coll, sourceID); err != nil {
			return err
		}
		return putItems(coll, items)
	})
	return domain.StoreError("replace source", err)
}

func putItems(coll *bbolt.Bucket, items []port.VectorItem) error {
	vectors := coll.Bucket(bucketVectors)
	info := coll.Bucket(bucketInfo)

	dimension := readDimension(info)
	sourceIDs := make(map[string][]string)

	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("vector item has empty id")
		}
		if dimension == 0 {
			dimension = len(item.Vector)
			if err := info.Put(keyDimension, []byte(strconv.Itoa(dimension))); err != nil {
				return err
			}
		}
		if len(item.Vector) != dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dimension, len(item.Vector))
		}

		data, err := json.Marshal(storedVector{
			Vector:   item.Vector,
			SourceID: item.SourceID,
			Text:     item.Text,
			Metadata: item.Metadata,
		})
		if err != nil {
			return err
		}
		if err := vectors.Put([]byte(item.ID), data); err != nil {
			return err
		}
		sourceIDs[item.SourceID] = append(sourceIDs[item.SourceID], item.ID)
	}

	sources := coll.Bucket(bucketSources)
	for sourceID, ids := range sourceIDs {
		existing, err := readIDs(sources, sourceID)
		if err != nil {
			return err
		}
		if err := writeIDs(sources, sourceID, mergeIDs(existing, ids)); err != nil {
			return err
		}
	}
	return nil
}

func deleteSource(coll *bbolt.Bucket, sourceID string) (int, error) {
	sources := coll.Bucket(bucketSources)
	ids, err := readIDs(sources, sourceID)
	if err != nil {
		return 0, err
	}

	vectors := coll.Bucket(bucketVectors)
	removed := 0
	for _, id := range ids {
		if vectors.Get([]byte(id)) == nil {
			continue
		}
		if err := vectors.Delete([]byte(id)); err != nil {
			return removed, err
		}
		removed++
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return removed, sources.Delete([]byte(sourceID))
}

// Nearest finds the k nearest vectors to the query using cosine similarity.
func (s *BoltIndex) Nearest(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if k <= 0 {
		return nil, domain.ConfigurationError("nearest", "k must be positive, got %d", k)
	}

	var results []port.VectorResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		coll, err := s.bucket(tx)
		if err != nil {
			return err
		}

		if dim := readDimension(coll.Bucket(bucketInfo)); dim != 0 && dim != len(query) {
			return fmt.Errorf("query dimension mismatch: expected %d, got %d", dim, len(query))
		}

		visited := 0
		return coll.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			visited++
			if visited%scanCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("corrupted vector %s: %w", k, err)
			}
			results = append(results, port.VectorResult{
				ID:       string(k),
				Text:     stored.Text,
				Metadata: stored.Metadata,
				Score:    CosineSimilarity(query, stored.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, domain.StoreError("nearest", err)
	}

	return TopK(results, k), nil
}

// DeleteSource removes every vector belonging to sourceID.
func (s *BoltIndex) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.StoreError("delete source", err)
	}
	var removed int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		coll, err := s.bucket(tx)
		if err != nil {
			return err
		}
		removed, err = deleteSource(coll, sourceID)
		return err
	})
	return removed, domain.StoreError("delete source", err)
}

// Count returns the number of vectors in the collection.
func (s *BoltIndex) Count(ctx context.Context) (int, error) {
	info, err := s.Info(ctx)
	return info.Count, err
}

func (s *BoltIndex) Info(ctx context.Context) (port.CollectionInfo, error) {
	info := port.CollectionInfo{Name: s.collection}
	err := s.db.View(func(tx *bbolt.Tx) error {
		coll, err := s.bucket(tx)
		if err != nil {
			return err
		}
		info.Count = coll.Bucket(bucketVectors).Stats().KeyN
		meta := coll.Bucket(bucketInfo)
		info.Dimension = readDimension(meta)
		info.Model = string(meta.Get(keyModel))
		return nil
	})
	return info, domain.StoreError("info", err)
}

func (s *BoltIndex) SetModel(ctx context.Context, model string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		coll, err := s.bucket(tx)
		if err != nil {
			return err
		}
		return coll.Bucket(bucketInfo).Put(keyModel, []byte(model))
	})
	return domain.StoreError("set model", err)
}

// Drop deletes every vector of the collection, leaving it empty.
func (s *BoltIndex) Drop(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(bucketCollections)
		if err != nil {
			return err
		}
		if root.Bucket([]byte(s.collection)) != nil {
			if err := root.DeleteBucket([]byte(s.collection)); err != nil {
				return err
			}
		}
		return createCollection(root, s.collection)
	})
	return domain.StoreError("drop", err)
}

func (s *BoltIndex) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func readDimension(info *bbolt.Bucket) int {
	raw := info.Get(keyDimension)
	if raw == nil {
		return 0
	}
	dim, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return dim
}

func readIDs(sources *bbolt.Bucket, sourceID string) ([]string, error) {
	data := sources.Get([]byte(sourceID))
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("corrupted source index %s: %w", sourceID, err)
	}
	return ids, nil
}

func writeIDs(sources *bbolt.Bucket, sourceID string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return sources.Put([]byte(sourceID), data)
}

func mergeIDs(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}
