package store

import (
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"time"
)

// Key layout. Every index key carries the entity ID as its last segment so
// a listing can resume strictly after the last key it returned.
const (
	shelfPrefix          = "shelf:"                 // shelf:{id} -> Shelf JSON
	shelvesByOwnerPrefix = "idx:shelves:owner:"     // idx:shelves:owner:{ownerID}:{shelfID}
	tagPrefix            = "tag:"                   // tag:{slug} -> Tag JSON
	tagShelvesPrefix     = "idx:tags:shelves:"      // idx:tags:shelves:{slug}:{shelfID}
	tagPopularPrefix     = "idx:tags:popular:"      // idx:tags:popular:{invCount}:{slug}
	feedPrefix           = "idx:feed:"              // idx:feed:{feed}:{sortKey}:{shelfID}
	randomSalt           = "shelfcache-random-feed" // mixes shelf IDs into a stable shuffle
)

func shelfKey(id string) []byte {
	return []byte(shelfPrefix + id)
}

func tagKey(slug string) []byte {
	return []byte(tagPrefix + slug)
}

func ownerIndexPrefix(ownerID string) string {
	return shelvesByOwnerPrefix + ownerID + ":"
}

func tagShelvesIndexPrefix(slug string) string {
	return tagShelvesPrefix + slug + ":"
}

func feedIndexPrefix(feed string) string {
	return feedPrefix + feed + ":"
}

// popularSuffix orders tags by descending shelf count, then ascending slug.
func popularSuffix(count int, slug string) string {
	return fmt.Sprintf("%010d:%s", math.MaxInt32-int64(count), slug)
}

// parsePopularSuffix is the inverse of popularSuffix.
func parsePopularSuffix(suffix string) (int, string, bool) {
	inv, slug, ok := strings.Cut(suffix, ":")
	if !ok {
		return 0, "", false
	}
	n, err := strconv.ParseInt(inv, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return int(math.MaxInt32 - n), slug, true
}

// recencySuffix orders shelves newest first.
func recencySuffix(created time.Time, id string) string {
	return fmt.Sprintf("%019d:%s", math.MaxInt64-created.UnixNano(), id)
}

// randomSuffix orders shelves by a hash of their ID.
func randomSuffix(id string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(randomSalt))
	_, _ = h.Write([]byte(id))
	return fmt.Sprintf("%016x:%s", h.Sum64(), id)
}

// lastSegment returns the entity ID at the end of an index suffix.
func lastSegment(suffix string) string {
	if i := strings.LastIndexByte(suffix, ':'); i >= 0 {
		return suffix[i+1:]
	}
	return suffix
}
