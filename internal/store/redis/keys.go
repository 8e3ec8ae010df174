package redis

const (
	// KeyPrefixBookmark is the prefix for bookmark rows
	KeyPrefixBookmark = "marksync:bookmark:"
	// KeyPrefixUser is the prefix for per-user indices
	KeyPrefixUser = "marksync:user:"
	// KeyBookmarkSeq is the counter that hands out bookmark ids
	KeyBookmarkSeq = "marksync:bookmarks:seq"
	// KeyPrefixChanges is the prefix for per-user change channels
	KeyPrefixChanges = "marksync:changes:"
)

// BookmarkKey returns the Redis key for a bookmark row
func BookmarkKey(id string) string {
	return KeyPrefixBookmark + id
}

// UserBookmarksKey returns the sorted set of a user's bookmark ids,
// scored by creation time
func UserBookmarksKey(userID string) string {
	return KeyPrefixUser + userID + ":bookmarks"
}

// ChangesChannel returns the Pub/Sub channel carrying a user's row changes
func ChangesChannel(userID string) string {
	return KeyPrefixChanges + userID
}
