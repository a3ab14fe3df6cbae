package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// GenerateMemoryID derives a stable id from the memory's owner, content,
// and creation time.
func GenerateMemoryID(userID int64, content string, timestamp time.Time) string {
	hasher := sha256.New()
	hasher.Write([]byte(strconv.FormatInt(userID, 10)))
	hasher.Write([]byte(content))
	hasher.Write([]byte(timestamp.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
