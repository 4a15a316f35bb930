package idgen

import (
	"crypto/sha256"
	"fmt"
)

// activityIDLength matches the teacher's default hash-ID width: long enough
// to make collisions practically impossible within one volume's journal.
const activityIDLength = 8

// GenerateActivityID derives a stable activity_id from the USN journal
// coordinates that produced it. Unlike a random UUID, hashing the volume,
// reference number and USN means re-reading the same journal record after a
// restart yields the same ID, which is what makes hot-tier storage
// idempotent by activity_id.
func GenerateActivityID(volume string, referenceNumber uint64, usn uint64) string {
	content := fmt.Sprintf("%s|%d|%d", volume, referenceNumber, usn)
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("act-%s", EncodeBase36(hash[:5], activityIDLength))
}
