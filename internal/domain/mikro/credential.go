package mikro

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// dateLayout is the date format hashed into the daily password.
const dateLayout = "2006-01-02"

// Credentials are the static account values configured for the Mikro API.
type Credentials struct {
	APIKey      string
	CompanyCode string
	UserCode    string
}

// HashedPassword derives the password the Mikro API accepts on the given day:
// the MD5 hex digest of "YYYY-MM-DD <user code>".
func HashedPassword(today time.Time, userCode string) string {
	sum := md5.Sum([]byte(today.Format(dateLayout) + " " + userCode))
	return hex.EncodeToString(sum[:])
}

// WorkingYear returns the accounting year sent as CalismaYili.
func WorkingYear(today time.Time) string {
	return today.Format("2006")
}
