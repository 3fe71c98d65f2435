package groups

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewGroupID returns an identifier of the form group_<unix millis>_<9 chars>.
func NewGroupID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "group_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// NewExpenseID returns a random expense identifier.
func NewExpenseID() string {
	return uuid.NewString()
}

// ShareLink returns the link that opens the group: <base>?group=<id>.
func ShareLink(baseURL, id string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL + "?group=" + url.QueryEscape(id)
	}
	q := u.Query()
	q.Set("group", id)
	u.RawQuery = q.Encode()
	return u.String()
}
