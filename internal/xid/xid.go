package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a sortable-ish identifier of the form prefix-<unixnano>-<random>.
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	random := strings.ReplaceAll(id.String(), "-", "")[:16]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), random)
}
