package archive

import (
	"bytes"
	"time"

	"github.com/flemzord/chanreset/internal/fetch"
)

// Render writes one line per item: "<author> <RFC3339 timestamp> <content>".
// Items must already be ordered.
func Render(items []fetch.Item) []byte {
	var buf bytes.Buffer
	for i, it := range items {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(it.Author)
		buf.WriteByte(' ')
		buf.WriteString(it.Timestamp.UTC().Format(time.RFC3339))
		buf.WriteByte(' ')
		buf.WriteString(it.Content)
	}
	return buf.Bytes()
}
