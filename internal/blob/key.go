package blob

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// AudioKey derives a storage key for a captured audio file: current-time
// based, under the audio/ prefix, preserving the source file extension.
func AudioKey(now time.Time, localURI string) string {
	ext := strings.TrimPrefix(path.Ext(localURI), ".")
	if ext == "" {
		ext = "m4a"
	}
	return fmt.Sprintf("audio/%d.%s", now.UnixMilli(), ext)
}
