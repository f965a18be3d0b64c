package nodeclient

import (
	"github.com/tidwall/gjson"
)

// salvageID makes a best-effort attempt to read the top-level "id" member of a frame that failed to decode.
// It only recovers string IDs, since those are the only ones this client issues.
// Well-formed frames go through decodeResponse only.
func salvageID(frame []byte) (string, bool) {
	id := gjson.GetBytes(frame, "id")
	if id.Type != gjson.String {
		return "", false
	}
	return id.Str, true
}
