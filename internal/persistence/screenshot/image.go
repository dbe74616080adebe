package screenshot

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
)

// ErrCapability means the client could not hand over a usable image, e.g.
// a tainted canvas that refused to encode or a payload that is not a PNG.
var ErrCapability = errors.New("image encoding unavailable")

const dataURLPrefix = "data:image/png;base64,"

// DecodePNG accepts either raw PNG bytes or a canvas data URL and returns
// the raw PNG bytes after checking the image header decodes.
func DecodePNG(payload []byte) ([]byte, error) {
	raw := payload
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCapability)
	}
	if s := string(trimmed); strings.HasPrefix(s, "data:") {
		if !strings.HasPrefix(s, dataURLPrefix) {
			return nil, fmt.Errorf("%w: unsupported data url", ErrCapability)
		}
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, dataURLPrefix))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapability, err)
		}
		raw = b
	}
	if _, err := png.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapability, err)
	}
	return raw, nil
}
