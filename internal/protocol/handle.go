package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Handle is the opaque pointer-sized identity the server assigns to a live object.
type Handle uint64

// NoHandle is never assigned to a live object.
const NoHandle Handle = 0

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// ParseHandle accepts the decimal form used on the wire and in URLs.
func ParseHandle(raw string) (Handle, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return NoHandle, fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	return Handle(v), nil
}

// UnmarshalJSON accepts both numeric and string-encoded handles.
func (h *Handle) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidHandle, err)
		}
		raw = s
	}
	v, err := ParseHandle(raw)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func (h Handle) MarshalJSON() ([]byte, error) {
	return []byte(h.String()), nil
}
