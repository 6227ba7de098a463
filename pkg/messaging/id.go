package messaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a correlation id. GUIs send it as a JSON string or a number; both decode to the
// same canonical string, so 42 and "42" name the same conversation.
type ID string

// UnmarshalJSON accepts a string, a number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = ID(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("id %s is not a usable number: %w", n, err)
	}
	*id = ID(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// String returns the canonical form.
func (id ID) String() string { return string(id) }
