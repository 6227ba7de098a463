// Package descriptor defines the device, action and control descriptors a backend exposes
// to the GUI, their wire projections and the structured results handlers return.
package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Text is either a plain string or a map of language code to translation.
type Text struct {
	plain        string
	translations map[string]string
}

// PlainText returns a Text holding a single untranslated string.
func PlainText(s string) Text {
	return Text{plain: s}
}

// Translated returns a Text holding one string per language code.
func Translated(m map[string]string) Text {
	return Text{translations: m}
}

// IsZero reports whether t holds neither a string nor translations.
func (t Text) IsZero() bool {
	return t.plain == "" && len(t.translations) == 0
}

// String returns the plain value, or the "en" translation, or any translation.
func (t Text) String() string {
	if t.translations == nil {
		return t.plain
	}
	if en, ok := t.translations["en"]; ok {
		return en
	}
	for _, v := range t.translations {
		return v
	}
	return ""
}

// MarshalJSON encodes t as a JSON string or object.
func (t Text) MarshalJSON() ([]byte, error) {
	if t.translations != nil {
		return json.Marshal(t.translations)
	}
	return json.Marshal(t.plain)
}

// UnmarshalJSON accepts a JSON string or an object of strings.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Text{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text{plain: s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("descriptor:text - expected string or translations object: %w", err)
	}
	*t = Text{translations: m}
	return nil
}
