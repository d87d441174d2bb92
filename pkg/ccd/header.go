package ccd

import(
	"fmt"
	"strconv"
	"strings"
)

// A Header is an ordered mapping of keys to scalar values (number,
// string or bool), each with an optional comment. Keys are
// case-insensitive and unique; they are stored uppercased, which is
// what the FITS container does anyway. Every Frame owns its Header
// outright - cloning a Frame clones the Header, so no two Frames ever
// share one.
type Header struct {
	keys  []string
	items map[string]headerItem
}

type headerItem struct {
	value   interface{}
	comment string
}

func NewHeader() Header {
	return Header{
		keys:  []string{},
		items: map[string]headerItem{},
	}
}

func (h Header)String() string {
	return fmt.Sprintf("Header[%d keys]", len(h.keys))
}

func (h *Header)Len() int { return len(h.keys) }

// Keys returns the keys in insertion order.
func (h *Header)Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

func (h *Header)Has(key string) bool {
	_,exists := h.items[strings.ToUpper(key)]
	return exists
}

// Set adds or replaces a value. Replacing keeps the key's original
// position in the ordering.
func (h *Header)Set(key string, value interface{}) {
	h.SetWithComment(key, value, "")
}

func (h *Header)SetWithComment(key string, value interface{}, comment string) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return
	}
	if h.items == nil {
		h.items = map[string]headerItem{}
	}
	if _,exists := h.items[key]; !exists {
		h.keys = append(h.keys, key)
	}
	h.items[key] = headerItem{value:value, comment:comment}
}

func (h *Header)Del(key string) {
	key = strings.ToUpper(key)
	if _,exists := h.items[key]; !exists {
		return
	}
	delete(h.items, key)
	for i,k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

func (h *Header)Get(key string) (interface{}, bool) {
	item,exists := h.items[strings.ToUpper(key)]
	if !exists {
		return nil, false
	}
	return item.value, true
}

func (h *Header)Comment(key string) string {
	return h.items[strings.ToUpper(key)].comment
}

// GetString renders any scalar value as a string.
func (h *Header)GetString(key string) (string, bool) {
	v,exists := h.Get(key)
	if !exists {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		if val { return "T", true }
		return "F", true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}

// GetFloat parses numeric values, and numeric strings, as float64.
func (h *Header)GetFloat(key string) (float64, bool) {
	v,exists := h.Get(key)
	if !exists {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f,err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (h *Header)GetBool(key string) (bool, bool) {
	v,exists := h.Get(key)
	if !exists {
		return false, false
	}
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToUpper(strings.TrimSpace(val)) {
		case "T", "TRUE", "YES": return true, true
		case "F", "FALSE", "NO": return false, true
		}
	}
	return false, false
}

func (h *Header)Clone() Header {
	h2 := NewHeader()
	for _,k := range h.keys {
		item := h.items[k]
		h2.SetWithComment(k, item.value, item.comment)
	}
	return h2
}
