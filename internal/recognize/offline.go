package recognize

import (
    "context"
    "fmt"
    "strings"
)

const OfflineName = "tesseract"

// OfflineMath is a free, local page recognizer used when MathPix is not
// configured or fails.
type OfflineMath interface {
    Recognize(ctx context.Context, imagePath string) (string, error)
}

// Fragment is one recognized region of a page.
type Fragment struct {
    Text    string
    Latex   string
    Content string
}

func (f Fragment) value() string {
    for _, s := range []string{f.Text, f.Latex, f.Content} {
        if s != "" {
            return s
        }
    }
    return ""
}

// JoinFragments flattens recognizer output into a single string.
// A string is trimmed. For lists, each item contributes its text, latex or
// content field (first non-empty), or itself when it is a string; parts are
// joined with a blank line.
func JoinFragments(out any) string {
    var parts []string
    add := func(s string) {
        if s != "" {
            parts = append(parts, s)
        }
    }
    switch v := out.(type) {
    case nil:
        return ""
    case string:
        return strings.TrimSpace(v)
    case []string:
        for _, s := range v {
            add(s)
        }
    case []Fragment:
        for _, f := range v {
            add(f.value())
        }
    case []map[string]any:
        for _, m := range v {
            add(mapValue(m))
        }
    case []any:
        for _, item := range v {
            switch it := item.(type) {
            case string:
                add(it)
            case Fragment:
                add(it.value())
            case map[string]any:
                add(mapValue(it))
            }
        }
    default:
        return strings.TrimSpace(fmt.Sprint(v))
    }
    return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func mapValue(m map[string]any) string {
    for _, k := range []string{"text", "latex", "content"} {
        if s, ok := m[k].(string); ok && s != "" {
            return s
        }
    }
    return ""
}
