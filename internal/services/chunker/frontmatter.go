package chunker

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// parseFrontMatter splits a leading YAML front matter block from the body
// and flattens its scalar fields to strings. Malformed front matter is
// stripped but contributes no metadata; chunking never fails on it.
func parseFrontMatter(markdown string) (map[string]string, string) {
	meta := make(map[string]string)

	if !strings.HasPrefix(markdown, "---\n") {
		return meta, markdown
	}

	rest := markdown[4:]
	var block, body string
	if end := strings.Index(rest, "\n---\n"); end >= 0 {
		block = rest[:end]
		body = rest[end+5:]
	} else if strings.HasSuffix(rest, "\n---") {
		block = rest[:len(rest)-4]
		body = ""
	} else {
		// Unterminated fence, treat the whole document as body
		return meta, markdown
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return meta, body
	}
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			meta[key] = v
		case time.Time:
			// Unquoted dates decode as timestamps
			meta[key] = v.Format(time.RFC3339)
		case nil:
			meta[key] = ""
		default:
			meta[key] = fmt.Sprintf("%v", v)
		}
	}
	return meta, body
}
