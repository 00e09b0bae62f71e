// Package jsonpath resolves paths into JSON documents. Paths are gjson
// syntax (users.0.name) or the JSONPath subset $.users[0].name.
package jsonpath

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Get resolves path against a JSON body. The result does not exist when
// the body is not valid JSON or the path matches nothing.
func Get(body []byte, path string) gjson.Result {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}
	}
	return gjson.GetBytes(body, Normalize(path))
}

// Normalize converts a JSONPath expression to gjson syntax. Paths that do
// not start with $ are returned unchanged.
func Normalize(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		switch ch := path[i]; ch {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				sb.WriteString(path[i:])
				return strings.TrimPrefix(sb.String(), ".")
			}
			key := strings.Trim(path[i+1:i+end], `'"`)
			sb.WriteByte('.')
			sb.WriteString(key)
			i += end
		default:
			sb.WriteByte(ch)
		}
	}
	return strings.TrimPrefix(sb.String(), ".")
}
