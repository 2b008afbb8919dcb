package pipeline

import "strings"

// QueryMarker precedes the query text in a synthesis response.
const QueryMarker = "SQLQuery:"

const codeFence = "```"

// ExtractQuery pulls the candidate query out of a synthesis response. It takes
// the text after the first marker, skips an opening code fence and stops at the
// next fence.
func ExtractQuery(raw string) Extraction {
	idx := strings.Index(raw, QueryMarker)
	if idx == -1 {
		return NotFound()
	}

	rest := strings.TrimLeft(raw[idx+len(QueryMarker):], " \t\r\n*")
	if strings.HasPrefix(rest, codeFence) {
		nl := strings.IndexByte(rest, '\n')
		if nl == -1 {
			return NotFound()
		}
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, codeFence); end != -1 {
		rest = rest[:end]
	}

	query := strings.TrimSpace(rest)
	if query == "" {
		return NotFound()
	}
	return Found(query)
}

// extractCode returns the body of the first fenced code block in response, or
// the whole trimmed response when it has none.
func extractCode(response string) string {
	start := strings.Index(response, codeFence)
	if start == -1 {
		return strings.TrimSpace(response)
	}
	body := response[start+len(codeFence):]
	nl := strings.IndexByte(body, '\n')
	if nl == -1 {
		return strings.TrimSpace(strings.TrimSuffix(body, codeFence))
	}
	body = body[nl+1:]
	if end := strings.Index(body, codeFence); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
