package generation

import (
	"fmt"
	"strings"
)

// ExtractCodeBlock pulls the first fenced code block out of a model
// response. Models wrap code in markdown fences with varying language
// tags; we accept the common ones and a bare fence. A response with no
// fence at all is treated as raw code only when it plausibly is code.
func ExtractCodeBlock(response string) (string, error) {
	for _, lang := range []string{"javascript", "js", "typescript", "ts", "solidity", ""} {
		marker := "```" + lang
		for search := response; ; {
			idx := strings.Index(search, marker)
			if idx == -1 {
				break
			}
			rest := search[idx+len(marker):]
			// ```js prefix-matches ```json, and a bare ``` matches any
			// fence; require the fence line to end right after the tag,
			// skipping to the next occurrence when it doesn't.
			nl := strings.IndexByte(rest, '\n')
			if nl == -1 {
				break
			}
			if strings.TrimSpace(rest[:nl]) != "" {
				search = rest
				continue
			}
			body := rest[nl+1:]
			end := strings.Index(body, "```")
			if end == -1 {
				return "", fmt.Errorf("unterminated code block in response")
			}
			code := strings.TrimSpace(body[:end])
			if code == "" {
				return "", fmt.Errorf("empty code block in response")
			}
			return code, nil
		}
	}

	trimmed := strings.TrimSpace(response)
	if looksLikeCode(trimmed) {
		return trimmed, nil
	}
	return "", fmt.Errorf("no code block found in response")
}

func looksLikeCode(s string) bool {
	if s == "" {
		return false
	}
	for _, sig := range []string{"require(", "describe(", "it(", "const ", "async function", "contract "} {
		if strings.Contains(s, sig) {
			return true
		}
	}
	return false
}

// ExtractJSON pulls a JSON object out of a model response, stripping an
// optional markdown fence. Returns the raw JSON text for the caller to
// unmarshal into its own shape.
func ExtractJSON(response string) (string, error) {
	s := strings.TrimSpace(response)

	for _, marker := range []string{"```json", "```"} {
		if idx := strings.Index(s, marker); idx != -1 {
			rest := s[idx+len(marker):]
			if end := strings.Index(rest, "```"); end != -1 {
				s = strings.TrimSpace(rest[:end])
				break
			}
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return s[start : end+1], nil
}
