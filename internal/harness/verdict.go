package harness

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ResultMarker is the structured trailer an attempt can print to report
// its own verdict, e.g. `VULNFORGE_RESULT:{"exploit_success":true}`.
// When present it is authoritative; the marker heuristics below are the
// fallback for attempts that never print one.
const ResultMarker = "VULNFORGE_RESULT:"

type markerPayload struct {
	ExploitSuccess bool `json:"exploit_success"`
}

var (
	successMarkers = regexp.MustCompile(`(?i)EXPLOIT[_ ]SUCCESS|exploit succeeded|funds drained`)
	failureMarkers = regexp.MustCompile(`(?i)\b\d+ failing\b|AssertionError|Error:|FAILED`)
	passingMarker  = regexp.MustCompile(`\b\d+ passing\b`)
)

// judgeSuccess decides whether an execution demonstrated the exploit.
// Priority order: the structured trailer, then an explicit success
// marker, then a clean pass with no failure noise. A nonzero exit code
// is never a success regardless of what the output claims.
func judgeSuccess(exitCode int, output string) bool {
	if verdict, ok := parseMarker(output); ok {
		return verdict && exitCode == 0
	}
	if exitCode != 0 {
		return false
	}
	if successMarkers.MatchString(output) {
		return true
	}
	return passingMarker.MatchString(output) && !failureMarkers.MatchString(output)
}

// parseMarker scans for the last structured trailer line in the output.
// The last one wins so a test that prints intermediate verdicts reports
// its final state.
func parseMarker(output string) (bool, bool) {
	idx := strings.LastIndex(output, ResultMarker)
	if idx == -1 {
		return false, false
	}
	rest := output[idx+len(ResultMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[:nl]
	}
	var payload markerPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &payload); err != nil {
		return false, false
	}
	return payload.ExploitSuccess, true
}
