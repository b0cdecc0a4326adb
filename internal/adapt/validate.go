package adapt

import (
	"fmt"
	"regexp"
	"strings"

	"vulnforge/internal/contract"
	"vulnforge/internal/strategy"
)

// maxRepairDistance is the edit-distance ceiling for treating an unknown
// call as a typo of a real operation.
const maxRepairDistance = 2

// Validate statically checks generated code against the contract's
// callable surface. Calls to unknown operations that are a near miss of
// a real one are repaired in place; the rest become warnings prepended
// to the code as a comment block. Validation is never fatal: a target
// with no enumerable operations gets its attempt back unmodified except
// for a warning noting that calls could not be checked.
func Validate(code string, ops []contract.Operation) (string, []string) {
	if len(ops) == 0 {
		warnings := []string{"no callable operations could be enumerated; calls were not validated"}
		return warningHeader(warnings) + code, warnings
	}

	valid := make(map[string]bool, len(ops))
	for _, name := range contract.Names(ops) {
		valid[name] = true
	}

	var warnings []string
	seen := make(map[string]bool)
	for _, invoked := range strategy.InvokedOperations(code) {
		if valid[invoked] || seen[invoked] {
			continue
		}
		seen[invoked] = true

		if repaired, ok := nearestOperation(invoked, ops); ok {
			code = replaceCall(code, invoked, repaired)
			warnings = append(warnings, fmt.Sprintf("repaired call: %q is not a contract operation, replaced with %q", invoked, repaired))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("unknown call: %q is not a contract operation and has no close match", invoked))
	}

	if len(warnings) > 0 {
		code = warningHeader(warnings) + code
	}
	return code, warnings
}

// nearestOperation finds the valid operation closest to name, if any is
// within the repair distance.
func nearestOperation(name string, ops []contract.Operation) (string, bool) {
	best := ""
	bestDist := maxRepairDistance + 1
	for _, op := range ops {
		if d := levenshtein(strings.ToLower(name), strings.ToLower(op.Name)); d < bestDist {
			best = op.Name
			bestDist = d
		}
	}
	return best, best != ""
}

// replaceCall rewrites `.oldName(` invocations to `.newName(`, leaving
// other uses of the identifier alone.
func replaceCall(code, oldName, newName string) string {
	re := regexp.MustCompile(`\.` + regexp.QuoteMeta(oldName) + `(\s*\()`)
	return re.ReplaceAllString(code, "."+newName+"$1")
}

func warningHeader(warnings []string) string {
	var sb strings.Builder
	sb.WriteString("// VALIDATION WARNINGS:\n")
	for _, w := range warnings {
		sb.WriteString("// - ")
		sb.WriteString(w)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
