package result

import (
	"crypto/sha1" //nolint:gosec // content key, not a security boundary
	"encoding/hex"
	"regexp"
	"strings"
)

// AssertionRecord is one distinct assertion failure seen in a run log.
type AssertionRecord struct {
	File    string `json:"file"`
	Message string `json:"message"`
	// Occurrences keeps the historical dashboard spelling on the wire.
	Occurrences int `json:"occurances"`
}

// assertPattern matches "<timestamp> <context> ASSERT FAILED: <message>".
var assertPattern = regexp.MustCompile(
	`(?ms)^\s*([0-9\-:.\s]*)\s*([\-_.\w()]*)\s*ASSERT FAILED\s*:\s*(.*?)\n`)

// AssertKey returns the deduplication key of an assertion.
func AssertKey(file, message string) string {
	sum := sha1.Sum([]byte(file + message)) //nolint:gosec // see import

	return hex.EncodeToString(sum[:])
}

// ParseAsserts returns the number of assertion failures in data and the
// distinct ones keyed by AssertKey.
func ParseAsserts(data string) (int, map[string]AssertionRecord) {
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}

	matches := assertPattern.FindAllStringSubmatch(data, -1)
	uniques := make(map[string]AssertionRecord, len(matches))

	for _, m := range matches {
		file, message := m[2], m[3]
		key := AssertKey(file, message)

		rec := uniques[key]
		rec.File = file
		rec.Message = message
		rec.Occurrences++
		uniques[key] = rec
	}

	return len(matches), uniques
}
