package runlog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/medlot/claimload/internal/model"
)

// Segregate splits a failed-records log into one file per failure class so
// each class can be fixed and re-run in isolation. The class of a failure is
// the leading token of its error text, up to the first colon: "Member not
// found: ..." and "Member not found for memberNumber: X" both land in the
// member-not-found bucket.
func Segregate(failedPath, outDir string) (map[string]int, error) {
	failed, err := NewJSONLog[model.FailedRecord](failedPath).Read()
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]model.FailedRecord)
	for _, rec := range failed {
		buckets[FailureClass(rec.Error)] = append(buckets[FailureClass(rec.Error)], rec)
	}

	counts := make(map[string]int, len(buckets))
	classes := make([]string, 0, len(buckets))
	for class := range buckets {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	for _, class := range classes {
		path := filepath.Join(outDir, bucketFileName(class))
		if err := writeJSONFile(path, buckets[class]); err != nil {
			return counts, fmt.Errorf("segregate %q: %w", class, err)
		}
		counts[class] = len(buckets[class])
	}
	return counts, nil
}

// FailureClass extracts the grouping key from an error message.
func FailureClass(errText string) string {
	head, _, _ := strings.Cut(errText, ":")
	head = strings.TrimSpace(head)
	if head == "" {
		return "unclassified"
	}
	return head
}

// bucketFileName turns a failure class into a safe file name.
func bucketFileName(class string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(class) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "unclassified"
	}
	return name + ".json"
}
