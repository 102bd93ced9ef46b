package anyvcs

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

var multislashRx = regexp.MustCompile(`//+`)

// cleanPath normalizes a user-supplied repository path: no leading slash,
// no repeated slashes.
func cleanPath(path string) string {
	path = strings.TrimLeft(path, "/")
	return multislashRx.ReplaceAllString(path, "/")
}

// decodeText decodes backend output per the handle's encoding policy.
func decodeText(data []byte, policy EncodingPolicy) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	if policy == EncodingReplace {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return "", ErrEncoding
}

// addDiffPrefix rewrites "---"/"+++" headers to carry a path prefix of one
// so the output is suitable for patch -p1. Subversion emits bare paths.
func addDiffPrefix(diff, a, b string) string {
	var out strings.Builder
	out.Grow(len(diff))
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, "--- ") {
			line = "--- " + a + "/" + line[4:]
		} else if strings.HasPrefix(line, "+++ ") {
			line = "+++ " + b + "/" + line[4:]
		}
		out.WriteString(line)
	}
	return out.String()
}

// unifiedFileDiff renders a unified diff of two line slices, used where the
// backend has no native facility for the comparison (cross-path Subversion
// diffs, added or removed files).
func unifiedFileDiff(a, b []string, fromFile, toFile string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	})
}

func binaryDiffLine(fromFile, toFile string) string {
	return "Binary files " + fromFile + " and " + toFile + " differ\n"
}

// splitFileLines splits file content preserving line terminators, the shape
// difflib expects.
func splitFileLines(content string) []string {
	if content == "" {
		return nil
	}
	return difflib.SplitLines(content)
}

// splitPlainLines splits content into lines without terminators, aligned
// with blame output.
func splitPlainLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}
