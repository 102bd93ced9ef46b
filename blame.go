package anyvcs

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// nativeBlamer marks a backend with its own blame primitive. Backends
// without one fall back to blameByHistory; dispatch checks the capability,
// never the backend kind.
type nativeBlamer interface {
	blameNative(rev, path string) ([]BlameInfo, error)
}

// blameSource is the capability set the fallback blame engine needs: the
// path's history, file content per revision, and author metadata.
type blameSource interface {
	// pathRevs lists the revisions that touched path, newest first, with
	// the path's name at each revision.
	pathRevs(rev, path string) ([]pathRev, error)
	fileLines(rev, path string) ([]string, error)
	revMeta(rev string) (author string, date time.Time, err error)
}

// dispatchBlame selects the blame implementation from the backend's
// capability set: native where the backend provides one, the generic
// history walk otherwise.
func dispatchBlame(backend any, rev, path string) ([]BlameInfo, error) {
	if nb, ok := backend.(nativeBlamer); ok {
		return nb.blameNative(rev, path)
	}
	if src, ok := backend.(blameSource); ok {
		return blameByHistory(src, rev, path)
	}
	return nil, fmt.Errorf("blame %s:%s: backend exposes no blame capability", rev, path)
}

// blameByHistory attributes lines without a native blame command: it replays
// the path's history oldest to newest, diffing each revision's content
// against its predecessor and attributing inserted or replaced lines to the
// revision that introduced them. On linear histories this matches native
// blame exactly, which is the correctness baseline for the fallback.
func blameByHistory(src blameSource, rev, path string) ([]BlameInfo, error) {
	history, err := src.pathRevs(rev, path)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, pathNotFound(rev, path)
	}

	var prev []string
	var attr []string
	for i := len(history) - 1; i >= 0; i-- {
		step := history[i]
		cur, err := src.fileLines(step.Rev, step.Path)
		if err != nil {
			return nil, err
		}
		next := make([]string, 0, len(cur))
		for _, op := range difflib.NewMatcher(prev, cur).GetOpCodes() {
			if op.Tag == 'e' {
				next = append(next, attr[op.I1:op.I2]...)
				continue
			}
			for j := op.J1; j < op.J2; j++ {
				next = append(next, step.Rev)
			}
		}
		attr = next
		prev = cur
	}

	meta := make(map[string]struct {
		author string
		date   time.Time
	}, len(history))
	results := make([]BlameInfo, 0, len(prev))
	for i, line := range prev {
		if i >= len(attr) {
			return nil, fmt.Errorf("blame %s:%s: attribution misaligned", rev, path)
		}
		lineRev := attr[i]
		m, ok := meta[lineRev]
		if !ok {
			author, date, err := src.revMeta(lineRev)
			if err != nil {
				return nil, err
			}
			m = struct {
				author string
				date   time.Time
			}{author, date}
			meta[lineRev] = m
		}
		results = append(results, BlameInfo{
			Rev:    lineRev,
			Author: m.author,
			Date:   m.date,
			Line:   strings.TrimSuffix(line, "\n"),
		})
	}
	return results, nil
}
