package feed

import (
	"logMirrorBot/internal/domain"
)

// HasNewData reports whether current differs from previous as an ordered line sequence.
// It fails open: a missing previous payload or a payload that cannot be decoded counts as new.
func HasNewData(previous, current *domain.RawLogPayload) bool {
	if previous == nil || current == nil {
		return true
	}

	prevLines, err := Lines(previous)
	if err != nil {
		return true
	}
	curLines, err := Lines(current)
	if err != nil {
		return true
	}

	if len(prevLines) != len(curLines) {
		return true
	}
	for i := range prevLines {
		if prevLines[i] != curLines[i] {
			return true
		}
	}
	return false
}
