package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"unicode/utf8"
)

var (
	// DefaultMaxLineSize is 64KB.
	DefaultMaxLineSize = 64 * 1024
	// EnvMaxLineSize overrides the default line limit.
	EnvMaxLineSize = "SETTLE_MAX_LINE_SIZE"
)

var (
	ErrLineTooLarge = errors.New("input line exceeds maximum allowed size")
	ErrInvalidUTF8  = errors.New("input line contains invalid UTF-8 sequences")
)

// checkLine rejects oversized or non UTF-8 lines before they are decoded.
// Message text is never rewritten; whitespace and control characters inside
// it are buffered as received.
func checkLine(line []byte, limit int) error {
	if len(line) > limit {
		// Rejected rather than truncated so a partial message is never buffered.
		return fmt.Errorf("%w: size=%d limit=%d", ErrLineTooLarge, len(line), limit)
	}
	if !utf8.Valid(line) {
		return ErrInvalidUTF8
	}
	return nil
}

func lineLimit(configured int) int {
	if val := os.Getenv(EnvMaxLineSize); val != "" {
		if limit, err := strconv.Atoi(val); err == nil && limit > 0 {
			return limit
		}
	}
	return configured
}
