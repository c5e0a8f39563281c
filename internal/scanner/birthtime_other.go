//go:build !linux

package scanner

import "time"

func birthTime(string) (time.Time, bool) {
	return time.Time{}, false
}
