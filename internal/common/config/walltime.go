package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Batch schedulers express wall-clock limits as "HH:MM:SS" (hours may exceed
// two digits). Configuration accepts that syntax as well as Go durations.
var walltimeRegex = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})$`)

func ParseWalltime(value string) (time.Duration, error) {
	if match := walltimeRegex.FindStringSubmatch(value); match != nil {
		hours, _ := strconv.Atoi(match[1])
		minutes, _ := strconv.Atoi(match[2])
		seconds, _ := strconv.Atoi(match[3])
		if minutes > 59 || seconds > 59 {
			return 0, errors.Errorf("invalid walltime %q", value)
		}
		return time.Duration(hours)*time.Hour +
			time.Duration(minutes)*time.Minute +
			time.Duration(seconds)*time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Errorf("invalid walltime %q: expected HH:MM:SS or Go duration syntax", value)
	}
	return d, nil
}

func FormatWalltime(d time.Duration) string {
	seconds := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}
