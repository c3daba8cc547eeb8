package helpers

import (
	"bufio"
	"io"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"credit-observer/src/logger"
)

const (
	fallbackMemoryMB = 512
	memoryShare      = 0.75
)

// -----------------------------------------------------------------------------

// GetRecommendedMemoryLimit returns a soft memory limit in MB: 75% of the
// container limit if one is set, else of physical memory, never below 512MB
// unless the machine has less.
func GetRecommendedMemoryLimit() int {
	totalMB := cgroupLimitMB()
	if totalMB == 0 {
		totalMB = totalSystemMemoryMB()
	}
	if totalMB == 0 {
		return fallbackMemoryMB
	}

	limit := int(float64(totalMB) * memoryShare)
	if limit < fallbackMemoryMB {
		if totalMB < fallbackMemoryMB {
			return totalMB
		}
		return fallbackMemoryMB
	}
	return limit
}

// ApplyMemoryLimit sets the runtime soft memory limit to the recommended
// value and returns it in MB. An explicit GOMEMLIMIT wins.
func ApplyMemoryLimit(log *logger.Logger) int {
	if os.Getenv("GOMEMLIMIT") != "" {
		return int(debug.SetMemoryLimit(-1) >> 20)
	}
	mb := GetRecommendedMemoryLimit()
	debug.SetMemoryLimit(int64(mb) << 20)
	if log != nil {
		log.Info("Memory limit set to %d MB", mb)
	}
	return mb
}

// -----------------------------------------------------------------------------

func totalSystemMemoryMB() int {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()
	return parseMemTotal(f)
}

// parseMemTotal reads the MemTotal line (in kB) of a meminfo listing.
func parseMemTotal(r io.Reader) int {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			if kb, err := strconv.Atoi(fields[1]); err == nil {
				return kb / 1024
			}
		}
	}
	return 0
}

func cgroupLimitMB() int {
	data, err := os.ReadFile("/sys/fs/cgroup/memory.max")
	if err != nil {
		return 0
	}
	return parseCgroupLimit(string(data))
}

// parseCgroupLimit reads a cgroup v2 memory.max value; "max" means unlimited.
func parseCgroupLimit(v string) int {
	v = strings.TrimSpace(v)
	if v == "" || v == "max" {
		return 0
	}
	b, err := strconv.ParseInt(v, 10, 64)
	if err != nil || b <= 0 {
		return 0
	}
	return int(b >> 20)
}
