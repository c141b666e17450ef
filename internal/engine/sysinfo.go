package engine

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Threads returns the thread count handed to the engine: every core we have.
func Threads() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// physicalMemoryMB is swapped out in tests.
var physicalMemoryMB = readMemTotalMB

// HashSizeMB derives the engine hash table size: half of physical memory,
// clamped to the configured cap. Falls back to the cap when detection fails.
func HashSizeMB(capMB int) int {
	if capMB <= 0 {
		capMB = 16
	}
	memMB, err := physicalMemoryMB()
	if err != nil || memMB <= 0 {
		return capMB
	}
	half := memMB / 2
	if half < 16 {
		half = 16
	}
	if half < capMB {
		return half
	}
	return capMB
}

func readMemTotalMB() (int, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, err
		}
		return kb / 1024, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemTotal not found in /proc/meminfo")
}
