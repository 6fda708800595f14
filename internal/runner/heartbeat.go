package runner

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// procStats is a snapshot of the metrics the heartbeat reports, read
// straight from /proc/<pid>/stat, /proc/<pid>/io, /proc/<pid>/net/dev,
// and /proc/<pid>/status.
type procStats struct {
	cpuTicks   uint64 // utime+stime, in clock ticks
	ioBytes    uint64 // read_bytes+write_bytes
	netBytes   uint64 // rx+tx across the process's interfaces, best-effort
	rssBytes   uint64
	numThreads int
}

var clockTicksPerSec = int64(100) // standard on Linux; USER_HZ is rarely anything else

func readProcStats(pid int) (procStats, error) {
	var s procStats

	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	raw, err := os.ReadFile(statPath)
	if err != nil {
		return s, err
	}
	// Fields after the executable name (which may contain spaces/parens)
	// start after the last ')'.
	idx := strings.LastIndexByte(string(raw), ')')
	if idx < 0 || idx+2 >= len(raw) {
		return s, fmt.Errorf("unexpected format in %s", statPath)
	}
	fields := strings.Fields(string(raw[idx+2:]))
	// fields[0] is state (index 2 overall); utime is field index 11 (0-based)
	// relative to this slice, stime is 12, num_threads is 17.
	const (
		utimeIdx      = 11
		stimeIdx      = 12
		numThreadsIdx = 17
	)
	if len(fields) <= numThreadsIdx {
		return s, fmt.Errorf("unexpected field count in %s", statPath)
	}
	utime, _ := strconv.ParseUint(fields[utimeIdx], 10, 64)
	stime, _ := strconv.ParseUint(fields[stimeIdx], 10, 64)
	s.cpuTicks = utime + stime
	s.numThreads, _ = strconv.Atoi(fields[numThreadsIdx])

	ioPath := fmt.Sprintf("/proc/%d/io", pid)
	if f, err := os.Open(ioPath); err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		var readBytes, writeBytes uint64
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "read_bytes:"):
				readBytes, _ = strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "read_bytes:")), 10, 64)
			case strings.HasPrefix(line, "write_bytes:"):
				writeBytes, _ = strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, "write_bytes:")), 10, 64)
			}
		}
		s.ioBytes = readBytes + writeBytes
	}
	// /proc/<pid>/io may be unreadable under restrictive container
	// policies; a zero delta there still lets CPU/memory reporting proceed.

	// /proc/<pid>/net/dev reports the pod network namespace's interface
	// counters, which for a single-container pod approximates the borg
	// child's own traffic. Unreadable or absent counters leave the delta
	// at zero.
	netPath := fmt.Sprintf("/proc/%d/net/dev", pid)
	if f, err := os.Open(netPath); err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		var total uint64
		for scanner.Scan() {
			line := scanner.Text()
			colon := strings.IndexByte(line, ':')
			if colon < 0 {
				continue
			}
			fields := strings.Fields(line[colon+1:])
			if len(fields) < 9 {
				continue
			}
			rx, _ := strconv.ParseUint(fields[0], 10, 64)
			tx, _ := strconv.ParseUint(fields[8], 10, 64)
			total += rx + tx
		}
		s.netBytes = total
	}

	statusPath := fmt.Sprintf("/proc/%d/status", pid)
	if f, err := os.Open(statusPath); err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "VmRSS:") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					kb, _ := strconv.ParseUint(fields[1], 10, 64)
					s.rssBytes = kb * 1024
				}
				break
			}
		}
	}

	return s, nil
}

func processAlive(pid int) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil
}

// Heartbeat prints a progress line every 60s while pid is alive, reporting
// CPU, I/O, and network deltas since the previous tick and current
// resident memory. It returns when stop is closed or the process exits.
func Heartbeat(pid int, stop <-chan struct{}) {
	baseline, err := readProcStats(pid)
	if err != nil {
		slog.Warn("heartbeat: failed to read baseline process stats", "pid", pid, "err", err)
		return
	}
	slog.Info("heartbeat baseline", "threads", baseline.numThreads, "memoryMB", baseline.rssBytes/(1024*1024))

	prev := baseline
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !processAlive(pid) {
				return
			}
			cur, err := readProcStats(pid)
			if err != nil {
				return
			}
			cpuDeltaSec := float64(cur.cpuTicks-prev.cpuTicks) / float64(clockTicksPerSec)
			ioDeltaMB := float64(cur.ioBytes-prev.ioBytes) / (1024 * 1024)
			netDeltaMB := float64(cur.netBytes-prev.netBytes) / (1024 * 1024)
			prev = cur
			slog.Info("heartbeat",
				"status", "active",
				"cpuDeltaSeconds", cpuDeltaSec,
				"ioDeltaMB", ioDeltaMB,
				"netDeltaMB", netDeltaMB,
				"memoryMB", cur.rssBytes/(1024*1024),
			)
		}
	}
}
