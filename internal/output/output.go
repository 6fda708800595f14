package output

import (
	"fmt"
	"strings"
	"time"
)

const bannerWidth = 60

// Banner prints a prominent section header.
func Banner(title string) {
	line := strings.Repeat("=", bannerWidth)
	fmt.Println()
	fmt.Println(line)
	fmt.Printf("  %s\n", title)
	fmt.Println(line)
	fmt.Println()
}

// Header prints a formatted header line for a kbbctl invocation.
func Header(mode, appName, namespace string) {
	fmt.Printf("=== kube-borg-backup / %s ===\n", mode)
	fmt.Printf("App: %s\n", appName)
	fmt.Printf("Namespace: %s\n", namespace)
	fmt.Printf("Timestamp: %s\n", time.Now().UTC().Format(time.RFC3339))
}

// Section prints a subsection divider.
func Section(title string) {
	fmt.Printf("--- %s ---\n", title)
}

// Field prints a labeled value.
func Field(label, value string) {
	fmt.Printf("%s: %s\n", label, value)
}

// Bullet prints a bulleted item with optional indentation.
func Bullet(indent int, format string, args ...any) {
	prefix := strings.Repeat("  ", indent)
	fmt.Printf("%s- %s\n", prefix, fmt.Sprintf(format, args...))
}

// Info prints an informational line prefixed with >> (recommendation style).
func Info(format string, args ...any) {
	fmt.Printf("  >> %s\n", fmt.Sprintf(format, args...))
}

// Success prints a success message.
func Success(format string, args ...any) {
	fmt.Printf("[OK] %s\n", fmt.Sprintf(format, args...))
}

// Warn prints a warning message to stdout.
func Warn(format string, args ...any) {
	fmt.Printf("[WARN] %s\n", fmt.Sprintf(format, args...))
}

// Fail prints a failure message to stdout.
func Fail(format string, args ...any) {
	fmt.Printf("[FAIL] %s\n", fmt.Sprintf(format, args...))
}

// Complete prints a completion message.
func Complete(msg string) {
	fmt.Printf("=== %s ===\n", msg)
}

// Table prints a left-aligned column table: headers, then one row per
// entry, columns padded to the widest value seen in that column.
func Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		fmt.Println(strings.Join(parts, "  "))
	}

	printRow(headers)
	sep := make([]string, len(headers))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	printRow(sep)
	for _, row := range rows {
		printRow(row)
	}
}

// FormatBytes returns a human-readable byte size.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
