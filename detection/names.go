package detection

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadNames reads a class list with one name per line. Blank lines and lines
// starting with '#' are ignored. An empty path yields DefaultClassNames.
func LoadNames(path string) (map[int]string, error) {
	if path == "" {
		return NamesFromList(DefaultClassNames), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open class names file '%s': %w", path, err)
	}
	defer f.Close()

	var list []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class names file '%s': %w", path, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("class names file '%s' is empty", path)
	}
	return NamesFromList(list), nil
}

// FormatNames renders a names map as "0:crack 1:stain" for log lines.
func FormatNames(names map[int]string) string {
	parts := make([]string, 0, len(names))
	for _, i := range sortedIndices(names) {
		parts = append(parts, fmt.Sprintf("%d:%s", i, names[i]))
	}
	return strings.Join(parts, " ")
}
