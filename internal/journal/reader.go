package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ReadSince streams records whose trigger.fire_time is at or after since,
// for the `dump-journal --since <ts>` CLI command. Records are yielded in
// file order, which is completion order (spec.md §8).
func ReadSince(path string, since time.Time) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("journal: malformed record: %w", err)
		}
		fireTime, err := time.Parse(time.RFC3339, r.Trigger.FireTime)
		if err != nil {
			continue
		}
		if !fireTime.Before(since) {
			out = append(out, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", path, err)
	}
	return out, nil
}
