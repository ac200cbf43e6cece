package plan

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	refreshMarker   = ": Refreshing state..."
	noChangesMarker = "No changes."
)

var summaryPattern = regexp.MustCompile(`Plan: (\d+) to add, (\d+) to change, (\d+) to destroy\.`)

// Counts is what the parser recovers from plan stdout.
type Counts struct {
	ResourcesRefreshed int
	Add                int
	Change             int
	Destroy            int
	SummaryFound       bool
	// NoChangesFound is set when the tool printed its explicit no-op line.
	NoChangesFound bool
}

func (c Counts) Total() int {
	return c.Add + c.Change + c.Destroy
}

// ParseOutput scans plan stdout line by line, with no limit on line length.
// It never fails: a missing summary leaves all pending counts at zero.
func ParseOutput(stdout string) Counts {
	var c Counts
	for _, line := range strings.Split(stdout, "\n") {
		if strings.Contains(line, refreshMarker) {
			c.ResourcesRefreshed++
		}
		if strings.Contains(line, noChangesMarker) {
			c.NoChangesFound = true
		}
		if c.SummaryFound {
			continue
		}
		if m := summaryPattern.FindStringSubmatch(line); m != nil {
			c.Add = atoi(m[1])
			c.Change = atoi(m[2])
			c.Destroy = atoi(m[3])
			c.SummaryFound = true
		}
	}
	return c
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
