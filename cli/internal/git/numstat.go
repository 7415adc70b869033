package git

import (
	"bufio"
	"strconv"
	"strings"

	"codexreview/cli/internal/erruser"
)

// NumstatLines returns the total of added plus deleted lines in the working
// tree and index relative to HEAD ("git diff HEAD --numstat"). Binary files,
// reported as "-", are skipped. In a repository without commits the staged
// and unstaged diffs are summed instead. Untracked files are not counted.
func NumstatLines(repoRoot string) (int, error) {
	if HasHead(repoRoot) {
		out, err := output(repoRoot, "diff", "HEAD", "--numstat")
		if err != nil {
			return 0, erruser.New("Could not compute changed lines.", err)
		}
		return SumNumstat(out), nil
	}
	staged, err := output(repoRoot, "diff", "--cached", "--numstat")
	if err != nil {
		return 0, erruser.New("Could not compute changed lines.", err)
	}
	unstaged, err := output(repoRoot, "diff", "--numstat")
	if err != nil {
		return 0, erruser.New("Could not compute changed lines.", err)
	}
	return SumNumstat(staged) + SumNumstat(unstaged), nil
}

// SumNumstat sums the added and deleted columns of --numstat output.
// Malformed lines and binary entries are ignored.
func SumNumstat(out string) int {
	total := 0
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		added, err1 := strconv.Atoi(fields[0])
		deleted, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		total += added + deleted
	}
	return total
}
