package date

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ParseMonths accepts "1-6", "01-06", "1,2,3" or "01,02,03" and returns the selected
// months in ascending order without repeats.
func ParseMonths(input string) ([]time.Month, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("no months given")
	}

	if start, end, isRange := strings.Cut(input, "-"); isRange {
		from, err := parseMonth(start)
		if err != nil {
			return nil, errors.Wrap(err, "invalid month range, example: 1-6 or 01-06")
		}
		to, err := parseMonth(end)
		if err != nil {
			return nil, errors.Wrap(err, "invalid month range, example: 1-6 or 01-06")
		}
		if from > to {
			return nil, errors.Errorf("invalid month range '%s': start is after end", input)
		}

		out := make([]time.Month, 0, to-from+1)
		for m := from; m <= to; m++ {
			out = append(out, m)
		}
		return out, nil
	}

	var out []time.Month
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := parseMonth(part)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("no months in '%s'", input)
	}

	out = lo.Uniq(out)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func parseMonth(s string) (time.Month, error) {
	s = strings.TrimSpace(s)
	m, err := strconv.Atoi(s)
	if err != nil || m < 1 || m > 12 {
		return 0, errors.Errorf("invalid month: '%s'", s)
	}
	return time.Month(m), nil
}

// Window is the bounded span of input one merge run covers: a set of months of one year.
type Window struct {
	Year   int
	Months []time.Month
}

// ChunkMonths splits the selected months of a year into windows of at most size months.
func ChunkMonths(year int, months []time.Month, size int) []Window {
	if size <= 0 {
		size = len(months)
	}
	if len(months) == 0 {
		return nil
	}

	return lo.Map(lo.Chunk(months, size), func(chunk []time.Month, _ int) Window {
		return Window{Year: year, Months: chunk}
	})
}

func (w Window) String() string {
	switch len(w.Months) {
	case 0:
		return strconv.Itoa(w.Year)
	case 1:
		return fmt.Sprintf("%04d-%02d", w.Year, int(w.Months[0]))
	}

	names := lo.Map(w.Months, func(m time.Month, _ int) string {
		return fmt.Sprintf("%02d", int(m))
	})
	return fmt.Sprintf("%04d-{%s}", w.Year, strings.Join(names, ","))
}
