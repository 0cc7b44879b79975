// Package rle parses the Life RLE pattern file format into a
// pattern.Pattern. This host-side collaborator is pure data
// transformation rather than rendering or CLI plumbing, so it is
// implemented here to give the `presets PATH` CLI surface something real
// to load; scanning the presets directory lives in internal/presets, and
// there is no renderer.
package rle

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/octolife/octolife/internal/life"
	"github.com/octolife/octolife/internal/pattern"
)

// Parse reads one RLE document from r: `#N name` header lines, an
// `x = W, y = H` dimension line, then runs of b/o/$ terminated by `!`.
// Offsets come back centered on the pattern's bounding box with the row
// axis flipped.
func Parse(r io.Reader) (pattern.Pattern, error) {
	scanner := bufio.NewScanner(r)
	name := "unnamed"
	width, height := 0, 0
	haveHeader := false
	var body strings.Builder

loop:
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if len(line) > 1 && (line[1] == 'N' || line[1] == 'n') {
				name = strings.TrimSpace(line[2:])
			}
			continue
		}
		if !haveHeader && strings.Contains(line, "=") {
			w, h, err := parseHeader(line)
			if err != nil {
				return pattern.Pattern{}, err
			}
			width, height = w, h
			haveHeader = true
			continue
		}
		body.WriteString(line)
		if strings.ContainsRune(line, '!') {
			break loop
		}
	}
	if err := scanner.Err(); err != nil {
		return pattern.Pattern{}, fmt.Errorf("rle: scanning: %w", err)
	}
	if !haveHeader {
		return pattern.Pattern{}, fmt.Errorf("rle: missing x/y header line")
	}

	cells, err := parseBody(body.String())
	if err != nil {
		return pattern.Pattern{}, err
	}

	return pattern.Pattern{Name: name, Offsets: normalize(cells, width, height)}, nil
}

type rawCell struct {
	col, row int
}

func parseHeader(line string) (width, height int, err error) {
	for _, part := range strings.Split(line, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		switch key {
		case "x":
			width, err = strconv.Atoi(val)
			if err != nil {
				return 0, 0, fmt.Errorf("rle: bad x value %q: %w", val, err)
			}
		case "y":
			height, err = strconv.Atoi(val)
			if err != nil {
				return 0, 0, fmt.Errorf("rle: bad y value %q: %w", val, err)
			}
		}
	}
	if width == 0 || height == 0 {
		return 0, 0, fmt.Errorf("rle: header missing x or y dimension: %q", line)
	}
	return width, height, nil
}

func parseBody(body string) ([]rawCell, error) {
	var cells []rawCell
	col, row := 0, 0
	count := 0

	for _, r := range body {
		switch {
		case r >= '0' && r <= '9':
			count = count*10 + int(r-'0')
		case r == 'b':
			if count == 0 {
				count = 1
			}
			col += count
			count = 0
		case r == 'o':
			if count == 0 {
				count = 1
			}
			for i := 0; i < count; i++ {
				cells = append(cells, rawCell{col: col + i, row: row})
			}
			col += count
			count = 0
		case r == '$':
			if count == 0 {
				count = 1
			}
			row += count
			col = 0
			count = 0
		case r == '!':
			return cells, nil
		default:
			return nil, fmt.Errorf("rle: unexpected token %q", r)
		}
	}
	return nil, fmt.Errorf("rle: body missing terminating '!'")
}

func normalize(cells []rawCell, width, height int) []life.Cell {
	offsets := make([]life.Cell, 0, len(cells))
	for _, c := range cells {
		flippedRow := height - 1 - c.row
		offsets = append(offsets, life.Cell{
			X: int32(c.col - width/2),
			Y: int32(flippedRow - height/2),
		})
	}
	return offsets
}
