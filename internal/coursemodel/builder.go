package coursemodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	appErrors "github.com/noah-isme/mooc-session-miner/pkg/errors"
)

// ErrMissingRoot is returned when the structure has no block of category "course".
var ErrMissingRoot = errors.New("course structure has no course block")

// Block is one entry of a course structure document.
type Block struct {
	Category string        `json:"category"`
	Metadata BlockMetadata `json:"metadata"`
	Children []string      `json:"children"`
}

// BlockMetadata carries the optional block attributes used by the model.
type BlockMetadata struct {
	DisplayName *string  `json:"display_name,omitempty"`
	Start       string   `json:"start,omitempty"`
	End         string   `json:"end,omitempty"`
	Due         string   `json:"due,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp shapes found in course exports and event logs.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

// Parse decodes a course structure document and builds its Model.
func Parse(r io.Reader) (*Model, error) {
	var blocks map[string]Block
	if err := json.NewDecoder(r).Decode(&blocks); err != nil {
		return nil, fmt.Errorf("decode course structure: %w", err)
	}
	return Build(blocks)
}

// Build flattens the block tree. Elements without an explicit start inherit the
// start of their nearest ancestor that has one.
func Build(blocks map[string]Block) (*Model, error) {
	m := &Model{
		childParent:      make(map[string]string),
		order:            make(map[string]int),
		elementType:      make(map[string]string),
		elementStart:     make(map[string]time.Time),
		elementDue:       make(map[string]time.Time),
		quizWeight:       make(map[string]float64),
		blockDisplayName: make(map[string]string),
		elementName:      make(map[string]string),
		shortIDs:         make(map[string]string),
	}

	// map iteration order is random; sorting keeps child ordinals and
	// duplicate-child resolution reproducible
	ids := make([]string, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rootFound := false
	var withoutStart []string
	for _, id := range ids {
		block := blocks[id]

		for i, child := range block.Children {
			m.childParent[child] = id
			m.order[child] = i + 1
		}
		m.elementType[id] = block.Category
		if idx := strings.LastIndex(id, "@"); idx >= 0 && idx < len(id)-1 {
			m.shortIDs[id[idx+1:]] = id
		}

		start, hasStart := parseOptional(block.Metadata.Start)
		switch {
		case hasStart:
			m.elementStart[id] = start
		case block.Category == "course":
			// the root terminates every inheritance chain, with or without a start
			m.elementStart[id] = time.Time{}
		default:
			withoutStart = append(withoutStart, id)
		}

		if block.Category == "course" {
			rootFound = true
			m.courseID = NormalizeCourseID(id)
			if block.Metadata.DisplayName != nil {
				m.courseName = *block.Metadata.DisplayName
			}
			m.start = start
			m.end, _ = parseOptional(block.Metadata.End)
			continue
		}

		if block.Metadata.DisplayName != nil {
			m.elementName[id] = *block.Metadata.DisplayName
		}
		if due, ok := parseOptional(block.Metadata.Due); ok {
			m.elementDue[id] = due
		}
		switch block.Category {
		case "problem":
			weight := 1.0
			if block.Metadata.Weight != nil {
				weight = *block.Metadata.Weight
			}
			m.quizWeight[id] = weight
		case "sequential":
			if block.Metadata.DisplayName != nil {
				m.blockDisplayName[id] = *block.Metadata.DisplayName
			}
		}
	}

	if !rootFound {
		return nil, fmt.Errorf("%w: %w", appErrors.ErrMalformedCourseTree, ErrMissingRoot)
	}

	for _, id := range withoutStart {
		if err := m.inheritStart(id); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// inheritStart walks the parent chain of id until an element with a resolved
// start is found, then assigns that start to every element on the walked chain.
func (m *Model) inheritStart(id string) error {
	if _, ok := m.elementStart[id]; ok {
		return nil
	}

	chain := []string{id}
	onChain := map[string]struct{}{id: {}}
	current := id
	for {
		parent, ok := m.childParent[current]
		if !ok {
			return appErrors.Wrapf(appErrors.ErrMalformedCourseTree, nil, "element %s has no ancestor with a start", id)
		}
		if start, resolved := m.elementStart[parent]; resolved {
			for _, el := range chain {
				m.elementStart[el] = start
			}
			return nil
		}
		if _, loop := onChain[parent]; loop {
			return appErrors.Wrapf(appErrors.ErrMalformedCourseTree, nil, "cycle through %s", parent)
		}
		onChain[parent] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
}

// NormalizeCourseID maps the root block id onto the canonical course id.
func NormalizeCourseID(id string) string {
	if strings.HasPrefix(id, "block-") {
		id = strings.Replace(id, "block-", "course-", 1)
		id = strings.Replace(id, "+type@course+block@course", "", 1)
	}
	if strings.HasPrefix(id, "i4x://") {
		id = strings.Replace(id, "i4x://", "", 1)
		id = strings.Replace(id, "course/", "", 1)
	}
	return id
}

func parseOptional(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	t, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
