// Package matcher decides which paths of a watch root take part in sync.
package matcher

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"relaysync/internal/config"
	"relaysync/internal/model"
)

type Matcher struct {
	match        []*regexp.Regexp
	ignore       []*regexp.Regexp
	ignoreHidden bool
	byEvent      map[model.EventKind][]*regexp.Regexp
}

func New(rule config.WatchRule) (*Matcher, error) {
	match, err := compileAll(rule.Match)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern: %w", err)
	}

	ignore, err := compileAll(rule.Ignore)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}

	byEvent := make(map[model.EventKind][]*regexp.Regexp, len(rule.IgnoreWithEventType))
	for name, patterns := range rule.IgnoreWithEventType {
		kind, err := model.ParseEventKind(name)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore_with_event_type key: %w", err)
		}

		compiled, err := compileAll(patterns)
		if err != nil {
			return nil, fmt.Errorf("invalid %s ignore pattern: %w", kind, err)
		}
		byEvent[kind] = compiled
	}

	return &Matcher{
		match:        match,
		ignore:       ignore,
		ignoreHidden: rule.IgnoreHidden,
		byEvent:      byEvent,
	}, nil
}

// ShouldSkip reports whether p is excluded from sync. The match list is an
// allow-list: when no pattern matches, including when the list is empty, the
// path is skipped, directories included.
func (m *Matcher) ShouldSkip(p string) bool {
	if m.ShouldPrune(p) {
		return true
	}

	return !anyMatch(m.match, p)
}

// ShouldPrune reports whether a walk should not descend into directory p.
// Only the hidden and ignore rules apply, so files deeper down can still match.
func (m *Matcher) ShouldPrune(p string) bool {
	if m.ignoreHidden && isHidden(p) {
		return true
	}

	return anyMatch(m.ignore, p)
}

// ShouldSkipForEvent reports whether the patterns configured for kind exclude
// relPath. Only the per-event list is consulted.
func (m *Matcher) ShouldSkipForEvent(kind model.EventKind, relPath string) bool {
	return anyMatch(m.byEvent[kind], relPath)
}

func isHidden(p string) bool {
	for _, part := range strings.Split(path.Clean("/"+p), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}

	return false
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}

	return false
}

// compileAll anchors every pattern at the start of the input.
func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}

	return compiled, nil
}
