package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Quality policy kinds
const (
	QualityBest = iota
	QualityFast
	QualityExplicit
)

const DefaultQuality = "best"

type QualityPolicy struct {
	Kind  int
	Label string
}

// A single quality variant from the variant index
type Variant struct {
	Height int
	URL    string
}

/*
Ordered height -> variant URL table.
Heights are unique, a repeated height replaces the URL in place.
*/
type Manifest struct {
	Variants []Variant
}

func (v Variant) Label() string {
	return fmt.Sprintf("%dp", v.Height)
}

// Add a variant, replacing the URL if the height is already known
func (m *Manifest) Add(height int, variantURL string) {
	for i := range m.Variants {
		if m.Variants[i].Height == height {
			m.Variants[i].URL = variantURL
			return
		}
	}

	m.Variants = append(m.Variants, Variant{Height: height, URL: variantURL})
}

func (m *Manifest) Labels() []string {
	labels := make([]string, 0, len(m.Variants))
	for _, v := range m.Variants {
		labels = append(labels, v.Label())
	}

	return labels
}

func ParseQualityPolicy(s string) QualityPolicy {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "", "best":
		return QualityPolicy{Kind: QualityBest}
	case "fast", "worst":
		return QualityPolicy{Kind: QualityFast}
	}

	if _, err := strconv.Atoi(s); err == nil {
		s += "p"
	}

	return QualityPolicy{Kind: QualityExplicit, Label: s}
}

func (q QualityPolicy) String() string {
	switch q.Kind {
	case QualityBest:
		return "best"
	case QualityFast:
		return "fast"
	}

	return q.Label
}

/*
Parse the numeric height from a label such as "1080p", "720p60" or
"1080,FRAME-RATE=30". Everything from the first non-digit is ignored.
*/
func ParseHeight(label string) (int, error) {
	label = strings.TrimSpace(label)
	end := 0

	for end < len(label) && label[end] >= '0' && label[end] <= '9' {
		end += 1
	}

	if end == 0 {
		return 0, fmt.Errorf("no height in quality label '%s'", label)
	}

	return strconv.Atoi(label[:end])
}

// Pick the variant matching the policy
func SelectQuality(policy QualityPolicy, m Manifest) (Variant, error) {
	var sel Variant

	if len(m.Variants) == 0 {
		return sel, fmt.Errorf("%w: no variants available", ErrMalformedManifest)
	}

	switch policy.Kind {
	case QualityBest:
		sel = m.Variants[0]
		for _, v := range m.Variants[1:] {
			if v.Height > sel.Height {
				sel = v
			}
		}
	case QualityFast:
		sel = m.Variants[0]
		for _, v := range m.Variants[1:] {
			if v.Height < sel.Height {
				sel = v
			}
		}
	default:
		height, err := ParseHeight(policy.Label)
		if err != nil {
			return sel, fmt.Errorf("%w: %s", ErrUnknownQuality, policy.Label)
		}

		for _, v := range m.Variants {
			if v.Height == height {
				return v, nil
			}
		}

		return sel, fmt.Errorf("%w: %s (available: %s)", ErrUnknownQuality, policy.Label, strings.Join(m.Labels(), ", "))
	}

	return sel, nil
}

/*
Candidate variants in order of preference.
Only the best policy falls back to lower qualities.
*/
func QualityLadder(policy QualityPolicy, m Manifest) ([]Variant, error) {
	if policy.Kind != QualityBest {
		v, err := SelectQuality(policy, m)
		if err != nil {
			return nil, err
		}

		return []Variant{v}, nil
	}

	if len(m.Variants) == 0 {
		return nil, fmt.Errorf("%w: no variants available", ErrMalformedManifest)
	}

	ladder := make([]Variant, len(m.Variants))
	copy(ladder, m.Variants)
	sort.SliceStable(ladder, func(i, j int) bool {
		return ladder[i].Height > ladder[j].Height
	})

	return ladder, nil
}
