package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/grafov/m3u8"
)

const (
	resolutionKey   = "RESOLUTION="
	hlsHeader       = "#EXTM3U"
	hlsStreamInfTag = "#EXT-X-STREAM-INF"
	hlsSegmentTag   = "#EXTINF"
)

var fragmentUrlPattern = regexp.MustCompile(`[?&]url=(\S+)`)

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}

	return lines
}

// Height part of a WIDTHxHEIGHT resolution value
func heightFromResolution(res string) (int, error) {
	xIdx := strings.IndexAny(res, "xX")
	if xIdx < 0 {
		return 0, fmt.Errorf("resolution '%s' has no height", res)
	}

	return ParseHeight(res[xIdx+1:])
}

/*
Parse the variant index into a height -> URL table.
Well-formed HLS master playlists go through the m3u8 decoder, anything else
is scanned line by line for RESOLUTION= entries followed by a URL line.
*/
func ParseVariants(text string) (Manifest, error) {
	var m Manifest

	if strings.Contains(text, hlsStreamInfTag) {
		m = decodeMasterPlaylist(text)
		if len(m.Variants) > 0 {
			return m, nil
		}

		LogDebug("Master playlist decode found no variants, falling back to line scan")
	}

	m = scanVariants(text)
	if len(m.Variants) == 0 {
		return m, fmt.Errorf("%w: no RESOLUTION entries found", ErrMalformedManifest)
	}

	return m, nil
}

func decodeMasterPlaylist(text string) Manifest {
	var m Manifest

	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		LogDebug("Error decoding master playlist: %s", err)
		return m
	}

	if listType != m3u8.MASTER {
		return m
	}

	master, ok := pl.(*m3u8.MasterPlaylist)
	if !ok {
		return m
	}

	for _, v := range master.Variants {
		if v == nil || len(v.URI) == 0 || len(v.Resolution) == 0 {
			continue
		}

		height, err := heightFromResolution(v.Resolution)
		if err != nil {
			LogDebug("Skipping variant %s: %s", v.URI, err)
			continue
		}

		m.Add(height, v.URI)
	}

	return m
}

func scanVariants(text string) Manifest {
	var m Manifest
	pending := -1

	for _, line := range splitLines(text) {
		if len(line) == 0 {
			continue
		}

		if idx := strings.Index(line, resolutionKey); idx >= 0 {
			res := line[idx+len(resolutionKey):]
			height, err := heightFromResolution(res)
			if err != nil {
				LogDebug("Skipping resolution line '%s': %s", line, err)
				pending = -1
				continue
			}

			pending = height
			continue
		}

		if strings.HasPrefix(line, "#") || pending < 0 {
			continue
		}

		m.Add(pending, line)
		pending = -1
	}

	return m
}

/*
Parse the chosen variant's index into the ordered fragment URL list.
Lines carrying a url= parameter win. A plain HLS media playlist is used as is
when there are none.
*/
func ParseFragments(text string) ([]string, error) {
	var frags []string
	lines := splitLines(text)

	for _, line := range lines {
		match := fragmentUrlPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		frags = append(frags, unescapeFragmentUrl(match[1]))
	}

	if len(frags) == 0 && strings.HasPrefix(strings.TrimSpace(text), hlsHeader) && strings.Contains(text, hlsSegmentTag) {
		for _, line := range lines {
			if len(line) == 0 || strings.HasPrefix(line, "#") {
				continue
			}

			frags = append(frags, line)
		}
	}

	if len(frags) == 0 {
		return nil, ErrEmptyFragmentList
	}

	return frags, nil
}

func unescapeFragmentUrl(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}

	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}

	return unescaped
}

// Resolve ref against base, leaving ref untouched if either does not parse
func ResolveReference(base, ref string) string {
	baseUrl, err := url.Parse(base)
	if err != nil || len(base) == 0 {
		return ref
	}

	refUrl, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	return baseUrl.ResolveReference(refUrl).String()
}
