package project

import (
	"regexp"
)

// regexpReplace expands template for each match of pat in source, up to limit matches
// when limit is positive. It also reports how many matches were replaced.
func regexpReplace(source []byte, pat *regexp.Regexp, template string, limit int) ([]byte, int) {
	var (
		cur int
		res []byte
	)
	n := -1
	if limit > 0 {
		n = limit
	}
	matches := pat.FindAllSubmatchIndex(source, n)
	for _, m := range matches {
		res = append(res, source[cur:m[0]]...)
		res = pat.Expand(res, []byte(template), source, m)
		cur = m[1]
	}
	res = append(res, source[cur:]...)
	return res, len(matches)
}
