package resolution

import (
	"net/url"
	"strings"
)

// UniqueURLs builds one human-distinguishable label per (url, id) pair:
// the bare hostname when no other URL shares it, the URL itself when the
// URL is unique but its hostname is not, and "url: id" when the same URL
// appears more than once.
func UniqueURLs(urls, ids []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		id := ""
		if i < len(ids) {
			id = ids[i]
		}
		if count(urls, u) == 1 || id == "" {
			if h := Hostname(u); h != "" && countHosts(urls, h) < 2 {
				out[i] = h
			} else {
				out[i] = u
			}
			continue
		}
		out[i] = u + ": " + id
	}
	return out
}

// Hostname returns the lower-cased host of raw without a leading "www.".
// raw may omit the scheme.
func Hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return ""
		}
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func count(values []string, v string) int {
	n := 0
	for _, x := range values {
		if x == v {
			n++
		}
	}
	return n
}

func countHosts(urls []string, host string) int {
	n := 0
	for _, u := range urls {
		if Hostname(u) == host {
			n++
		}
	}
	return n
}
