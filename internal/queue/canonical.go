package queue

import (
	"net/url"
	"strings"
)

// CanonicalURL rewrites the common YouTube link shapes to the plain watch
// URL so the same video is recognised regardless of how it was pasted.
// Anything else is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.ToLower(u.Host)
	var id string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		id = firstSegment(u.Path)
	case strings.Contains(host, "youtube.com"):
		path := strings.TrimSuffix(u.Path, "/")
		switch {
		case u.Query().Get("v") != "":
			id = u.Query().Get("v")
		case strings.HasPrefix(path, "/shorts/"):
			id = firstSegment(strings.TrimPrefix(path, "/shorts"))
		case strings.HasPrefix(path, "/live/"):
			id = firstSegment(strings.TrimPrefix(path, "/live"))
		case strings.HasPrefix(path, "/embed/"):
			id = firstSegment(strings.TrimPrefix(path, "/embed"))
		}
	}
	if id == "" {
		return raw
	}
	return "https://www.youtube.com/watch?v=" + id
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
