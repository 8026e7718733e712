package simplevideo

import (
	"net/url"
	"path"
	"strings"
)

// TitleFromURL derives a display title from the last path segment of a URL:
// the extension is dropped, underscores and hyphens become spaces, and runs of
// whitespace collapse. DefaultTitle is returned when nothing usable remains.
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return DefaultTitle
	}
	return TitleFromFilename(path.Base(strings.TrimRight(u.Path, "/")))
}

// TitleFromFilename applies the TitleFromURL rules to a bare filename.
func TitleFromFilename(name string) string {
	if name == "" || name == "." || name == "/" {
		return DefaultTitle
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	title := strings.Join(strings.Fields(name), " ")
	if title == "" {
		return DefaultTitle
	}
	return title
}

// formatFromContentType returns the subtype of a MIME type ("video/mp4" -> "mp4").
func formatFromContentType(contentType string) string {
	ct := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if _, sub, ok := strings.Cut(ct, "/"); ok && sub != "" {
		return sub
	}
	if ct == "" {
		return "mp4"
	}
	return ct
}
