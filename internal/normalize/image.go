package normalize

import "strings"

// PlaceholderImage is served when an item has no usable image.
const PlaceholderImage = "/images/placeholder.png"

// ImageResolver qualifies relative image paths against the API origin.
type ImageResolver struct {
	origin string
}

func NewImageResolver(origin string) ImageResolver {
	return ImageResolver{origin: strings.TrimRight(strings.TrimSpace(origin), "/")}
}

// Resolve returns path unchanged when it is absolute, protocol-relative, a data
// URI, or the placeholder; otherwise it is joined to the configured origin.
func (r ImageResolver) Resolve(path string) string {
	trimmed := strings.TrimSpace(path)
	switch {
	case trimmed == "":
		return PlaceholderImage
	case trimmed == PlaceholderImage,
		strings.HasPrefix(trimmed, "//"),
		strings.HasPrefix(trimmed, "data:"),
		hasHTTPScheme(trimmed):
		return trimmed
	case r.origin == "":
		return trimmed
	}
	return r.origin + "/" + strings.TrimLeft(trimmed, "/")
}

func hasHTTPScheme(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// pickImage returns the primary image URL, else the first non-empty one.
func pickImage(images []Image) string {
	for _, img := range images {
		if img.IsPrimary && strings.TrimSpace(img.URL) != "" {
			return img.URL
		}
	}
	for _, img := range images {
		if strings.TrimSpace(img.URL) != "" {
			return img.URL
		}
	}
	return ""
}
