// Package prompt builds the text payload sent to the vision-language model.
package prompt

import "strings"

// ImageMarker is the Llama 3.2 Vision placeholder announcing that an image
// accompanies the text.
const ImageMarker = "<|image|>"

// Formatter prepends Marker to the user's text when an image is attached.
type Formatter struct {
	Marker string
}

// NewFormatter returns a Formatter using marker, or ImageMarker when marker is empty.
func NewFormatter(marker string) Formatter {
	if marker == "" {
		marker = ImageMarker
	}
	return Formatter{Marker: marker}
}

// Format returns the exact payload the model expects for one turn.
func (f Formatter) Format(text string, hasImage bool) string {
	if !hasImage {
		return text
	}
	marker := f.Marker
	if marker == "" {
		marker = ImageMarker
	}
	return marker + text
}

// Format formats text with the default marker.
func Format(text string, hasImage bool) string {
	return Formatter{Marker: ImageMarker}.Format(text, hasImage)
}

// HasMarker reports whether s starts with the default image marker.
func HasMarker(s string) bool {
	return strings.HasPrefix(s, ImageMarker)
}

// StripMarker removes every occurrence of the default image marker. Backends
// that carry the image as a structured message part use it.
func StripMarker(s string) string {
	return strings.ReplaceAll(s, ImageMarker, "")
}
