// Package filter implements the color matrices behind the viewer's
// brightness and contrast levels.
package filter
