// Package render composes the current image onto a raster surface.
//
// The Compositor is the only writer of its Surface. Every change to the
// image, the view transform or the optimized flag marks the surface dirty;
// Run redraws dirty surfaces at most 60 times a second, or 30 in optimized
// mode, so a burst of changes collapses into a leading draw and a trailing
// one. A draw clears the surface, moves the origin to the surface center
// plus the pan offset, scales by the zoom, applies the brightness and
// contrast filter and draws the image centered on the origin.
//
// GGSurface implements Surface on a gogpu/gg context.
package render
