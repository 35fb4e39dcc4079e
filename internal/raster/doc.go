// Package raster implements the pixel-level compositing primitives used by
// every applet: a fixed 320x240 RGB565 canvas, alpha blending, image copies
// with bicubic resizing, and single-line or wrapped text rendering.
//
// A Canvas has exactly one writer. Applets draw into their own canvas and
// publish immutable copies of its bytes as snapshots.
package raster
