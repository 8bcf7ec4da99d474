// Package stackview is the core of an interactive viewer for stacks of
// medical images, such as the slices of a CT study.
//
// # Overview
//
// A [Viewer] shows one image of a [Study] at a time and lets the user
// navigate, pan, zoom and adjust brightness and contrast. Behind it:
//
//   - cache: a size-bounded, age-bounded store of image bytes that
//     survives restarts when backed by leveldb or redis
//   - loader: fetching, decoding and progressive loading of image tiers
//   - preload: prioritised background loading of neighbouring images
//   - render: a throttled compositor drawing into a gg surface
//   - gesture: the pointer and pinch state machine
//   - telemetry and adaptive: performance sampling and the switch to a
//     cheaper rendering mode on slow devices
//
// # Quick Start
//
//	study, err := stackview.LoadStudy("study.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := stackview.Open(ctx, study, stackview.WithSize(800, 800))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Close()
//
//	v.Next()
//	v.ApplyPreset("lung")
//	_ = v.Wait(ctx)
//	img := v.Snapshot()
//
// # Logging
//
// stackview is silent by default. Use [SetLogger] or [WithLogger] to
// enable structured logging with log/slog. Every record of a viewer
// carries its session id.
//
// # Coordinates
//
// Pan offsets are in surface pixels, measured from the surface center.
// Zoom 1 draws the image at its natural size.
package stackview
