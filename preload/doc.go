// Package preload warms the images around the current slice of a study.
//
// When the current index changes, the Preloader schedules loads for the
// neighbouring indices, nearest first. Distance 1 is high priority,
// distance 2 medium, anything farther low. High and medium work starts at
// once; low work waits on an IdleScheduler until the foreground work has
// settled. Concurrent requests for the same index share one load.
package preload
