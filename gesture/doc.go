// Package gesture turns pointer input into view transform changes.
//
// Transition is a pure function from (State, Event, Tool) to a new State
// and an Effect describing what the event asks of the view: a pan, a zoom
// scale, a windowing shift or a reset. Machine serializes events, applies
// effects to a view.Transform and reports the result.
//
// One pointer drags with the pan and windowing tools. Two pointers pinch
// with any navigational tool: the distance ratio zooms and the midpoint
// motion adjusts brightness and contrast. The measure and annotate tools
// leave the view alone so their own handlers can take the input.
package gesture
