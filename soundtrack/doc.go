// SPDX-License-Identifier: EPL-2.0

// Package soundtrack holds the inert data model of the Second Music System
// and the parser for its source language.
//
// A Soundtrack is three name-indexed collections:
//
//   - Sound: a segment of an audio file. The only leaf that makes noise.
//   - Sequence: a timed set of triggers with a fixed total length.
//   - Flow: the top-level unit of playback, made of Nodes — little
//     step-by-step programs that play things, wait, branch on FlowControl
//     values, and start each other.
//
// The source language is line-oriented and indentation-structured. Tokens
// split like a shell command line; # begins a comment. A taste:
//
//	timebase beats 120/m
//
//	sound wind
//	    file "wind.ogg"
//	    length 8
//	    stream
//
//	flow dungeon with loop
//	    node Overworld
//	        if $underwater then switch node Underwater
//	        play sound dungeon_overworld and wait
//	    node Underwater
//	        if not $underwater then switch node Overworld
//	        play sound dungeon_underwater and wait
//	    start node Overworld
//
// ParseSource merges parsed source over an existing Soundtrack: new elements
// are added, same-named elements replaced, and on error the prior state is
// untouched. Soundtrack values are cheap to copy and safe to hand between
// goroutines; the engine swaps them atomically on ReplaceSoundtrack.
//
// Durations are written in timebases ("120/m": 120 ticks per minute) so
// composers can think in beats and measures; everything becomes seconds at
// parse time.
package soundtrack
