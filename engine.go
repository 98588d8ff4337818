// SPDX-License-Identifier: EPL-2.0

package secondmusic

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/soundtrack"
)

// Engine is the main moving part of the Second Music System. You create one,
// give it a delegate to handle music decoding, and "turn the handle" in your
// sound output code to make music come out.
//
// Exactly one goroutine — the audio thread — may call TurnHandle. Everything
// else talks to the engine through Commanders and Transactions; the audio
// thread drains their queue at the top of each TurnHandle and never blocks.
type Engine struct {
	Commands

	queue      *commandQueue
	delegate   SoundDelegate
	layout     audio.SpeakerLayout
	sampleRate float64

	runtime     TaskRuntime
	ownsRuntime bool

	live     soundtrack.Soundtrack
	mixer    *mixer
	soundman *soundMan

	flowControls map[string]soundtrack.Value
	mixControls  map[string]*audio.Fader
	flowVolumes  map[string]*audio.Fader
	nodeVolumes  map[flowNodeKey]*audio.Fader

	// startingFlows are waiting for their sounds to finish loading.
	startingFlows map[string]bool
	// flowsFadingOut and mixControlsFadingOut were asked to fade *out*; when
	// their fades hit zero they stop existing.
	flowsFadingOut       map[string]bool
	mixControlsFadingOut map[string]bool
	deferredKill         bool

	flowLoads map[string]*flowLoadStatus

	activeNodes  []*activeNode
	queuedSounds queuedSoundHeap
	// lastLoopRestart prevents a looped flow whose starting node never
	// advances time from restarting endlessly within one frame position.
	lastLoopRestart map[string]uint64
	mixBuf          []float32
}

// flowNodeKey identifies a node within a flow; an empty node name means the
// flow's starting node.
type flowNodeKey struct {
	flowName string
	nodeName string
}

// activeNode is a node queued to execute: a program counter plus the frame
// time at which execution resumes.
type activeNode struct {
	flowName  string
	node      *soundtrack.Node
	nextTime  uint64
	nextIndex int
}

// queuedSound is a sound that is going to play: when, attributed to whom,
// and with what fades.
type queuedSound struct {
	when    uint64
	id      playingSoundID
	sound   *soundtrack.Sound
	fadeIn  float64
	length  float64 // seconds; < 0 means the sound's own length
	fadeOut float64
}

type queuedSoundHeap []*queuedSound

func (h queuedSoundHeap) Len() int            { return len(h) }
func (h queuedSoundHeap) Less(i, j int) bool  { return h[i].when < h[j].when }
func (h queuedSoundHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *queuedSoundHeap) Push(x any)         { *h = append(*h, x.(*queuedSound)) }
func (h *queuedSoundHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// New creates an Engine.
//
//   - delegate: opens sound files and receives warnings.
//   - layout: the speaker layout of your output. When in doubt, use Stereo.
//   - sampleRate: samples per second you will be outputting.
//   - numThreads: decoder/streaming threads; 0 picks a default from the CPU
//     count. Ignored without background loading.
//   - backgroundLoading: load on a worker pool (true) or synchronously on
//     the audio thread (false, deterministic; use for offline rendering).
//
// Once set, these properties cannot be changed without creating a new
// Engine.
func New(delegate SoundDelegate, layout audio.SpeakerLayout, sampleRate float64, numThreads int, backgroundLoading bool) (*Engine, error) {
	if numThreads < 0 {
		return nil, ErrInvalidThreadCount
	}
	var rt TaskRuntime = ForegroundRuntime{}
	if backgroundLoading {
		rt = NewPoolRuntime(numThreads)
	}
	e, err := NewWithRuntime(delegate, layout, sampleRate, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	e.ownsRuntime = true
	return e, nil
}

// NewWithRuntime creates an Engine over a caller-supplied task runtime. The
// caller remains responsible for closing the runtime.
func NewWithRuntime(delegate SoundDelegate, layout audio.SpeakerLayout, sampleRate float64, rt TaskRuntime) (*Engine, error) {
	if delegate == nil {
		return nil, ErrNilDelegate
	}
	if !layout.Valid() {
		return nil, ErrInvalidSpeakerLayout
	}
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, ErrInvalidSampleRate
	}
	e := &Engine{
		queue:      &commandQueue{},
		delegate:   delegate,
		layout:     layout,
		sampleRate: sampleRate,
		runtime:    rt,
		live:       soundtrack.New(),
		mixer:      newMixer(layout.NumChannels()),
		soundman:   newSoundMan(delegate, rt),
		flowControls: map[string]soundtrack.Value{},
		mixControls: map[string]*audio.Fader{
			DefaultChannel: audio.NewFader(1),
		},
		flowVolumes:          map[string]*audio.Fader{},
		nodeVolumes:          map[flowNodeKey]*audio.Fader{},
		startingFlows:        map[string]bool{},
		flowsFadingOut:       map[string]bool{},
		mixControlsFadingOut: map[string]bool{},
		flowLoads:            map[string]*flowLoadStatus{},
		lastLoopRestart:      map[string]uint64{},
	}
	e.Commands = Commands{issue: func(cmd command) {
		e.queue.push(batch{cmd})
	}}
	return e, nil
}

// NewCommander makes an independent Commander that can send commands to this
// Engine from other goroutines.
func (e *Engine) NewCommander() *Commander {
	return newCommander(e.queue)
}

// CopyLiveSoundtrack returns a copy of the soundtrack that is currently
// live. Copies are cheap; see soundtrack.Soundtrack.
func (e *Engine) CopyLiveSoundtrack() soundtrack.Soundtrack {
	return e.live
}

// CopyAllFlowControls returns a snapshot of the FlowControls.
func (e *Engine) CopyAllFlowControls() map[string]soundtrack.Value {
	out := make(map[string]soundtrack.Value, len(e.flowControls))
	for k, v := range e.flowControls {
		out[k] = v
	}
	return out
}

// SpeakerLayout returns the layout this Engine was initialized for.
func (e *Engine) SpeakerLayout() audio.SpeakerLayout { return e.layout }

// SampleRate returns the sample rate this Engine was initialized for.
func (e *Engine) SampleRate() float64 { return e.sampleRate }

// Close shuts down the engine's task runtime (when the engine owns it),
// waiting out loading tasks that cannot be cancelled.
func (e *Engine) Close() {
	if e.ownsRuntime {
		e.runtime.Close()
	}
}

// secondsToFrames rounds to the nearest sample frame, ties toward the
// earlier frame.
func (e *Engine) secondsToFrames(seconds float64) uint64 {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	return uint64(math.Ceil(seconds*e.sampleRate - 0.5))
}

func (e *Engine) framesOf(seconds float64) float64 {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	return seconds * e.sampleRate
}

// TurnHandle mixes some audio and advances time. len(out) must be divisible
// by the number of speaker channels. The active music is summed into out —
// existing contents are added to, never overwritten — so zero it first if
// the engine is your only signal.
func (e *Engine) TurnHandle(out []float32) {
	if len(out)%e.layout.NumChannels() != 0 {
		panic("secondmusic: output buffer length must be a multiple of the channel count")
	}
	seenFlows := make(map[string]bool, len(e.flowVolumes))
	seenNodes := make(map[flowNodeKey]bool, len(e.nodeVolumes))
	for len(out) > 0 {
		now := e.mixer.nextFrame
		// Here, at this command boundary, evaluate any commands we might
		// have received.
		for node := e.queue.drain(); node != nil; node = node.next {
			for _, cmd := range node.batch {
				cmd.apply(e)
			}
		}
		// See if any newly-started flows are ready to start.
		for flowName := range e.startingFlows {
			loadStatus := e.flowLoads[flowName]
			if loadStatus == nil || !loadStatus.isReady(e.soundman) {
				continue
			}
			flow := e.live.Flow(flowName)
			if flow == nil {
				delete(e.startingFlows, flowName)
				continue
			}
			e.activeNodes = append(e.activeNodes, &activeNode{
				flowName: flowName,
				node:     flow.StartNode,
				nextTime: now,
			})
			delete(e.startingFlows, flowName)
		}
		e.processNodes(now)
		// Consume queued sounds whose times have come.
		for len(e.queuedSounds) > 0 && e.queuedSounds[0].when <= now {
			qs := heap.Pop(&e.queuedSounds).(*queuedSound)
			if stream := e.adaptify(qs); stream != nil {
				// A sound's mix control comes into being, at unity, the
				// first time something is attributed to it.
				if _, ok := e.mixControls[qs.id.channel]; !ok {
					e.mixControls[qs.id.channel] = audio.NewFader(1)
					delete(e.mixControlsFadingOut, qs.id.channel)
				}
				e.mixer.play(stream, qs.id)
			}
		}
		// Mix up to the next scheduled execution.
		bufLen := len(out)
		if frames, ok := e.framesUntilNextExec(now); ok {
			bufLen = int(min(frames*uint64(e.layout.NumChannels()), uint64(len(out))))
		}
		if bufLen > 0 {
			if len(e.mixBuf) < bufLen {
				e.mixBuf = make([]float32, bufLen)
			}
			e.mixer.mix(out[:bufLen], e.mixBuf[:bufLen], &volumeGetWrapper{
				engine:    e,
				seenFlows: seenFlows,
				seenNodes: seenNodes,
			})
			out = out[bufLen:]
		}
	}
	e.killTheUnseen(seenFlows, seenNodes)
}

// processNodes runs every active node whose time has come, collecting the
// node starts and restarts they request, then applies them and handles
// "with loop" auto-restarts.
func (e *Engine) processNodes(now uint64) {
	nodesToStart := map[flowNodeKey]bool{}
	nodesToRestart := map[flowNodeKey]bool{}
	keep := e.activeNodes[:0]
	for _, an := range e.activeNodes {
		if an.nextTime > now {
			keep = append(keep, an)
			continue
		}
		alive := e.runNode(an, now, nodesToStart, nodesToRestart)
		if alive {
			keep = append(keep, an)
		}
	}
	for i := len(keep); i < len(e.activeNodes); i++ {
		e.activeNodes[i] = nil
	}
	e.activeNodes = keep
	for key := range nodesToStart {
		e.startNode(key, now, false)
	}
	for key := range nodesToRestart {
		e.startNode(key, now, true)
	}
	e.autoRestartLoopedFlows(now)
}

// runNode executes commands until the node waits, ends, or runs out.
// Returns whether the node stays active.
func (e *Engine) runNode(an *activeNode, now uint64, nodesToStart, nodesToRestart map[flowNodeKey]bool) bool {
	n := an.nextIndex
	commands := an.node.Commands
	for n < len(commands) {
		cmd := &commands[n]
		n++
		switch cmd.Kind {
		case soundtrack.CmdDone:
			return false
		case soundtrack.CmdWait:
			an.nextTime = now + e.secondsToFrames(cmd.Seconds)
			an.nextIndex = n
			return true
		case soundtrack.CmdPlaySound:
			e.executeSound(now, an.flowName, an.node.Name, cmd.Target, DefaultChannel, 0, -1, 0)
		case soundtrack.CmdPlaySoundAndWait:
			wait := e.executeSound(now, an.flowName, an.node.Name, cmd.Target, DefaultChannel, 0, -1, 0)
			an.nextTime = now + wait
			an.nextIndex = n
			return true
		case soundtrack.CmdPlaySequence:
			e.executeSequence(now, an.flowName, an.node.Name, cmd.Target, 0)
		case soundtrack.CmdPlaySequenceAndWait:
			wait := e.executeSequence(now, an.flowName, an.node.Name, cmd.Target, 0)
			an.nextTime = now + wait
			an.nextIndex = n
			return true
		case soundtrack.CmdStartNode:
			nodesToStart[flowNodeKey{an.flowName, cmd.Target}] = true
		case soundtrack.CmdRestartNode:
			nodesToRestart[flowNodeKey{an.flowName, cmd.Target}] = true
		case soundtrack.CmdRestartFlow:
			nodesToRestart[flowNodeKey{an.flowName, ""}] = true
		case soundtrack.CmdSwitchNode:
			// conclude this node, hand the flow to the target
			nodesToRestart[flowNodeKey{an.flowName, cmd.Target}] = true
			return false
		case soundtrack.CmdFadeNodeOut:
			key := flowNodeKey{an.flowName, cmd.Target}
			if fader, ok := e.nodeVolumes[key]; ok {
				e.nodeVolumes[key] = audio.StartFader(audio.FadeLinear, fader.Evaluate(), 0, e.framesOf(cmd.Seconds))
			} else {
				e.delegate.Warning(fmt.Sprintf("missing node: %q::%q", an.flowName, cmd.Target))
			}
		case soundtrack.CmdSet:
			e.flowControls[cmd.Target] = soundtrack.Evaluate(e.flowControls, cmd.Expr)
		case soundtrack.CmdGoto:
			jump := cmd.CondSense
			if len(cmd.Expr) > 0 {
				jump = soundtrack.Evaluate(e.flowControls, cmd.Expr).IsTruthy() == cmd.CondSense
			}
			if jump {
				n = cmd.Index
			}
		}
	}
	an.nextIndex = n
	// A node that ran off the end of its program is done once its last wait
	// has elapsed.
	return an.nextTime > now
}

// startNode starts (or restarts) a node within a flow. An empty node name
// means the starting node.
func (e *Engine) startNode(key flowNodeKey, now uint64, restart bool) {
	for _, an := range e.activeNodes {
		if an.flowName == key.flowName && an.node.Name == key.nodeName {
			if !restart {
				// already playing; nothing to do
				e.delegate.Warning(fmt.Sprintf("attempt to start node %q, which was already playing", key.nodeName))
				return
			}
			an.nextIndex = 0
			an.nextTime = now
			return
		}
	}
	flow := e.live.Flow(key.flowName)
	if flow == nil {
		e.delegate.Warning(fmt.Sprintf("missing flow %q for node %q", key.flowName, key.nodeName))
		return
	}
	node := flow.StartNode
	if key.nodeName != "" {
		node = flow.Nodes[key.nodeName]
		if node == nil {
			e.delegate.Warning(fmt.Sprintf("can't start missing node: %q::%q", key.flowName, key.nodeName))
			return
		}
	}
	if _, ok := e.nodeVolumes[key]; !ok {
		e.nodeVolumes[key] = audio.NewFader(1)
	}
	e.activeNodes = append(e.activeNodes, &activeNode{
		flowName: key.flowName,
		node:     node,
		nextTime: now,
	})
}

// autoRestartLoopedFlows re-enters the starting node of every "with loop"
// flow whose node set has emptied. This happens at the same command boundary
// the last node ended at, so looping playback has no gap.
func (e *Engine) autoRestartLoopedFlows(now uint64) {
	for flowName := range e.flowVolumes {
		if e.startingFlows[flowName] || e.flowsFadingOut[flowName] {
			continue
		}
		flow := e.live.Flow(flowName)
		if flow == nil || !flow.Loop {
			continue
		}
		if e.flowHasActiveNodes(flowName) {
			continue
		}
		if last, ok := e.lastLoopRestart[flowName]; ok && last == now {
			continue
		}
		e.lastLoopRestart[flowName] = now
		key := flowNodeKey{flowName, ""}
		if _, ok := e.nodeVolumes[key]; !ok {
			e.nodeVolumes[key] = audio.NewFader(1)
		}
		e.activeNodes = append(e.activeNodes, &activeNode{
			flowName: flowName,
			node:     flow.StartNode,
			nextTime: now,
		})
	}
}

func (e *Engine) flowHasActiveNodes(flowName string) bool {
	for _, an := range e.activeNodes {
		if an.flowName == flowName {
			return true
		}
	}
	return false
}

func (e *Engine) flowHasQueuedSounds(flowName string) bool {
	for _, qs := range e.queuedSounds {
		if qs.id.flowName == flowName {
			return true
		}
	}
	return false
}

// executeSequence schedules every element of a sequence relative to `when`.
// Returns the number of sample frames the sequence lasts.
func (e *Engine) executeSequence(when uint64, flowName, nodeName, seqName string, depth int) uint64 {
	seq := e.live.Sequence(seqName)
	if seq == nil {
		e.delegate.Warning(fmt.Sprintf("can't play missing sequence: %q", seqName))
		return 0
	}
	if depth > maxSequenceDepth {
		e.delegate.Warning(fmt.Sprintf("sequence %q nests too deeply (circular reference?)", seqName))
		return 0
	}
	for i := range seq.Elements {
		el := &seq.Elements[i]
		at := when + e.secondsToFrames(el.Start)
		if el.Sequence != "" {
			if el.Sequence == seqName {
				e.delegate.Warning(fmt.Sprintf("sequence %q plays itself; skipping", seqName))
				continue
			}
			e.executeSequence(at, flowName, nodeName, el.Sequence, depth+1)
			continue
		}
		e.executeSound(at, flowName, nodeName, el.Sound, el.Channel, el.FadeIn, el.Length, el.FadeOut)
	}
	return e.secondsToFrames(seq.Length)
}

const maxSequenceDepth = 16

// executeSound queues a sound to play. Returns the number of sample frames
// the sound will last, for "and wait" bookkeeping.
func (e *Engine) executeSound(when uint64, flowName, nodeName, soundName, channel string, fadeIn, length, fadeOut float64) uint64 {
	sound := e.live.Sound(soundName)
	if sound == nil {
		e.delegate.Warning(fmt.Sprintf("can't play missing sound: %q", soundName))
		return 0
	}
	lengthSec := length
	if lengthSec < 0 {
		switch {
		case sound.End >= 0:
			lengthSec = math.Max(sound.End-sound.Start, 0)
		default:
			if total, ok := e.soundman.knownLengthSeconds(sound); ok {
				lengthSec = math.Max(total-sound.Start, 0)
			} else {
				lengthSec = 0
			}
		}
	}
	heap.Push(&e.queuedSounds, &queuedSound{
		when: when,
		id: playingSoundID{
			flowName: flowName,
			nodeName: nodeName,
			channel:  channel,
		},
		sound:   sound,
		fadeIn:  fadeIn,
		length:  length,
		fadeOut: fadeOut,
	})
	return e.secondsToFrames(lengthSec)
}

// framesUntilNextExec returns the number of sample frames before the next
// scheduled node command or queued sound, or ok=false when nothing is
// scheduled.
func (e *Engine) framesUntilNextExec(now uint64) (uint64, bool) {
	var next uint64
	have := false
	for _, an := range e.activeNodes {
		if !have || an.nextTime < next {
			next = an.nextTime
			have = true
		}
	}
	if len(e.queuedSounds) > 0 {
		if !have || e.queuedSounds[0].when < next {
			next = e.queuedSounds[0].when
			have = true
		}
	}
	if !have {
		return 0, false
	}
	return next - now, true
}

// adaptify builds the adapter chain that turns a queued sound's raw stream
// into engine-rate, engine-layout float32 frames: fade (or loop) handling at
// native format, then channel and rate conversion in whichever order touches
// fewer samples.
func (e *Engine) adaptify(qs *queuedSound) audio.SoundReader {
	sound := qs.sound
	stream := e.soundman.getSound(sound)
	if stream == nil {
		e.delegate.Warning(fmt.Sprintf("can't play sound %q (not loaded, or its file failed to load)", sound.Name))
		return nil
	}
	inRate := stream.SampleRate
	inLayout := stream.Layout
	soundSec := -1.0
	if sound.End >= 0 {
		soundSec = math.Max(sound.End-sound.Start, 0)
	} else if total, ok := e.soundman.knownLengthSeconds(sound); ok {
		soundSec = math.Max(total-sound.Start, 0)
	}
	var reader audio.SoundReader
	if sound.HasLoop {
		if seeker, ok := stream.Reader.(audio.Seeker); ok {
			reader = audio.NewLoopAdapter(stream, seeker, sound.Gain, qs.fadeIn, qs.length, qs.fadeOut, sound.Start, sound.LoopStart, sound.LoopEnd)
		} else {
			e.delegate.Warning(fmt.Sprintf("sound %q has loop points but its stream can't seek; playing straight through", sound.Name))
			reader = audio.NewFadeAdapter(stream, sound.Gain, qs.fadeIn, qs.length, qs.fadeOut, soundSec)
		}
	} else {
		reader = audio.NewFadeAdapter(stream, sound.Gain, qs.fadeIn, qs.length, qs.fadeOut, soundSec)
	}
	needChan := inLayout.NumChannels() != e.layout.NumChannels()
	numChannels := inLayout.NumChannels()
	if needChan && inRate < e.sampleRate {
		// upsampling: convert channels first so the resampler runs at the
		// lower rate
		reader = audio.NewChannelAdapter(reader, inLayout, e.layout)
		numChannels = e.layout.NumChannels()
	}
	if inRate != e.sampleRate {
		reader = audio.NewRateAdapter(reader, numChannels, inRate, e.sampleRate)
	}
	if needChan && inRate >= e.sampleRate {
		reader = audio.NewChannelAdapter(reader, inLayout, e.layout)
	}
	return reader
}

// volumeGetWrapper adapts the engine's fader maps to the mixer's
// volumeGetter, marking which flows and nodes still have audible sources so
// killTheUnseen can reap the rest.
type volumeGetWrapper struct {
	engine    *Engine
	seenFlows map[string]bool
	seenNodes map[flowNodeKey]bool
}

func (w *volumeGetWrapper) stepFadersBy(n float64) {
	e := w.engine
	for flowName, fader := range e.flowVolumes {
		if !e.startingFlows[flowName] {
			fader.StepBy(n)
		}
	}
	for _, fader := range e.nodeVolumes {
		fader.StepBy(n)
	}
	for _, fader := range e.mixControls {
		fader.StepBy(n)
	}
}

func (w *volumeGetWrapper) getVolume(id *playingSoundID, t float64) (float64, bool) {
	e := w.engine
	flowFader, ok := e.flowVolumes[id.flowName]
	if !ok {
		return 0, false
	}
	flowVolume := flowFader.EvaluateT(t)
	if flowVolume == 0 && e.flowsFadingOut[id.flowName] {
		return 0, false
	}
	nodeFader, ok := e.nodeVolumes[flowNodeKey{id.flowName, id.nodeName}]
	if !ok {
		return 0, false
	}
	nodeVolume := nodeFader.Evaluate()
	// Nodes cannot reach zero volume unless they are being faded out.
	if nodeVolume == 0 {
		return 0, false
	}
	channelFader, ok := e.mixControls[id.channel]
	if !ok {
		// the mix control was killed out from under us
		return 0, false
	}
	return flowVolume * nodeVolume * channelFader.Evaluate(), true
}

func (w *volumeGetWrapper) isVarying(id *playingSoundID) (bool, bool) {
	e := w.engine
	flowFader, ok := e.flowVolumes[id.flowName]
	if !ok {
		return false, false
	}
	key := flowNodeKey{id.flowName, id.nodeName}
	nodeFader, ok := e.nodeVolumes[key]
	if !ok {
		return false, false
	}
	if flowFader.Complete() && flowFader.Evaluate() == 0 && e.flowsFadingOut[id.flowName] {
		return false, false
	}
	if _, ok := e.mixControls[id.channel]; !ok {
		return false, false
	}
	w.seenFlows[id.flowName] = true
	w.seenNodes[key] = true
	return !flowFader.Complete() || !nodeFader.Complete(), true
}

// performDeferredKill makes the mixer notice kill commands before the next
// fade command snapshots volumes.
func (e *Engine) performDeferredKill() {
	if !e.deferredKill {
		return
	}
	e.deferredKill = false
	seenFlows := make(map[string]bool, len(e.flowVolumes))
	seenNodes := make(map[flowNodeKey]bool, len(e.nodeVolumes))
	e.mixer.bump(&volumeGetWrapper{engine: e, seenFlows: seenFlows, seenNodes: seenNodes})
	e.killTheUnseen(seenFlows, seenNodes)
}

// killTheUnseen makes nodes, flows, and mix controls that were not processed
// (and, where relevant, have finished their business) stop existing.
func (e *Engine) killTheUnseen(seenFlows map[string]bool, seenNodes map[flowNodeKey]bool) {
	for flowName := range e.flowVolumes {
		if seenFlows[flowName] || e.startingFlows[flowName] {
			continue
		}
		if e.flowsFadingOut[flowName] {
			// fade-out ran to silence; tear the flow down
			e.destroyFlowRuntime(flowName)
			continue
		}
		// A flow with nothing left to do — no live nodes, nothing queued,
		// no audible sources — ends, unless it loops.
		if e.flowHasActiveNodes(flowName) || e.flowHasQueuedSounds(flowName) {
			continue
		}
		if flow := e.live.Flow(flowName); flow != nil && flow.Loop {
			continue
		}
		e.destroyFlowRuntime(flowName)
	}
	for key := range e.nodeVolumes {
		if seenNodes[key] || e.startingFlows[key.flowName] {
			continue
		}
		active := false
		for _, an := range e.activeNodes {
			if an.flowName == key.flowName && an.node.Name == key.nodeName {
				active = true
				break
			}
		}
		if !active {
			delete(e.nodeVolumes, key)
		}
	}
	for name, fader := range e.mixControls {
		if e.mixControlsFadingOut[name] && fader.Complete() && fader.Target() == 0 {
			delete(e.mixControls, name)
			delete(e.mixControlsFadingOut, name)
		}
	}
}

// destroyFlowRuntime removes every trace of a flow's runtime and releases
// its load refs.
func (e *Engine) destroyFlowRuntime(flowName string) {
	delete(e.flowVolumes, flowName)
	delete(e.flowsFadingOut, flowName)
	delete(e.startingFlows, flowName)
	delete(e.lastLoopRestart, flowName)
	if loadStatus := e.flowLoads[flowName]; loadStatus != nil {
		loadStatus.activeLoading = false
		loadStatus.maybeUnload(e.soundman)
	}
	for key := range e.nodeVolumes {
		if key.flowName == flowName {
			delete(e.nodeVolumes, key)
		}
	}
	keep := e.activeNodes[:0]
	for _, an := range e.activeNodes {
		if an.flowName != flowName {
			keep = append(keep, an)
		}
	}
	for i := len(keep); i < len(e.activeNodes); i++ {
		e.activeNodes[i] = nil
	}
	e.activeNodes = keep
	remaining := e.queuedSounds[:0]
	for _, qs := range e.queuedSounds {
		if qs.id.flowName != flowName {
			remaining = append(remaining, qs)
		}
	}
	for i := len(remaining); i < len(e.queuedSounds); i++ {
		e.queuedSounds[i] = nil
	}
	e.queuedSounds = remaining
	heap.Init(&e.queuedSounds)
}
