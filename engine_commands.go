// SPDX-License-Identifier: EPL-2.0

package secondmusic

import (
	"fmt"
	"strings"

	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/soundtrack"
)

// Command application. Commands referencing names that don't exist are
// warnings, not errors: the soundtrack may well have changed between issue
// and delivery, and the engine forgives.

func (c cmdTransaction) apply(e *Engine) {
	for _, cmd := range c.commands {
		cmd.apply(e)
	}
}

func (c cmdReplaceSoundtrack) apply(e *Engine) {
	e.replaceSoundtrack(c.soundtrack)
}

// replaceSoundtrack swaps in the new soundtrack and rebuilds the per-flow
// load bookkeeping, carrying over precache/active flags. New sounds load
// before old ones unload so anything in common stays resident throughout.
func (e *Engine) replaceSoundtrack(st soundtrack.Soundtrack) {
	e.live = st
	newFlowLoads := make(map[string]*flowLoadStatus, st.NumFlows())
	for flowName, flow := range st.Flows {
		activeLoading, precacheCount := false, 0
		if old := e.flowLoads[flowName]; old != nil {
			activeLoading, precacheCount = old.activeLoading, old.precacheCount
		}
		loadStatus := &flowLoadStatus{
			activeLoading: activeLoading,
			knownSounds: flow.FindAllSounds(st,
				func(name string) {
					e.delegate.Warning(fmt.Sprintf("missing sound: %q", name))
				},
				func(name string) {
					e.delegate.Warning(fmt.Sprintf("missing sequence: %q", name))
				}),
		}
		for range precacheCount {
			loadStatus.precache(e.soundman)
		}
		loadStatus.maybeLoad(e.soundman)
		newFlowLoads[flowName] = loadStatus
	}
	for _, loadStatus := range e.flowLoads {
		loadStatus.forceUnload(e.soundman)
	}
	e.flowLoads = newFlowLoads
}

func (c cmdPrecache) apply(e *Engine) {
	loadStatus := e.flowLoads[c.flowName]
	if loadStatus == nil {
		e.delegate.Warning(fmt.Sprintf("attempt to precache flow %q, which does not exist", c.flowName))
		return
	}
	loadStatus.precache(e.soundman)
}

func (c cmdUnprecache) apply(e *Engine) {
	loadStatus := e.flowLoads[c.flowName]
	if loadStatus == nil {
		e.delegate.Warning(fmt.Sprintf("attempt to unprecache flow %q, which does not exist", c.flowName))
		return
	}
	if !loadStatus.unprecache(e.soundman) {
		e.delegate.Warning(fmt.Sprintf("attempt to unprecache flow %q that wasn't currently precached", c.flowName))
	}
}

func (c cmdUnprecacheAll) apply(e *Engine) {
	for _, loadStatus := range e.flowLoads {
		for loadStatus.precacheCount > 0 {
			loadStatus.unprecache(e.soundman)
		}
	}
}

func (c cmdSetFlowControl) apply(e *Engine) {
	e.flowControls[c.controlName] = c.value
}

func (c cmdClearFlowControl) apply(e *Engine) {
	delete(e.flowControls, c.controlName)
}

func (c cmdClearPrefixedFlowControls) apply(e *Engine) {
	for name := range e.flowControls {
		if strings.HasPrefix(name, c.controlPrefix) {
			delete(e.flowControls, name)
		}
	}
}

func (c cmdClearAllFlowControls) apply(e *Engine) {
	clear(e.flowControls)
}

func (c cmdFadeMixControlTo) apply(e *Engine) {
	e.performDeferredKill()
	delete(e.mixControlsFadingOut, c.controlName)
	oldVolume := 0.0
	if fader, ok := e.mixControls[c.controlName]; ok {
		oldVolume = fader.Evaluate()
	}
	e.mixControls[c.controlName] = audio.StartFader(c.fadeType, oldVolume, c.targetVolume, e.framesOf(c.fadeLength))
}

func (c cmdFadePrefixedMixControlsTo) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.mixControls {
		if strings.HasPrefix(name, c.controlPrefix) {
			delete(e.mixControlsFadingOut, name)
			e.mixControls[name] = audio.StartFader(c.fadeType, fader.Evaluate(), c.targetVolume, e.framesOf(c.fadeLength))
		}
	}
}

func (c cmdFadeAllMixControlsTo) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.mixControls {
		if c.exceptMain && name == DefaultChannel {
			continue
		}
		delete(e.mixControlsFadingOut, name)
		e.mixControls[name] = audio.StartFader(c.fadeType, fader.Evaluate(), c.targetVolume, e.framesOf(c.fadeLength))
	}
}

func (c cmdFadeMixControlOut) apply(e *Engine) {
	e.performDeferredKill()
	if fader, ok := e.mixControls[c.controlName]; ok {
		e.mixControls[c.controlName] = audio.StartFader(c.fadeType, fader.Evaluate(), 0, e.framesOf(c.fadeLength))
		e.mixControlsFadingOut[c.controlName] = true
	}
}

func (c cmdFadePrefixedMixControlsOut) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.mixControls {
		if strings.HasPrefix(name, c.controlPrefix) {
			e.mixControls[name] = audio.StartFader(c.fadeType, fader.Evaluate(), 0, e.framesOf(c.fadeLength))
			e.mixControlsFadingOut[name] = true
		}
	}
}

func (c cmdFadeAllMixControlsOut) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.mixControls {
		if c.exceptMain && name == DefaultChannel {
			continue
		}
		e.mixControls[name] = audio.StartFader(c.fadeType, fader.Evaluate(), 0, e.framesOf(c.fadeLength))
		e.mixControlsFadingOut[name] = true
	}
}

func (c cmdKillMixControl) apply(e *Engine) {
	if _, ok := e.mixControls[c.controlName]; ok {
		delete(e.mixControls, c.controlName)
		delete(e.mixControlsFadingOut, c.controlName)
		e.deferredKill = true
	}
}

func (c cmdKillPrefixedMixControls) apply(e *Engine) {
	for name := range e.mixControls {
		if strings.HasPrefix(name, c.controlPrefix) {
			delete(e.mixControls, name)
			delete(e.mixControlsFadingOut, name)
			e.deferredKill = true
		}
	}
}

func (c cmdKillAllMixControls) apply(e *Engine) {
	for name := range e.mixControls {
		if c.exceptMain && name == DefaultChannel {
			continue
		}
		delete(e.mixControls, name)
		delete(e.mixControlsFadingOut, name)
		e.deferredKill = true
	}
}

func (c cmdStartFlow) apply(e *Engine) {
	e.performDeferredKill()
	loadStatus := e.flowLoads[c.flowName]
	if loadStatus == nil {
		e.delegate.Warning(fmt.Sprintf("attempt to start non-existent flow %q", c.flowName))
		return
	}
	if fader, ok := e.flowVolumes[c.flowName]; ok {
		// already playing; behave like FadeFlowTo
		delete(e.flowsFadingOut, c.flowName)
		e.flowVolumes[c.flowName] = audio.StartFader(c.fadeType, fader.Evaluate(), c.targetVolume, e.framesOf(c.fadeLength))
		return
	}
	loadStatus.activeLoading = true
	loadStatus.maybeLoad(e.soundman)
	// playback begins the next time the handle turns and the load reports
	// ready
	e.startingFlows[c.flowName] = true
	e.nodeVolumes[flowNodeKey{c.flowName, ""}] = audio.NewFader(1)
	e.flowVolumes[c.flowName] = audio.StartFader(c.fadeType, 0, c.targetVolume, e.framesOf(c.fadeLength))
}

func (c cmdFadeFlowTo) apply(e *Engine) {
	e.performDeferredKill()
	delete(e.flowsFadingOut, c.flowName)
	oldVolume := 0.0
	if fader, ok := e.flowVolumes[c.flowName]; ok {
		oldVolume = fader.Evaluate()
	} else {
		// Not playing: adjusting the volume of a stopped flow does not
		// start it.
		return
	}
	e.flowVolumes[c.flowName] = audio.StartFader(c.fadeType, oldVolume, c.targetVolume, e.framesOf(c.fadeLength))
}

func (c cmdFadePrefixedFlowsTo) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.flowVolumes {
		if strings.HasPrefix(name, c.flowPrefix) {
			delete(e.flowsFadingOut, name)
			e.flowVolumes[name] = audio.StartFader(c.fadeType, fader.Evaluate(), c.targetVolume, e.framesOf(c.fadeLength))
		}
	}
}

func (c cmdFadeAllFlowsTo) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.flowVolumes {
		delete(e.flowsFadingOut, name)
		e.flowVolumes[name] = audio.StartFader(c.fadeType, fader.Evaluate(), c.targetVolume, e.framesOf(c.fadeLength))
	}
}

func (c cmdFadeFlowOut) apply(e *Engine) {
	e.performDeferredKill()
	if fader, ok := e.flowVolumes[c.flowName]; ok {
		e.flowVolumes[c.flowName] = audio.StartFader(c.fadeType, fader.Evaluate(), 0, e.framesOf(c.fadeLength))
		e.flowsFadingOut[c.flowName] = true
	}
}

func (c cmdFadePrefixedFlowsOut) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.flowVolumes {
		if strings.HasPrefix(name, c.flowPrefix) {
			e.flowVolumes[name] = audio.StartFader(c.fadeType, fader.Evaluate(), 0, e.framesOf(c.fadeLength))
			e.flowsFadingOut[name] = true
		}
	}
}

func (c cmdFadeAllFlowsOut) apply(e *Engine) {
	e.performDeferredKill()
	for name, fader := range e.flowVolumes {
		e.flowVolumes[name] = audio.StartFader(c.fadeType, fader.Evaluate(), 0, e.framesOf(c.fadeLength))
		e.flowsFadingOut[name] = true
	}
}

func (c cmdKillFlow) apply(e *Engine) {
	if _, ok := e.flowVolumes[c.flowName]; !ok {
		return
	}
	e.destroyFlowRuntime(c.flowName)
	e.deferredKill = true
}

func (c cmdKillPrefixedFlows) apply(e *Engine) {
	for name := range e.flowVolumes {
		if strings.HasPrefix(name, c.flowPrefix) {
			e.destroyFlowRuntime(name)
			e.deferredKill = true
		}
	}
}

func (c cmdKillAllFlows) apply(e *Engine) {
	for name := range e.flowVolumes {
		e.destroyFlowRuntime(name)
		e.deferredKill = true
	}
}

// flowLoadStatus tracks the load/precache state of one flow. Precaches are
// ref-counted: every Precache takes one load ref on each of the flow's
// sounds, every Unprecache releases one. Playback holds its own single ref
// (activeLoading/loadRequested), so a sound stays resident while either is
// outstanding.
type flowLoadStatus struct {
	// knownAllReady latches once every sound the flow needs is ready.
	knownAllReady bool
	// precacheCount is the number of outstanding Precache calls.
	precacheCount int
	// activeLoading: the flow is loaded because it is queued or playing.
	activeLoading bool
	// loadRequested: the activeLoading ref is currently held.
	loadRequested bool
	// knownSounds is every sound the flow requires, resolved when the
	// soundtrack was installed.
	knownSounds []*soundtrack.Sound
}

func (s *flowLoadStatus) isReady(m *soundMan) bool {
	if s.knownAllReady {
		return true
	}
	for _, sound := range s.knownSounds {
		if !m.isReady(sound) {
			return false
		}
	}
	s.knownAllReady = true
	return true
}

func (s *flowLoadStatus) precache(m *soundMan) {
	s.precacheCount++
	for _, sound := range s.knownSounds {
		m.load(sound)
	}
}

// unprecache releases one precache ref; returns false if none were held.
func (s *flowLoadStatus) unprecache(m *soundMan) bool {
	if s.precacheCount == 0 {
		return false
	}
	s.precacheCount--
	for _, sound := range s.knownSounds {
		m.unload(sound)
	}
	s.knownAllReady = false
	return true
}

func (s *flowLoadStatus) maybeLoad(m *soundMan) {
	if s.loadRequested || !s.activeLoading {
		return
	}
	for _, sound := range s.knownSounds {
		m.load(sound)
	}
	s.loadRequested = true
}

func (s *flowLoadStatus) maybeUnload(m *soundMan) {
	if !s.loadRequested || s.activeLoading {
		return
	}
	for _, sound := range s.knownSounds {
		m.unload(sound)
	}
	s.loadRequested = false
	s.knownAllReady = false
}

func (s *flowLoadStatus) forceUnload(m *soundMan) {
	s.activeLoading = false
	s.maybeUnload(m)
	for s.precacheCount > 0 {
		s.unprecache(m)
	}
}
