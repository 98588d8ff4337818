// SPDX-License-Identifier: EPL-2.0

package secondmusic

import (
	"math"
	"testing"

	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/internal/audiotest"
	"github.com/ik5/secondmusic/soundtrack"
)

// newTestEngine builds a foreground stereo 48kHz engine over an in-memory
// delegate, so every test is deterministic.
func newTestEngine(t *testing.T, delegate *audiotest.Delegate) *Engine {
	t.Helper()
	engine, err := New(delegate, audio.Stereo, 48000, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func mustParse(t *testing.T, source string) soundtrack.Soundtrack {
	t.Helper()
	st, err := soundtrack.FromSource(source)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

// render runs TurnHandle over zeroed blocks and returns the concatenation.
func render(t *testing.T, engine *Engine, seconds float64, blockFrames int) []float32 {
	t.Helper()
	channels := engine.SpeakerLayout().NumChannels()
	totalFrames := int(seconds * engine.SampleRate())
	out := make([]float32, 0, totalFrames*channels)
	block := make([]float32, blockFrames*channels)
	for rendered := 0; rendered < totalFrames; rendered += blockFrames {
		for i := range block {
			block[i] = 0
		}
		engine.TurnHandle(block)
		out = append(out, block...)
	}
	return out
}

func TestEngineConstructionValidation(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	if _, err := New(nil, audio.Stereo, 48000, 0, false); err != ErrNilDelegate {
		t.Errorf("nil delegate: %v", err)
	}
	if _, err := New(delegate, audio.SpeakerLayout(99), 48000, 0, false); err != ErrInvalidSpeakerLayout {
		t.Errorf("bad layout: %v", err)
	}
	if _, err := New(delegate, audio.Stereo, 0, 0, false); err != ErrInvalidSampleRate {
		t.Errorf("zero rate: %v", err)
	}
	if _, err := New(delegate, audio.Stereo, math.Inf(1), 0, false); err != ErrInvalidSampleRate {
		t.Errorf("inf rate: %v", err)
	}
	if _, err := New(delegate, audio.Stereo, 48000, -1, false); err != ErrInvalidThreadCount {
		t.Errorf("negative threads: %v", err)
	}
}

const loopedSineSource = `
sound sine1s
    file "sine.wav"
    length 1

flow A with loop
    play sound sine1s and wait
`

// Scenario: a looping one-second mono sine on a stereo engine. The output
// must be gapless across the loop boundary and duplicated onto both
// channels.
func TestLoopedFlowPlaysGaplessly(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("sine.wav", audiotest.NewSineSource(48000, 1, 48000, 440).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, loopedSineSource))
	engine.StartFlow("A", 1.0, 0, audio.FadeLinear)

	out := render(t, engine, 2.0, 480)
	sine := func(frame int) float32 {
		return float32(math.Sin(2 * math.Pi * 440 * float64(frame%48000) / 48000))
	}
	// spot-check: every 1000th frame matches the source, on both channels
	for frame := 0; frame < 96000; frame += 1000 {
		want := sine(frame)
		l, r := out[frame*2], out[frame*2+1]
		if math.Abs(float64(l-want)) > 1e-4 || math.Abs(float64(r-want)) > 1e-4 {
			t.Fatalf("frame %d = (%v, %v), want %v on both channels", frame, l, r, want)
		}
	}
	// no silent gap longer than a block anywhere
	blockRMS := func(start, frames int) float64 {
		var sum float64
		for f := start; f < start+frames; f++ {
			sum += float64(out[f*2]) * float64(out[f*2])
		}
		return math.Sqrt(sum / float64(frames))
	}
	for start := 0; start+480 <= 96000; start += 480 {
		if blockRMS(start, 480) < 0.1 {
			t.Fatalf("silent block at frame %d", start)
		}
	}
	// the frame right after the loop point is the sine's second frame again
	if math.Abs(float64(out[48000*2+2]-sine(1))) > 1e-4 {
		t.Errorf("loop restart frame = %v, want %v", out[48000*2+2], sine(1))
	}
}

// Scenario: a committed transaction is applied atomically with respect to
// block boundaries — the intermediate fade target is never observed.
func TestTransactionAtomicity(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("sine.wav", audiotest.NewSineSource(48000, 1, 48000, 440).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, loopedSineSource))

	commander := engine.NewCommander()
	commander.StartFlow("A", 1.0, 0, audio.FadeLinear)
	tx := commander.BeginTransaction(2)
	tx.FadeFlowTo("A", 0.5, 0, audio.FadeLinear)
	tx.FadeFlowTo("A", 0.25, 0, audio.FadeLinear)
	tx.Commit()

	render(t, engine, 0.01, 480)
	fader := engine.flowVolumes["A"]
	if fader == nil {
		t.Fatal("flow A should be live")
	}
	if got := fader.Evaluate(); got != 0.25 {
		t.Errorf("flow volume = %v, want the transaction's final 0.25", got)
	}
}

func TestTransactionAbortAndNesting(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	engine := newTestEngine(t, delegate)

	tx := engine.BeginTransaction(0)
	tx.SetFlowControlToNumber("x", 1)
	tx.Abort()
	render(t, engine, 0.01, 480)
	if _, ok := engine.flowControls["x"]; ok {
		t.Error("aborted transaction must deliver nothing")
	}

	outer := engine.BeginTransaction(0)
	inner := outer.BeginTransaction(0)
	inner.SetFlowControlToNumber("y", 2)
	inner.Commit()
	render(t, engine, 0.01, 480)
	if _, ok := engine.flowControls["y"]; ok {
		t.Error("inner commit must wait for the outer transaction")
	}
	outer.Commit()
	render(t, engine, 0.01, 480)
	if v := engine.flowControls["y"]; v.AsNumber() != 2 {
		t.Error("outer commit must deliver the nested command")
	}
}

const precacheSource = `
sound x
    file "x.wav"
    length 1

flow X
    play sound x and wait
`

// Scenario: precache/unprecache balance. Two precaches need two unprecaches,
// and playback holds its own reference.
func TestPrecacheBalance(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("x.wav", audiotest.NewSilentSource(48000, 1, 48000).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, precacheSource))

	engine.Precache("X")
	engine.Precache("X")
	engine.Unprecache("X")
	render(t, engine, 0.01, 480)
	if delegate.OpenCount["x.wav"] != 1 {
		t.Errorf("the file should have been opened exactly once, got %d", delegate.OpenCount["x.wav"])
	}
	if _, ok := engine.soundman.buffers["x.wav"]; !ok {
		t.Fatal("one precache ref remains; the sound must stay resident")
	}

	engine.StartFlow("X", 1.0, 0, audio.FadeLinear)
	render(t, engine, 0.01, 480)
	if delegate.OpenCount["x.wav"] != 1 {
		t.Error("starting a precached flow must not reload the file")
	}

	engine.KillFlow("X")
	render(t, engine, 0.01, 480)
	if _, ok := engine.soundman.buffers["x.wav"]; !ok {
		t.Fatal("after the kill, the precache ref still holds the sound")
	}

	engine.Unprecache("X")
	render(t, engine, 0.01, 480)
	if _, ok := engine.soundman.buffers["x.wav"]; ok {
		t.Fatal("the final unprecache must evict the sound")
	}
}

const dungeonEngineSource = `
sound ow
    file "ow.wav"
    length 0.1

sound uw
    file "uw.wav"
    length 0.1

flow D
    node Overworld
        if $underwater then switch node Underwater
        play sound ow and wait
        switch node Overworld
    node Underwater
        if not $underwater then switch node Overworld
        play sound uw and wait
        switch node Underwater
    start node Overworld
`

// Scenario: FlowControl branching. Flipping "underwater" reroutes the flow
// to the Underwater node at the next step boundary.
func TestFlowControlBranching(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("ow.wav", audiotest.NewConstantSource(48000, 1, 4800, 0.5).Stream(audio.Mono))
	delegate.AddFile("uw.wav", audiotest.NewConstantSource(48000, 1, 4800, 0.25).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, dungeonEngineSource))

	engine.SetFlowControlToNumber("underwater", 0)
	engine.StartFlow("D", 1.0, 0, audio.FadeLinear)
	out := render(t, engine, 0.05, 480)
	if math.Abs(float64(out[2000]-0.5)) > 1e-4 {
		t.Fatalf("overworld sample = %v, want 0.5", out[2000])
	}

	engine.SetFlowControlToNumber("underwater", 1)
	// finish the current 0.1s playback, then another 0.1s of the new branch
	out = render(t, engine, 0.2, 480)
	tail := out[len(out)-1000:]
	for i, s := range tail {
		if math.Abs(float64(s)-0.25) > 1e-4 {
			t.Fatalf("underwater sample %d = %v, want 0.25", i, s)
		}
	}
}

// Scenario: MixControl death. A faded-out control vanishes; sweeps don't
// resurrect it, a direct command does.
func TestMixControlDeath(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	engine := newTestEngine(t, delegate)

	engine.FadeMixControlTo("hazard", 1.0, 0, audio.FadeExponential)
	render(t, engine, 0.01, 480)
	if _, ok := engine.mixControls["hazard"]; !ok {
		t.Fatal("direct fade must create the control")
	}

	engine.FadeMixControlOut("hazard", 0.5, audio.FadeExponential)
	render(t, engine, 0.6, 480)
	if _, ok := engine.mixControls["hazard"]; ok {
		t.Fatal("completed fade out must remove the control")
	}

	engine.FadeAllMixControlsTo(1.0, 0, audio.FadeExponential)
	render(t, engine, 0.01, 480)
	if _, ok := engine.mixControls["hazard"]; ok {
		t.Error("an \"all\" sweep must not resurrect a dead control")
	}

	engine.FadeMixControlTo("hazard", 1.0, 0, audio.FadeExponential)
	render(t, engine, 0.01, 480)
	if _, ok := engine.mixControls["hazard"]; !ok {
		t.Error("a direct command must recreate the control")
	}
	if _, ok := engine.mixControls[DefaultChannel]; !ok {
		t.Error("main must still exist")
	}
}

func TestKillAllMixControlsExceptMain(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	engine := newTestEngine(t, delegate)
	engine.FadeMixControlTo("a", 1, 0, audio.FadeLinear)
	engine.FadeMixControlTo("b", 1, 0, audio.FadeLinear)
	engine.KillAllMixControlsExceptMain()
	render(t, engine, 0.01, 480)
	if len(engine.mixControls) != 1 {
		t.Errorf("controls left: %d, want just main", len(engine.mixControls))
	}
	if _, ok := engine.mixControls[DefaultChannel]; !ok {
		t.Error("main must survive")
	}
}

// TurnHandle sums into the output buffer rather than overwriting it.
func TestTurnHandleSumsIntoOutput(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("sine.wav", audiotest.NewSineSource(48000, 1, 48000, 440).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, loopedSineSource))
	engine.StartFlow("A", 1.0, 0, audio.FadeLinear)

	bias := float32(0.125)
	block := make([]float32, 960)
	for i := range block {
		block[i] = bias
	}
	engine.TurnHandle(block)
	for frame := 0; frame < 480; frame += 100 {
		want := bias + float32(math.Sin(2*math.Pi*440*float64(frame)/48000))
		if math.Abs(float64(block[frame*2]-want)) > 1e-4 {
			t.Fatalf("frame %d = %v, want %v (bias preserved)", frame, block[frame*2], want)
		}
	}
}

// In foreground mode the produced samples are a deterministic function of
// the command schedule.
func TestForegroundDeterminism(t *testing.T) {
	t.Parallel()

	runOnce := func() []float32 {
		delegate := audiotest.NewDelegate()
		delegate.AddFile("sine.wav", audiotest.NewSineSource(48000, 1, 48000, 440).Stream(audio.Mono))
		engine, err := New(delegate, audio.Stereo, 48000, 0, false)
		if err != nil {
			t.Fatal(err)
		}
		defer engine.Close()
		engine.ReplaceSoundtrack(mustParse(t, loopedSineSource))
		engine.StartFlow("A", 0.8, 0.25, audio.FadeExponential)
		return render(t, engine, 0.5, 441)
	}
	a := runOnce()
	b := runOnce()
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("outputs diverge at sample %d: %v vs %v", i, a[i], b[i])
		}
	}
}

// Unknown names are warnings, never failures.
func TestForgivingUnknownNames(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	engine := newTestEngine(t, delegate)
	engine.StartFlow("nope", 1, 0, audio.FadeLinear)
	engine.Precache("nada")
	engine.KillFlow("zilch")
	render(t, engine, 0.01, 480)
	warnings := delegate.Warnings()
	if len(warnings) < 2 {
		t.Errorf("expected warnings for the unknown names, got %v", warnings)
	}
}

// A missing file fails the load but not the flow: playback starts and the
// broken source is skipped with a warning.
func TestMissingFileSkipsSource(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, precacheSource))
	engine.StartFlow("X", 1, 0, audio.FadeLinear)
	out := render(t, engine, 0.05, 480)
	for _, s := range out {
		if s != 0 {
			t.Fatal("nothing should play")
		}
	}
	if len(delegate.Warnings()) == 0 {
		t.Error("the failed open should have been reported")
	}
}

// Replacing the soundtrack mid-play keeps active sources going; the new
// definitions apply from the next step on.
func TestReplaceSoundtrackMidPlay(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("sine.wav", audiotest.NewSineSource(48000, 1, 48000, 440).Stream(audio.Mono))
	delegate.AddFile("other.wav", audiotest.NewConstantSource(48000, 1, 48000, 0.25).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, loopedSineSource))
	engine.StartFlow("A", 1, 0, audio.FadeLinear)
	out := render(t, engine, 0.5, 480)
	if out[2000] == 0 {
		t.Fatal("flow should be audible before the replacement")
	}

	replacement := mustParse(t, `
sound sine1s
    file "other.wav"
    length 1

flow A with loop
    play sound sine1s and wait
`)
	engine.ReplaceSoundtrack(replacement)
	// the current playback finishes its second...
	render(t, engine, 0.5, 480)
	// ...and the next loop iteration picks up the new definition
	out = render(t, engine, 0.5, 480)
	if math.Abs(float64(out[4000]-0.25)) > 1e-4 {
		t.Errorf("post-replacement sample = %v, want the new sound's 0.25", out[4000])
	}
}

func TestCommanderClone(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	engine := newTestEngine(t, delegate)
	c1 := engine.NewCommander()
	c2 := c1.Clone()
	c1.SetFlowControlToNumber("a", 1)
	c2.SetFlowControlToNumber("b", 2)
	render(t, engine, 0.01, 480)
	if engine.flowControls["a"].AsNumber() != 1 || engine.flowControls["b"].AsNumber() != 2 {
		t.Error("both commanders must reach the engine")
	}
}

func TestFlowControlCommands(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	engine := newTestEngine(t, delegate)
	engine.SetFlowControlToNumber("level.depth", 4)
	engine.SetFlowControlToString("level.biome", "swamp")
	engine.SetFlowControlToNumber("boss", 1)
	render(t, engine, 0.01, 480)
	if len(engine.flowControls) != 3 {
		t.Fatalf("controls = %v", engine.flowControls)
	}
	engine.ClearPrefixedFlowControls("level.")
	render(t, engine, 0.01, 480)
	if _, ok := engine.flowControls["boss"]; !ok || len(engine.flowControls) != 1 {
		t.Errorf("prefix clear left %v", engine.flowControls)
	}
	engine.ClearAllFlowControls()
	render(t, engine, 0.01, 480)
	if len(engine.flowControls) != 0 {
		t.Errorf("clear all left %v", engine.flowControls)
	}
}

// A finished non-looping flow tears itself down.
func TestFinishedFlowGoesAway(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("x.wav", audiotest.NewConstantSource(48000, 1, 4800, 0.5).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, precacheSource))
	engine.StartFlow("X", 1, 0, audio.FadeLinear)
	render(t, engine, 0.05, 480)
	if _, ok := engine.flowVolumes["X"]; !ok {
		t.Fatal("flow should be live while playing")
	}
	render(t, engine, 1.2, 480)
	if _, ok := engine.flowVolumes["X"]; ok {
		t.Error("a finished flow must be torn down")
	}
	// and it can be started again from the top
	engine.StartFlow("X", 1, 0, audio.FadeLinear)
	out := render(t, engine, 0.05, 480)
	silent := true
	for _, s := range out {
		if s != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Error("restarting the finished flow should play again")
	}
}

// Fading a flow out stops it; fading to zero keeps it running silently.
func TestFadeFlowOutVersusTo(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("sine.wav", audiotest.NewSineSource(48000, 1, 48000, 440).Stream(audio.Mono))
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(mustParse(t, loopedSineSource))
	engine.StartFlow("A", 1, 0, audio.FadeLinear)
	render(t, engine, 0.1, 480)

	engine.FadeFlowTo("A", 0, 0.1, audio.FadeLinear)
	render(t, engine, 0.3, 480)
	if _, ok := engine.flowVolumes["A"]; !ok {
		t.Fatal("a flow faded *to* zero keeps running")
	}

	engine.FadeFlowOut("A", 0.1, audio.FadeLinear)
	render(t, engine, 0.3, 480)
	if _, ok := engine.flowVolumes["A"]; ok {
		t.Error("a flow faded *out* stops existing")
	}
}

func TestKillPrefixedFlows(t *testing.T) {
	t.Parallel()

	delegate := audiotest.NewDelegate()
	delegate.AddFile("sine.wav", audiotest.NewSineSource(48000, 1, 48000, 440).Stream(audio.Mono))
	st := mustParse(t, `
sound s
    file "sine.wav"
    length 1
flow battle.intro with loop
    play sound s and wait
flow battle.main with loop
    play sound s and wait
flow town with loop
    play sound s and wait
`)
	engine := newTestEngine(t, delegate)
	engine.ReplaceSoundtrack(st)
	engine.StartFlow("battle.intro", 1, 0, audio.FadeLinear)
	engine.StartFlow("battle.main", 1, 0, audio.FadeLinear)
	engine.StartFlow("town", 1, 0, audio.FadeLinear)
	render(t, engine, 0.05, 480)
	if len(engine.flowVolumes) != 3 {
		t.Fatalf("flows live: %d", len(engine.flowVolumes))
	}
	engine.KillPrefixedFlows("battle.")
	render(t, engine, 0.05, 480)
	if len(engine.flowVolumes) != 1 {
		t.Fatalf("flows live after prefix kill: %v", engine.flowVolumes)
	}
	if _, ok := engine.flowVolumes["town"]; !ok {
		t.Error("town must survive")
	}
}
