// SPDX-License-Identifier: EPL-2.0

package soundtrack

// Soundtrack is an inert description of everything the engine can play: named
// sounds, sequences, and flows. It can be built up incrementally, or replaced
// entirely, cleanly and efficiently.
//
// A Soundtrack value is cheap to copy: the name tables are shared between
// copies, and ParseSource replaces them rather than mutating them in place.
type Soundtrack struct {
	flows     map[string]*Flow
	sequences map[string]*Sequence
	sounds    map[string]*Sound
}

// New returns an empty Soundtrack.
func New() Soundtrack {
	return Soundtrack{
		flows:     map[string]*Flow{},
		sequences: map[string]*Sequence{},
		sounds:    map[string]*Sound{},
	}
}

// FromSource parses a complete soundtrack from source text.
func FromSource(source string) (Soundtrack, error) {
	return New().ParseSource(source)
}

// Flow returns the named flow, or nil.
func (s Soundtrack) Flow(name string) *Flow { return s.flows[name] }

// Sequence returns the named sequence, or nil.
func (s Soundtrack) Sequence(name string) *Sequence { return s.sequences[name] }

// Sound returns the named sound, or nil.
func (s Soundtrack) Sound(name string) *Sound { return s.sounds[name] }

// Flows iterates over all flows.
func (s Soundtrack) Flows(yield func(name string, flow *Flow) bool) {
	for name, flow := range s.flows {
		if !yield(name, flow) {
			return
		}
	}
}

// NumFlows returns the number of flows.
func (s Soundtrack) NumFlows() int { return len(s.flows) }

// Sound references a segment of an audio file. It is the only leaf that
// produces audio. All times are in seconds.
type Sound struct {
	// Name is unique within a soundtrack.
	Name string
	// Path names the file the delegate should open. Defaults to Name.
	Path  string
	Start float64
	End   float64
	// Gain is a fixed linear amplification applied to every playback.
	Gain float64
	// LoopStart/LoopEnd bound the region repeated when a bounded playback
	// outlasts the file. HasLoop gates them.
	HasLoop   bool
	LoopStart float64
	LoopEnd   float64
	// Stream requests that the file be streamed rather than preloaded. If
	// some sounds request streaming and others preloading for the same file,
	// which one wins is undefined.
	Stream bool
}

// SequenceElement is one trigger within a Sequence.
type SequenceElement struct {
	// Start is the trigger offset from the beginning of the sequence.
	Start float64
	// Sound or Sequence names the target; exactly one is set.
	Sound    string
	Sequence string
	// Channel is the mix control sound playback is attributed to.
	Channel string
	// FadeIn is how many seconds of fade-in between starting and full volume.
	FadeIn float64
	// Length is how long, including the fade in, to play at full volume.
	// Negative means "until the sound ends".
	Length float64
	// FadeOut is how many seconds of fade-out after Length.
	FadeOut float64
}

// Sequence is a timed set of triggers with a fixed total length.
type Sequence struct {
	// Name is unique within a soundtrack.
	Name     string
	Length   float64
	Elements []SequenceElement
}

// VisitDirectDependencies calls the handlers with every sound or sequence
// name this sequence directly uses.
func (s *Sequence) VisitDirectDependencies(foundSound, foundSequence func(name string)) {
	for i := range s.Elements {
		e := &s.Elements[i]
		if e.Sound != "" {
			foundSound(e.Sound)
		} else {
			foundSequence(e.Sequence)
		}
	}
}

// CommandKind identifies one node step.
type CommandKind int

const (
	// CmdDone concludes the node without running any more steps.
	CmdDone CommandKind = iota
	// CmdWait suspends the node for Seconds.
	CmdWait
	// CmdPlaySound starts Target playing, even if another instance of it is
	// already playing.
	CmdPlaySound
	// CmdPlaySoundAndWait is CmdPlaySound followed by a wait for the length
	// of the sound.
	CmdPlaySoundAndWait
	CmdPlaySequence
	CmdPlaySequenceAndWait
	// CmdStartNode starts Target in parallel iff it is not already running.
	CmdStartNode
	// CmdRestartNode starts Target, restarting it from the beginning if it
	// is already running.
	CmdRestartNode
	// CmdRestartFlow restarts the flow's starting node.
	CmdRestartFlow
	// CmdSwitchNode concludes this node and restarts Target in its place.
	CmdSwitchNode
	// CmdFadeNodeOut fades Target's volume to zero over Seconds.
	CmdFadeNodeOut
	// CmdSet evaluates Expr and stores the result in the flow control named
	// Target.
	CmdSet
	// CmdGoto jumps to step Index iff Expr's truthiness equals CondSense.
	// An empty Expr is always true. If/else chains compile to these.
	CmdGoto

	// cmdIf and cmdPlaceholder exist only during parsing; flattenCommands
	// eliminates them.
	cmdIf
	cmdPlaceholder
)

// Command is one step of a Node's program.
type Command struct {
	Kind      CommandKind
	Target    string
	Seconds   float64
	Expr      []ExprOp
	CondSense bool
	Index     int

	branches []ifBranch
	fallback []Command
}

type ifBranch struct {
	condition []ExprOp
	commands  []Command
}

// Node is a step-by-step sub-program within a Flow. Name is empty for a
// flow's implicit starting node.
type Node struct {
	Name     string
	Commands []Command
}

// Flow is the top-level unit of playback. At most one instance of a given
// flow runs at a time.
type Flow struct {
	// Name is unique within a soundtrack.
	Name      string
	StartNode *Node
	Nodes     map[string]*Node
	// Loop re-enters the starting node whenever no node of this flow is
	// running ("with loop").
	Loop bool
}

// VisitDirectDependencies calls the handlers with every sound or sequence
// name directly used by any node of this flow.
func (f *Flow) VisitDirectDependencies(foundSound, foundSequence func(name string)) {
	visit := func(n *Node) {
		for i := range n.Commands {
			c := &n.Commands[i]
			switch c.Kind {
			case CmdPlaySound, CmdPlaySoundAndWait:
				foundSound(c.Target)
			case CmdPlaySequence, CmdPlaySequenceAndWait:
				foundSequence(c.Target)
			}
		}
	}
	visit(f.StartNode)
	for _, n := range f.Nodes {
		visit(n)
	}
}

// FindAllSounds returns every Sound used by this flow, directly or through
// sequences. The missing handlers are called exactly once per referenced name
// that is not present in the soundtrack.
func (f *Flow) FindAllSounds(s Soundtrack, missingSound, missingSequence func(name string)) []*Sound {
	foundSounds := map[string]bool{}
	foundSequences := map[string]bool{}
	var pending []string
	foundSound := func(name string) {
		if foundSounds[name] {
			return
		}
		foundSounds[name] = true
		if _, ok := s.sounds[name]; !ok {
			missingSound(name)
		}
	}
	foundSequence := func(name string) {
		if foundSequences[name] {
			return
		}
		foundSequences[name] = true
		pending = append(pending, name)
		if _, ok := s.sequences[name]; !ok {
			missingSequence(name)
		}
	}
	f.VisitDirectDependencies(foundSound, foundSequence)
	for n := 0; n < len(pending); n++ {
		if seq, ok := s.sequences[pending[n]]; ok {
			seq.VisitDirectDependencies(foundSound, foundSequence)
		}
	}
	sounds := make([]*Sound, 0, len(foundSounds))
	for name := range foundSounds {
		if sound, ok := s.sounds[name]; ok {
			sounds = append(sounds, sound)
		}
	}
	return sounds
}
