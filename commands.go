// SPDX-License-Identifier: EPL-2.0

package secondmusic

import (
	"github.com/ik5/secondmusic/audio"
	"github.com/ik5/secondmusic/soundtrack"
)

// DefaultChannel is the name of the default mix control. Every active sound
// is attributed to one mix control, this one unless the soundtrack says
// otherwise, and "all except main" commands exempt it.
const DefaultChannel = "main"

// command is one engine mutation. The closed set of implementations below
// maps 1:1 onto the public methods of Commands.
type command interface {
	apply(e *Engine)
}

// Commands is the uniform command surface shared by Engine, Commander, and
// Transaction: the same methods behave the same everywhere, they only differ
// in when the command reaches the engine.
type Commands struct {
	issue func(cmd command)
}

// BeginTransaction starts a transaction on this target. Commands issued on
// the transaction are buffered locally and delivered as one indivisible
// batch on Commit. lengthHint is your best guess at the number of commands
// the transaction will carry; it is only an optimization hint.
//
// Transactions nest: committing an inner transaction delivers its commands
// into the outer one, atomically from the outer transaction's perspective.
func (c *Commands) BeginTransaction(lengthHint int) *Transaction {
	t := &Transaction{parent: c.issue}
	if lengthHint > 0 {
		t.commands = make([]command, 0, lengthHint)
	}
	t.Commands = Commands{issue: func(cmd command) {
		t.commands = append(t.commands, cmd)
	}}
	return t
}

// ReplaceSoundtrack replaces the active soundtrack. Currently-active nodes,
// sequences, and sounds do their best to play to their conclusion.
//
// If you're replacing one soundtrack with an entirely different one, you
// probably want to fade or stop all flows first. If you're replacing it with
// a variation of the current soundtrack, the replacement is seamless.
func (c *Commands) ReplaceSoundtrack(s soundtrack.Soundtrack) {
	c.issue(cmdReplaceSoundtrack{s})
}

// Precache requests that the given flow's sounds be loaded ahead of time.
//
// Precaches are counted. If you call Precache twice, then Unprecache once,
// the flow is still precached; the second Unprecache releases it.
func (c *Commands) Precache(flowName string) {
	c.issue(cmdPrecache{flowName})
}

// Unprecache undoes a previous Precache. The relevant sounds are purged once
// nothing else needs them.
//
// Commands sent from a given thread are always received in order, so it is
// completely reasonable to call StartFlow immediately followed by Unprecache
// for the same flow.
func (c *Commands) Unprecache(flowName string) {
	c.issue(cmdUnprecache{flowName})
}

// UnprecacheAll undoes every previous Precache. Flows that are currently
// playing keep their sounds in memory.
func (c *Commands) UnprecacheAll() {
	c.issue(cmdUnprecacheAll{})
}

// SetFlowControlToNumber sets a FlowControl to a number.
func (c *Commands) SetFlowControlToNumber(controlName string, value float64) {
	c.issue(cmdSetFlowControl{controlName, soundtrack.Number(value)})
}

// SetFlowControlToString sets a FlowControl to a string.
func (c *Commands) SetFlowControlToString(controlName string, value string) {
	c.issue(cmdSetFlowControl{controlName, soundtrack.String(value)})
}

// ClearFlowControl removes any previous value of a FlowControl.
func (c *Commands) ClearFlowControl(controlName string) {
	c.issue(cmdClearFlowControl{controlName})
}

// ClearPrefixedFlowControls clears all FlowControls whose names start with
// the given prefix.
func (c *Commands) ClearPrefixedFlowControls(controlPrefix string) {
	c.issue(cmdClearPrefixedFlowControls{controlPrefix})
}

// ClearAllFlowControls clears every FlowControl.
func (c *Commands) ClearAllFlowControls() {
	c.issue(cmdClearAllFlowControls{})
}

// FadeMixControlTo fades a mix control to the given volume over the given
// time in seconds.
//
// Use FadeExponential unless you are intermixing correlated signals. Don't
// give a volume above 1.0 unless you are sure it won't cause clipping.
func (c *Commands) FadeMixControlTo(controlName string, targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeMixControlTo{controlName, fadeType, targetVolume, fadeLength})
}

// FadePrefixedMixControlsTo fades all currently existing mix controls whose
// names start with the given prefix. It does not create controls.
func (c *Commands) FadePrefixedMixControlsTo(controlPrefix string, targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadePrefixedMixControlsTo{controlPrefix, fadeType, targetVolume, fadeLength})
}

// FadeAllMixControlsTo fades all currently existing mix controls, including
// main.
func (c *Commands) FadeAllMixControlsTo(targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeAllMixControlsTo{false, fadeType, targetVolume, fadeLength})
}

// FadeAllMixControlsExceptMainTo fades all currently existing mix controls
// except main.
func (c *Commands) FadeAllMixControlsExceptMainTo(targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeAllMixControlsTo{true, fadeType, targetVolume, fadeLength})
}

// FadeMixControlOut fades a mix control to zero and then removes it from
// existence: future "prefixed" and "all" commands will not resuscitate it,
// only a future command naming it directly will.
func (c *Commands) FadeMixControlOut(controlName string, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeMixControlOut{controlName, fadeType, fadeLength})
}

// FadePrefixedMixControlsOut fades out, then removes, all mix controls whose
// names start with the given prefix.
func (c *Commands) FadePrefixedMixControlsOut(controlPrefix string, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadePrefixedMixControlsOut{controlPrefix, fadeType, fadeLength})
}

// FadeAllMixControlsOut fades out, then removes, every mix control,
// including main.
func (c *Commands) FadeAllMixControlsOut(fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeAllMixControlsOut{false, fadeType, fadeLength})
}

// FadeAllMixControlsExceptMainOut fades out, then removes, every mix control
// except main.
func (c *Commands) FadeAllMixControlsExceptMainOut(fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeAllMixControlsOut{true, fadeType, fadeLength})
}

// KillMixControl removes a mix control instantly, as if you yanked an audio
// cable.
func (c *Commands) KillMixControl(controlName string) {
	c.issue(cmdKillMixControl{controlName})
}

// KillPrefixedMixControls instantly removes all mix controls whose names
// start with the given prefix.
func (c *Commands) KillPrefixedMixControls(controlPrefix string) {
	c.issue(cmdKillPrefixedMixControls{controlPrefix})
}

// KillAllMixControls instantly removes every mix control, including main.
func (c *Commands) KillAllMixControls() {
	c.issue(cmdKillAllMixControls{false})
}

// KillAllMixControlsExceptMain instantly removes every mix control except
// main.
func (c *Commands) KillAllMixControlsExceptMain() {
	c.issue(cmdKillAllMixControls{true})
}

// StartFlow starts a flow if it isn't already playing, fading it up from
// zero to the target volume. If the flow is already playing, this acts like
// FadeFlowTo.
func (c *Commands) StartFlow(flowName string, targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdStartFlow{flowName, fadeType, targetVolume, fadeLength})
}

// FadeFlowTo fades a playing flow to the given volume. Flows faded to zero
// keep silently "playing", waiting to be faded back up; use FadeFlowOut if
// that isn't what you want.
func (c *Commands) FadeFlowTo(flowName string, targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeFlowTo{flowName, fadeType, targetVolume, fadeLength})
}

// FadePrefixedFlowsTo fades all currently playing flows whose names start
// with the given prefix.
func (c *Commands) FadePrefixedFlowsTo(flowPrefix string, targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadePrefixedFlowsTo{flowPrefix, fadeType, targetVolume, fadeLength})
}

// FadeAllFlowsTo fades all currently playing flows.
func (c *Commands) FadeAllFlowsTo(targetVolume, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeAllFlowsTo{fadeType, targetVolume, fadeLength})
}

// FadeFlowOut fades a playing flow to zero volume and stops it when the fade
// completes.
func (c *Commands) FadeFlowOut(flowName string, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeFlowOut{flowName, fadeType, fadeLength})
}

// FadePrefixedFlowsOut fades out, then stops, all currently playing flows
// whose names start with the given prefix.
func (c *Commands) FadePrefixedFlowsOut(flowPrefix string, fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadePrefixedFlowsOut{flowPrefix, fadeType, fadeLength})
}

// FadeAllFlowsOut fades out, then stops, every currently playing flow.
func (c *Commands) FadeAllFlowsOut(fadeLength float64, fadeType audio.FadeType) {
	c.issue(cmdFadeAllFlowsOut{fadeType, fadeLength})
}

// KillFlow stops a flow instantly. The flow becomes eligible to be started
// from the beginning again.
func (c *Commands) KillFlow(flowName string) {
	c.issue(cmdKillFlow{flowName})
}

// KillPrefixedFlows instantly stops all currently playing flows whose names
// start with the given prefix.
func (c *Commands) KillPrefixedFlows(flowPrefix string) {
	c.issue(cmdKillPrefixedFlows{flowPrefix})
}

// KillAllFlows instantly stops every currently playing flow.
func (c *Commands) KillAllFlows() {
	c.issue(cmdKillAllFlows{})
}

// Transaction buffers commands locally until Commit delivers them all at
// once, atomically, with neither a gap nor any interleaving with any other
// commands. Abort (or simply dropping the transaction) delivers nothing.
type Transaction struct {
	Commands
	parent   func(cmd command)
	commands []command
	closed   bool
}

// Commit delivers the buffered commands as one indivisible batch.
func (t *Transaction) Commit() {
	if t.closed {
		return
	}
	t.closed = true
	t.parent(cmdTransaction{t.commands})
}

// Abort discards the buffered commands.
func (t *Transaction) Abort() {
	t.closed = true
	t.commands = nil
}

// Commander sends commands to an Engine that belongs to some other thread.
// It is cheap, and any number of Commanders may share one Engine.
type Commander struct {
	Commands
	queue *commandQueue
}

func newCommander(queue *commandQueue) *Commander {
	c := &Commander{queue: queue}
	c.Commands = Commands{issue: func(cmd command) {
		queue.push(batch{cmd})
	}}
	return c
}

// Clone makes another, independent Commander that sends commands to the same
// underlying Engine.
func (c *Commander) Clone() *Commander {
	return newCommander(c.queue)
}

// The command types. Names and shapes mirror the public methods.

type cmdTransaction struct{ commands []command }
type cmdReplaceSoundtrack struct{ soundtrack soundtrack.Soundtrack }
type cmdPrecache struct{ flowName string }
type cmdUnprecache struct{ flowName string }
type cmdUnprecacheAll struct{}
type cmdSetFlowControl struct {
	controlName string
	value       soundtrack.Value
}
type cmdClearFlowControl struct{ controlName string }
type cmdClearPrefixedFlowControls struct{ controlPrefix string }
type cmdClearAllFlowControls struct{}
type cmdFadeMixControlTo struct {
	controlName  string
	fadeType     audio.FadeType
	targetVolume float64
	fadeLength   float64
}
type cmdFadePrefixedMixControlsTo struct {
	controlPrefix string
	fadeType      audio.FadeType
	targetVolume  float64
	fadeLength    float64
}
type cmdFadeAllMixControlsTo struct {
	exceptMain   bool
	fadeType     audio.FadeType
	targetVolume float64
	fadeLength   float64
}
type cmdFadeMixControlOut struct {
	controlName string
	fadeType    audio.FadeType
	fadeLength  float64
}
type cmdFadePrefixedMixControlsOut struct {
	controlPrefix string
	fadeType      audio.FadeType
	fadeLength    float64
}
type cmdFadeAllMixControlsOut struct {
	exceptMain bool
	fadeType   audio.FadeType
	fadeLength float64
}
type cmdKillMixControl struct{ controlName string }
type cmdKillPrefixedMixControls struct{ controlPrefix string }
type cmdKillAllMixControls struct{ exceptMain bool }
type cmdStartFlow struct {
	flowName     string
	fadeType     audio.FadeType
	targetVolume float64
	fadeLength   float64
}
type cmdFadeFlowTo struct {
	flowName     string
	fadeType     audio.FadeType
	targetVolume float64
	fadeLength   float64
}
type cmdFadePrefixedFlowsTo struct {
	flowPrefix   string
	fadeType     audio.FadeType
	targetVolume float64
	fadeLength   float64
}
type cmdFadeAllFlowsTo struct {
	fadeType     audio.FadeType
	targetVolume float64
	fadeLength   float64
}
type cmdFadeFlowOut struct {
	flowName   string
	fadeType   audio.FadeType
	fadeLength float64
}
type cmdFadePrefixedFlowsOut struct {
	flowPrefix string
	fadeType   audio.FadeType
	fadeLength float64
}
type cmdFadeAllFlowsOut struct {
	fadeType   audio.FadeType
	fadeLength float64
}
type cmdKillFlow struct{ flowName string }
type cmdKillPrefixedFlows struct{ flowPrefix string }
type cmdKillAllFlows struct{}
