// SPDX-License-Identifier: EPL-2.0

package soundtrack

import (
	"strconv"
	"strings"
)

// ParseSource parses soundtrack source text and merges it over the receiver:
// new elements are added, same-named elements are replaced. The receiver is
// never modified; on success the merged soundtrack is returned, on error the
// receiver is still the last good state.
func (s Soundtrack) ParseSource(source string) (Soundtrack, error) {
	p := &parser{out: Soundtrack{
		flows:     cloneMap(s.flows),
		sequences: cloneMap(s.sequences),
		sounds:    cloneMap(s.sounds),
	}}
	roots, err := parseDin(source)
	if err != nil {
		return s, err
	}
	timebases := newTimebaseCollection()
	for _, node := range roots {
		switch node.items[0] {
		case "timebase":
			err = timebases.parseTimebaseNode(node)
		case "sound":
			err = p.parseTopLevelSound(node, timebases)
		case "sequence":
			err = p.parseTopLevelSequence(node, timebases)
		case "flow":
			err = p.parseFlow(node, timebases)
		case "node":
			err = errLine(node.lineno, "nodes may only exist inside flows (check indentation)")
		default:
			err = errLine(node.lineno, "unknown top-level element "+strconv.Quote(node.items[0]))
		}
		if err != nil {
			return s, err
		}
	}
	return p.out, nil
}

func cloneMap[V any](m map[string]*V) map[string]*V {
	out := make(map[string]*V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type parser struct {
	out Soundtrack
}

func namedElement(node *dinNode, what string) (string, error) {
	if len(node.items) != 2 {
		return "", errLine(node.lineno, what+" element must have a name")
	}
	return node.items[1], nil
}

func (p *parser) parseTopLevelSound(node *dinNode, timebases *timebaseCollection) error {
	name, err := namedElement(node, "sound")
	if err != nil {
		return err
	}
	sound, err := p.parseSound(node, timebases, name)
	if err != nil {
		return err
	}
	p.out.sounds[name] = sound
	return nil
}

func (p *parser) parseTopLevelSequence(node *dinNode, timebases *timebaseCollection) error {
	name, err := namedElement(node, "sequence")
	if err != nil {
		return err
	}
	sequence, err := p.parseSequence(node, timebases, name)
	if err != nil {
		return err
	}
	p.out.sequences[name] = sequence
	return nil
}

var soundTimeKeywords = []string{"timebase", "start", "end", "length", "loop_start", "loop_end"}

// parseSound parses a sound's children. The node may be an "outline sound"
// at the top level with its own name, or an inline one with a generated name;
// either way the name arrives from outside.
func (p *parser) parseSound(node *dinNode, timebases *timebaseCollection, name string) (*Sound, error) {
	timebases = timebases.makeChild()
	stream, err := node.consumeFlagChild("stream")
	if err != nil {
		return nil, err
	}
	path := ""
	if fileNode, err := node.consumeOptionalPrefixedChild("file"); err != nil {
		return nil, err
	} else if fileNode != nil {
		path, err = fileNode.valueAfter()
		if err != nil {
			return nil, err
		}
		if strings.ContainsRune(path, 0) {
			return nil, errLine(fileNode.lineno, "null characters are not allowed in paths")
		}
	}
	gain := 1.0
	if gainNode, err := node.consumeOptionalPrefixedChild("gain"); err != nil {
		return nil, err
	} else if gainNode != nil {
		raw, err := gainNode.valueAfter()
		if err != nil {
			return nil, err
		}
		gain, err = strconv.ParseFloat(raw, 64)
		if err != nil || gain < 0 {
			return nil, errLine(gainNode.lineno, "gain must be a non-negative number")
		}
	}
	offset := 0.0
	if offsetNode, err := node.consumeOptionalPrefixedChild("offset"); err != nil {
		return nil, err
	} else if offsetNode != nil {
		raw, err := offsetNode.valueAfter()
		if err != nil {
			return nil, err
		}
		offset, err = strconv.ParseFloat(raw, 64)
		if err != nil || offset < 0 {
			return nil, errLine(offsetNode.lineno, "that doesn't appear to be a valid number")
		}
	}
	times := map[string]float64{}
	for _, child := range node.consumeDesignatedChildren(soundTimeKeywords) {
		if child.items[0] == "timebase" {
			if err := timebases.parseTimebaseNode(child); err != nil {
				return nil, err
			}
			continue
		}
		if _, dup := times[child.items[0]]; dup {
			return nil, errLine(child.lineno, "only one "+strconv.Quote(child.items[0])+" parameter allowed")
		}
		t, err := timebases.parseTimeNode(child)
		if err != nil {
			return nil, err
		}
		times[child.items[0]] = t
	}
	if err := node.finishParsingChildren(); err != nil {
		return nil, err
	}
	start := offset
	if t, ok := times["start"]; ok {
		start = t + offset
	}
	end := -1.0
	endTime, hasEnd := times["end"]
	length, hasLength := times["length"]
	switch {
	case hasEnd && hasLength:
		return nil, errLine(node.lineno, "only one of \"end\" and \"length\" may be specified, not both")
	case hasEnd:
		end = endTime + offset
	case hasLength:
		end = start + length
	}
	hasLoop := false
	loopStart, loopEnd := 0.0, 0.0
	ls, hasLS := times["loop_start"]
	le, hasLE := times["loop_end"]
	if hasLS != hasLE {
		return nil, errLine(node.lineno, "\"loop_start\" and \"loop_end\" must be specified together")
	}
	if hasLS {
		if le <= ls {
			return nil, errLine(node.lineno, "\"loop_end\" must come after \"loop_start\"")
		}
		hasLoop, loopStart, loopEnd = true, ls, le
	}
	if path == "" {
		if strings.ContainsRune(name, 0) {
			return nil, errLine(node.lineno, "sound "+strconv.Quote(name)+" has a null character in its name and no explicit path")
		}
		path = name
	}
	return &Sound{
		Name:      name,
		Path:      path,
		Start:     start,
		End:       end,
		Gain:      gain,
		HasLoop:   hasLoop,
		LoopStart: loopStart,
		LoopEnd:   loopEnd,
		Stream:    stream,
	}, nil
}

// parseSequence parses a sequence's children; like parseSound, the name
// arrives from outside.
func (p *parser) parseSequence(node *dinNode, timebases *timebaseCollection, name string) (*Sequence, error) {
	timebases = timebases.makeChild()
	lengthNode, err := node.consumeRequiredPrefixedChild("length")
	if err != nil {
		return nil, err
	}
	length, err := timebases.parseTimeNode(lengthNode)
	if err != nil {
		return nil, err
	}
	var elements []SequenceElement
	for _, child := range node.consumeDesignatedChildren([]string{"play", "timebase"}) {
		if child.items[0] == "timebase" {
			if err := timebases.parseTimebaseNode(child); err != nil {
				return nil, err
			}
			continue
		}
		element, err := p.parseSequenceElement(child, timebases, name)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	if err := node.finishParsingChildren(); err != nil {
		return nil, err
	}
	// stable insertion sort keeps equal-offset elements in source order
	for i := 1; i < len(elements); i++ {
		for j := i; j > 0 && elements[j].Start < elements[j-1].Start; j-- {
			elements[j], elements[j-1] = elements[j-1], elements[j]
		}
	}
	return &Sequence{Name: name, Length: length, Elements: elements}, nil
}

var soundElementTimeKeywords = []string{"timebase", "at", "for", "until", "fade_in", "fade_out"}
var sequenceElementTimeKeywords = []string{"timebase", "at"}

// playModifierKeywords are modifiers that may trail a sequence "play" line
// inline instead of appearing as indented children.
var playModifierKeywords = []string{"at", "for", "until", "fade_in", "fade_out", "channel"}

func isPlayModifier(token string) bool {
	for _, k := range playModifierKeywords {
		if token == k {
			return true
		}
	}
	return false
}

// splitInlineModifiers turns the trailing tokens of a "play" line into
// synthetic child-like nodes, so "play sound a at 2 channel pads" means the
// same as the indented form.
func splitInlineModifiers(items []string, lineno int) ([]*dinNode, error) {
	var nodes []*dinNode
	i := 0
	for i < len(items) {
		if !isPlayModifier(items[i]) {
			return nil, errLine(lineno, "unexpected "+strconv.Quote(items[i])+" in \"play\" element (do you need quotation marks?)")
		}
		j := i + 1
		for j < len(items) && !isPlayModifier(items[j]) {
			j++
		}
		nodes = append(nodes, &dinNode{items: items[i:j], lineno: lineno})
		i = j
	}
	return nodes, nil
}

func (p *parser) parseSequenceElement(node *dinNode, timebases *timebaseCollection, sequenceName string) (SequenceElement, error) {
	var none SequenceElement
	if len(node.items) < 2 || (node.items[1] != "sound" && node.items[1] != "sequence") {
		return none, errLine(node.lineno, "next element after \"play\" must be \"sequence\" or \"sound\"")
	}
	elementType := node.items[1]
	name := ""
	rest := node.items[2:]
	if len(rest) > 0 && !isPlayModifier(rest[0]) {
		name = rest[0]
		rest = rest[1:]
	}
	inline, err := splitInlineModifiers(rest, node.lineno)
	if err != nil {
		return none, err
	}
	timeKeywords := soundElementTimeKeywords
	if elementType == "sequence" {
		timeKeywords = sequenceElementTimeKeywords
	}
	timebases = timebases.makeChild()
	channel := defaultChannelName
	channelNode, err := node.consumeOptionalPrefixedChild("channel")
	if err != nil {
		return none, err
	}
	modifiers := node.consumeDesignatedChildren(timeKeywords)
	for _, m := range inline {
		if m.items[0] == "channel" {
			if channelNode != nil {
				return none, errLine(m.lineno, "only one \"channel\" parameter allowed")
			}
			channelNode = m
		} else {
			modifiers = append(modifiers, m)
		}
	}
	if channelNode != nil {
		if elementType != "sound" {
			return none, errLine(channelNode.lineno, "only sounds have a \"channel\"")
		}
		channel, err = channelNode.valueAfter()
		if err != nil {
			return none, err
		}
	}
	times := map[string]float64{}
	for _, child := range modifiers {
		if child.items[0] == "timebase" {
			if err := timebases.parseTimebaseNode(child); err != nil {
				return none, err
			}
			continue
		}
		keyword := child.items[0]
		if elementType == "sequence" && keyword != "at" {
			return none, errLine(child.lineno, strconv.Quote(keyword)+" is not valid when playing a sequence")
		}
		if _, dup := times[keyword]; dup {
			return none, errLine(child.lineno, "only one "+strconv.Quote(keyword)+" parameter allowed")
		}
		t, err := timebases.parseTimeNode(child)
		if err != nil {
			return none, err
		}
		times[keyword] = t
	}
	// Inline definitions: no name means the body is whatever children are
	// left, under a generated name.
	anonymous := name == ""
	if anonymous == (len(node.children) == 0) {
		return none, errLine(node.lineno, "\"play\" must either specify the name of the "+elementType+" to be played, or provide an inline definition for it (not both nor neither!)")
	}
	if anonymous {
		name = sequenceName + "[" + strconv.Itoa(node.lineno) + "]"
	}
	if anonymous {
		if elementType == "sound" {
			sound, err := p.parseSound(node, timebases, name)
			if err != nil {
				return none, err
			}
			p.out.sounds[name] = sound
		} else {
			sequence, err := p.parseSequence(node, timebases, name)
			if err != nil {
				return none, err
			}
			p.out.sequences[name] = sequence
		}
	} else if err := node.finishParsingChildren(); err != nil {
		return none, err
	}
	start := times["at"]
	if elementType == "sequence" {
		return SequenceElement{Start: start, Sequence: name}, nil
	}
	fadeIn := times["fade_in"]
	length := -1.0
	forTime, hasFor := times["for"]
	untilTime, hasUntil := times["until"]
	switch {
	case hasFor && hasUntil:
		return none, errLine(node.lineno, "only one of \"for\" and \"until\" may be specified, not both")
	case hasFor:
		length = forTime
	case hasUntil:
		length = max(untilTime-start, 0)
	}
	fadeOut := 0.0
	if fo, ok := times["fade_out"]; ok {
		fadeOut = fo
		if length >= 0 {
			length = max(length-fadeOut, 0)
		}
	}
	return SequenceElement{
		Start:   start,
		Sound:   name,
		Channel: channel,
		FadeIn:  fadeIn,
		Length:  length,
		FadeOut: fadeOut,
	}, nil
}

// defaultChannelName mirrors the engine's DefaultChannel; duplicated here so
// the data model does not import the engine.
const defaultChannelName = "main"

// parseFlowCommandTokens parses a single-line node step. Returns (nil, nil)
// for an unrecognized leading keyword so the caller can report context.
func parseFlowCommandTokens(tokens []string, timebases *timebaseCollection) (*Command, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	switch tokens[0] {
	case "done":
		if len(tokens) != 1 {
			return nil, &ParseError{Message: "nothing is allowed after \"done\""}
		}
		return &Command{Kind: CmdDone}, nil
	case "wait":
		howLong, err := timebases.parseTime(tokens)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: CmdWait, Seconds: howLong}, nil
	case "play":
		if len(tokens) < 2 || (tokens[1] != "sound" && tokens[1] != "sequence") {
			return nil, &ParseError{Message: "next element after \"play\" must be \"sequence\" or \"sound\""}
		}
		if len(tokens) < 3 {
			return nil, &ParseError{Message: "next element after " + strconv.Quote(tokens[1]) + " must be the name of the " + tokens[1] + " to play"}
		}
		target := tokens[2]
		andWait := false
		switch {
		case len(tokens) == 3:
		case len(tokens) == 5 && tokens[3] == "and" && tokens[4] == "wait":
			andWait = true
		default:
			return nil, &ParseError{Message: "the only thing allowed after the name of the sequence or sound to play is the elements \"and wait\" (do you need quotation marks?)"}
		}
		kind := CmdPlaySound
		switch {
		case tokens[1] == "sound" && andWait:
			kind = CmdPlaySoundAndWait
		case tokens[1] == "sequence" && !andWait:
			kind = CmdPlaySequence
		case tokens[1] == "sequence" && andWait:
			kind = CmdPlaySequenceAndWait
		}
		return &Command{Kind: kind, Target: target}, nil
	case "start", "restart", "switch", "stop":
		switch {
		case len(tokens) >= 2 && tokens[1] == "node":
			if len(tokens) < 3 {
				return nil, &ParseError{Message: "next element after \"node\" must be the name of the node to " + tokens[0]}
			}
			if len(tokens) != 3 {
				return nil, &ParseError{Message: "nothing is allowed after the node name (do you need quotation marks?)"}
			}
			switch tokens[0] {
			case "start":
				return &Command{Kind: CmdStartNode, Target: tokens[2]}, nil
			case "restart":
				return &Command{Kind: CmdRestartNode, Target: tokens[2]}, nil
			case "switch":
				return &Command{Kind: CmdSwitchNode, Target: tokens[2]}, nil
			}
			return nil, &ParseError{Message: "stop is not allowed because it will sound bad (if you really want an abrupt cutoff, try `fade NodeName over 0`)"}
		case len(tokens) >= 2 && tokens[1] == "starting":
			if tokens[0] != "restart" {
				return nil, &ParseError{Message: "next element after " + strconv.Quote(tokens[0]) + " must be \"node\""}
			}
			if len(tokens) != 3 || tokens[2] != "node" {
				return nil, &ParseError{Message: "\"restart starting\" must be followed by \"node\" and nothing else"}
			}
			return &Command{Kind: CmdRestartFlow}, nil
		case len(tokens) >= 2:
			return nil, &ParseError{Message: "invalid element " + strconv.Quote(tokens[1]) + ", next element after " + strconv.Quote(tokens[0]) + " must be \"node\" or \"starting\""}
		default:
			return nil, &ParseError{Message: strconv.Quote(tokens[0]) + " must be followed by \"node\" or \"starting\""}
		}
	case "fade":
		if len(tokens) < 2 || tokens[1] != "node" {
			return nil, &ParseError{Message: "next element after \"fade\" must be \"node\""}
		}
		if len(tokens) < 3 {
			return nil, &ParseError{Message: "next element after \"node\" must be the name of the node to fade"}
		}
		target := tokens[2]
		if len(tokens) < 4 || tokens[3] != "over" {
			return nil, &ParseError{Message: "next element after node name must be \"over\""}
		}
		length, err := timebases.parseTime(tokens[3:])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: CmdFadeNodeOut, Target: target, Seconds: length}, nil
	case "set":
		if len(tokens) < 2 {
			return nil, &ParseError{Message: "next element after \"set\" must be the name of the flow control to set"}
		}
		target := tokens[1]
		if len(tokens) < 3 || tokens[2] != "to" {
			return nil, &ParseError{Message: "next element after the control name must be \"to\""}
		}
		expr, err := ParseExpression(tokens[3:])
		if err != nil {
			return nil, err
		}
		return &Command{Kind: CmdSet, Target: target, Expr: expr}, nil
	case "if":
		// Inline if with no children.
		condition, rest, err := parseCondition(tokens[1:])
		if err != nil {
			return nil, err
		}
		command, err := parseFlowCommandTokens(rest, timebases)
		if err != nil {
			return nil, err
		}
		if command == nil {
			return nil, &ParseError{Message: "there needs to be a command after the \"then\""}
		}
		return &Command{
			Kind:     cmdIf,
			branches: []ifBranch{{condition: condition, commands: []Command{*command}}},
		}, nil
	case "else":
		return nil, &ParseError{Message: "else is not allowed here (try breaking it onto its own line)"}
	case "elseif":
		return nil, &ParseError{Message: "elseif is not allowed here (try breaking it onto its own line)"}
	}
	return nil, nil
}

// parseNodeChildCode parses the command list forming a node's body.
func (p *parser) parseNodeChildCode(node *dinNode, timebases *timebaseCollection) ([]Command, error) {
	timebases = timebases.makeChild()
	var commands []Command
	for _, child := range node.consumeChildren() {
		if child.items[0] == "timebase" {
			if err := timebases.parseTimebaseNode(child); err != nil {
				return nil, err
			}
			continue
		}
		if child.items[0] == "node" {
			return nil, errLine(child.lineno, "nodes cannot be nested")
		}
		command, handled, err := p.parseFlowCommandNode(child, timebases, commands)
		if err != nil {
			return nil, err
		}
		if !handled {
			return nil, errLine(child.lineno, "unknown node element "+strconv.Quote(child.items[0]))
		}
		if command != nil {
			commands = append(commands, *command)
		}
	}
	return commands, nil
}

// parseIfBody parses the body of an if/elseif/else: either inline after the
// "then", or the indented children.
func (p *parser) parseIfBody(node *dinNode, rest []string, timebases *timebaseCollection) ([]Command, error) {
	if len(rest) > 0 {
		if len(node.children) != 0 {
			return nil, errLine(node.lineno, node.items[0]+" can have an inline body (right after the \"then\") or children (indented lines afterward) but not both")
		}
		command, err := parseFlowCommandTokens(rest, timebases)
		if err != nil {
			return nil, at(node.lineno, err)
		}
		if command == nil {
			return nil, errLine(node.lineno, "unknown command after \"then\"")
		}
		return []Command{*command}, nil
	}
	return p.parseNodeChildCode(node, timebases)
}

// parseFlowCommandNode parses one child of a node (or of a flow's inline
// starting node). It returns the command to append (nil for an else/elseif
// folded into the preceding if) and whether the element was recognized.
func (p *parser) parseFlowCommandNode(node *dinNode, timebases *timebaseCollection, commands []Command) (*Command, bool, error) {
	last := func() *Command {
		if len(commands) == 0 {
			return nil
		}
		return &commands[len(commands)-1]
	}
	switch node.items[0] {
	case "if":
		condition, rest, err := parseCondition(node.items[1:])
		if err != nil {
			return nil, false, at(node.lineno, err)
		}
		body, err := p.parseIfBody(node, rest, timebases)
		if err != nil {
			return nil, false, err
		}
		return &Command{
			Kind:     cmdIf,
			branches: []ifBranch{{condition: condition, commands: body}},
		}, true, nil
	case "else":
		lastCmd := last()
		if lastCmd == nil || lastCmd.Kind != cmdIf {
			return nil, false, errLine(node.lineno, "\"else\" without matching \"if\" (check indentation)")
		}
		if len(node.items) > 1 && node.items[1] == "if" {
			condition, rest, err := parseCondition(node.items[2:])
			if err != nil {
				return nil, false, at(node.lineno, err)
			}
			body, err := p.parseIfBody(node, rest, timebases)
			if err != nil {
				return nil, false, err
			}
			lastCmd.branches = append(lastCmd.branches, ifBranch{condition: condition, commands: body})
			return nil, true, nil
		}
		body, err := p.parseIfBody(node, nil, timebases)
		if err != nil {
			return nil, false, err
		}
		if len(lastCmd.fallback) != 0 {
			return nil, false, errLine(node.lineno, "only one \"else\" is allowed for a given \"if\" chain (check indentation)")
		}
		if len(body) == 0 {
			return nil, false, errLine(node.lineno, "\"else\" must contain at least one command (check indentation or delete this line)")
		}
		lastCmd.fallback = body
		return nil, true, nil
	case "elseif":
		lastCmd := last()
		if lastCmd == nil || lastCmd.Kind != cmdIf {
			return nil, false, errLine(node.lineno, "\"elseif\" without matching \"if\" (check indentation)")
		}
		condition, rest, err := parseCondition(node.items[1:])
		if err != nil {
			return nil, false, at(node.lineno, err)
		}
		body, err := p.parseIfBody(node, rest, timebases)
		if err != nil {
			return nil, false, err
		}
		lastCmd.branches = append(lastCmd.branches, ifBranch{condition: condition, commands: body})
		return nil, true, nil
	case "play":
		if len(node.children) > 0 {
			return p.parseInlinePlayCommand(node, timebases)
		}
	}
	command, err := parseFlowCommandTokens(node.items, timebases)
	if err != nil {
		return nil, false, at(node.lineno, err)
	}
	if command == nil {
		return nil, false, nil
	}
	if len(node.children) != 0 {
		return nil, false, errLine(node.lineno, "this element must have no children")
	}
	return command, true, nil
}

// parseInlinePlayCommand handles "play sound"/"play sequence" steps that
// carry an inline definition instead of a name.
func (p *parser) parseInlinePlayCommand(node *dinNode, timebases *timebaseCollection) (*Command, bool, error) {
	items := node.items
	if len(items) < 2 || (items[1] != "sound" && items[1] != "sequence") {
		return nil, false, errLine(node.lineno, "next element after \"play\" must be \"sequence\" or \"sound\"")
	}
	andWait := false
	switch {
	case len(items) == 2:
	case len(items) == 4 && items[2] == "and" && items[3] == "wait":
		andWait = true
	default:
		return nil, false, errLine(node.lineno, "an inline \"play\" may be followed only by \"and wait\"")
	}
	name := "[" + strconv.Itoa(node.lineno) + "]"
	if items[1] == "sound" {
		sound, err := p.parseSound(node, timebases, name)
		if err != nil {
			return nil, false, err
		}
		p.out.sounds[name] = sound
		kind := CmdPlaySound
		if andWait {
			kind = CmdPlaySoundAndWait
		}
		return &Command{Kind: kind, Target: name}, true, nil
	}
	sequence, err := p.parseSequence(node, timebases, name)
	if err != nil {
		return nil, false, err
	}
	p.out.sequences[name] = sequence
	kind := CmdPlaySequence
	if andWait {
		kind = CmdPlaySequenceAndWait
	}
	return &Command{Kind: kind, Target: name}, true, nil
}

func (p *parser) parseNode(dnode *dinNode, timebases *timebaseCollection) (*Node, error) {
	name, err := namedElement(dnode, "node")
	if err != nil {
		return nil, err
	}
	commands, err := p.parseNodeChildCode(dnode, timebases)
	if err != nil {
		return nil, err
	}
	if err := dnode.finishParsingChildren(); err != nil {
		return nil, err
	}
	return &Node{Name: name, Commands: commands}, nil
}

func (p *parser) parseFlow(node *dinNode, timebases *timebaseCollection) error {
	loop := false
	var name string
	switch {
	case len(node.items) == 2:
		name = node.items[1]
	case len(node.items) == 4 && node.items[2] == "with" && node.items[3] == "loop":
		name = node.items[1]
		loop = true
	default:
		return errLine(node.lineno, "flow element must have a name, optionally followed by \"with loop\"")
	}
	timebases = timebases.makeChild()
	nodes := map[string]*Node{}
	if prev := p.out.flows[name]; prev != nil {
		for k, v := range prev.Nodes {
			nodes[k] = v
		}
	}
	startNode := &Node{}
	for _, child := range node.consumeChildren() {
		switch {
		case child.items[0] == "timebase":
			if err := timebases.parseTimebaseNode(child); err != nil {
				return err
			}
		case child.items[0] == "node":
			n, err := p.parseNode(child, timebases)
			if err != nil {
				return err
			}
			flattenCommands(&n.Commands)
			nodes[n.Name] = n
		default:
			command, handled, err := p.parseFlowCommandNode(child, timebases, startNode.Commands)
			if err != nil {
				return err
			}
			if !handled {
				return errLine(child.lineno, "unknown flow element "+strconv.Quote(child.items[0]))
			}
			if command != nil {
				startNode.Commands = append(startNode.Commands, *command)
			}
		}
	}
	flattenCommands(&startNode.Commands)
	p.out.flows[name] = &Flow{Name: name, StartNode: startNode, Nodes: nodes, Loop: loop}
	return nil
}

// flattenCommands lowers if/elseif/else chains into conditional gotos so the
// interpreter only ever sees straight-line code with jumps.
func flattenCommands(commands *[]Command) {
	n := 0
	for n < len(*commands) {
		if (*commands)[n].Kind != cmdIf {
			n++
			continue
		}
		eyeEff := (*commands)[n]
		*commands = append((*commands)[:n], (*commands)[n+1:]...)
		insertFlattenedIf(commands, n, eyeEff.branches, eyeEff.fallback)
	}
}

// insertFlattenedIf performs one level of flattening; flattenCommands runs
// the steamroller over whatever it inserts.
func insertFlattenedIf(commands *[]Command, insertionPoint int, branches []ifBranch, fallback []Command) {
	bufferSize := len(branches)*2 + len(fallback)
	for _, b := range branches {
		bufferSize += len(b.commands)
	}
	toInsert := make([]Command, 0, bufferSize)
	exitGotoPositions := make([]int, 0, len(branches))
	for _, branch := range branches {
		conditionalGotoPosition := len(toInsert)
		toInsert = append(toInsert, Command{Kind: cmdPlaceholder})
		sub := branch.commands
		for i := range sub {
			if sub[i].Kind == CmdGoto {
				sub[i].Index += insertionPoint + len(toInsert)
			}
		}
		toInsert = append(toInsert, sub...)
		exitGotoPositions = append(exitGotoPositions, len(toInsert))
		toInsert = append(toInsert, Command{Kind: cmdPlaceholder})
		toInsert[conditionalGotoPosition] = Command{
			Kind:      CmdGoto,
			Expr:      branch.condition,
			CondSense: false,
			Index:     len(toInsert) + insertionPoint,
		}
	}
	for i := range fallback {
		if fallback[i].Kind == CmdGoto {
			fallback[i].Index += insertionPoint + len(toInsert)
		}
	}
	toInsert = append(toInsert, fallback...)
	exitPosition := len(toInsert) + insertionPoint
	for _, pos := range exitGotoPositions {
		toInsert[pos] = Command{Kind: CmdGoto, CondSense: true, Index: exitPosition}
	}
	for i := range *commands {
		c := &(*commands)[i]
		if c.Kind == CmdGoto && c.Index > insertionPoint {
			c.Index += len(toInsert) - 1
		}
	}
	out := make([]Command, 0, len(*commands)+len(toInsert))
	out = append(out, (*commands)[:insertionPoint]...)
	out = append(out, toInsert...)
	out = append(out, (*commands)[insertionPoint:]...)
	*commands = out
}
