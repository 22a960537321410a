package cadence

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Save writes the project in its line-oriented textual form: resources
// first (with inline binary payloads for non-external ones), then
// every node with its edges, parameters, resource links and metadata.
func (e *Engine) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "; cadence project\n")
	fmt.Fprintf(bw, "; session %s\n", e.session)

	resIDs := make([]uint32, 0, len(e.resources))
	for id := range e.resources {
		resIDs = append(resIDs, id)
	}
	sort.Slice(resIDs, func(i, j int) bool { return resIDs[i] < resIDs[j] })

	for _, id := range resIDs {
		h := e.resources[id]

		if path, external := h.Path(); external {
			fmt.Fprintf(bw, "res %d %s external %q\n", id, h.KindTag(), path)
			continue
		}

		var payload []byte
		h.Read(func(r Resource) { payload = r.Save() })

		fmt.Fprintf(bw, "res %d %s internal %d\n", id, h.KindTag(), len(payload))
		bw.Write(payload)
		bw.WriteByte('\n')
	}

	bw.WriteByte('\n')

	for _, id := range e.order() {
		inst := e.nodes[id]

		fmt.Fprintf(bw, "node %d %s\n", id, inst.ctor)

		for i := range inst.inputs {
			bw.WriteString("in")
			for _, ref := range inst.inputs[i].sources {
				fmt.Fprintf(bw, " %d.%d", ref.Node, ref.Output)
			}
			bw.WriteByte('\n')
		}

		if tf := inst.tl; tf != nil {
			fmt.Fprintf(bw, "tl %d %d %d\n", tf.Position, tf.StartOffset, tf.EndOffset)
		}

		for i := range inst.params {
			fmt.Fprintf(bw, "param %s\n", inst.params[i].value.Encode())
		}

		for _, slot := range inst.node.ResourceSlots() {
			h := inst.node.Resource(slot.Name)
			if linked, ok := e.resources[h.ID()]; !h.IsEmpty() && ok && linked.Same(h) {
				fmt.Fprintf(bw, "r %s %d\n", slot.Name, h.ID())
			} else {
				fmt.Fprintf(bw, "r %s\n", slot.Name)
			}
		}

		metaKeys := inst.MetadataKeys()
		sort.Strings(metaKeys)
		for _, key := range metaKeys {
			fmt.Fprintf(bw, "meta %s %s\n", key, inst.metadata[key].Encode())
		}

		bw.WriteByte('\n')
	}

	return bw.Flush()
}

// SaveFile writes the project to a file.
func (e *Engine) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.Save(f)
}

// Load replaces the graph and resource registry with the contents of a
// project file. External resource paths resolve relative to the
// project's directory. Transport position and playback state are
// retained.
func (e *Engine) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := e.load(data, filepath.Dir(path)); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	e.log.Info().Str("path", path).
		Int("nodes", len(e.nodes)).
		Int("resources", len(e.resources)).
		Msg("project loaded")

	if e.metrics != nil {
		e.metrics.OnProjectLoaded(len(e.nodes), len(e.resources))
	}

	return nil
}

// projectScanner walks the raw file bytes line by line while still
// allowing exact-length binary payload reads between lines. Lines may
// end in \n or \r\n.
type projectScanner struct {
	data []byte
	pos  int
	line int
}

func (s *projectScanner) nextLine() (string, bool) {
	if s.pos >= len(s.data) {
		return "", false
	}

	start := s.pos
	for s.pos < len(s.data) && s.data[s.pos] != '\n' {
		s.pos++
	}

	line := string(s.data[start:s.pos])
	if s.pos < len(s.data) {
		s.pos++
	}
	s.line++

	return strings.TrimSuffix(line, "\r"), true
}

func (s *projectScanner) readBytes(n int) ([]byte, error) {
	if len(s.data)-s.pos < n {
		return nil, fmt.Errorf("line %d: payload truncated: want %d bytes, have %d",
			s.line, n, len(s.data)-s.pos)
	}

	payload := s.data[s.pos : s.pos+n]
	s.pos += n
	return payload, nil
}

func (s *projectScanner) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: "+format, append([]any{s.line}, args...)...)
}

func (e *Engine) load(data []byte, baseDir string) error {
	e.nodes = make(map[uint32]*NodeInstance)
	e.resources = make(map[uint32]ResourceHandle)
	e.resourceKinds = make(map[string][]uint32)
	e.invalidateOrder()

	s := &projectScanner{data: data}

	for {
		line, ok := s.nextLine()
		if !ok {
			break
		}

		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		fields := strings.Fields(line)

		switch fields[0] {
		case "res":
			if err := e.loadResourceRecord(s, line, fields, baseDir); err != nil {
				return err
			}

		case "node":
			if err := e.loadNodeRecord(s, fields); err != nil {
				return err
			}

		default:
			return s.errf("unexpected record %q", fields[0])
		}
	}

	if _, ok := e.nodes[SinkID]; !ok {
		return fmt.Errorf("project has no node %d (sink)", SinkID)
	}

	return e.validateAcyclic()
}

func (e *Engine) loadResourceRecord(s *projectScanner, line string, fields []string, baseDir string) error {
	if len(fields) < 4 {
		return s.errf("malformed res record %q", line)
	}

	id64, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return s.errf("bad resource id %q: %v", fields[1], err)
	}
	id := uint32(id64)

	if _, dup := e.resources[id]; dup {
		return s.errf("duplicate resource id %d", id)
	}

	kind := fields[2]

	switch fields[3] {
	case "external":
		quoted := strings.TrimSpace(line[strings.Index(line, "external")+len("external"):])
		path, err := strconv.Unquote(quoted)
		if err != nil {
			return s.errf("bad external path %s: %v", quoted, err)
		}

		resolved := path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(baseDir, resolved)
		}

		loader, ok := e.loadersByExt[strings.ToLower(filepath.Ext(resolved))]
		if !ok {
			return s.errf("no resource loader for %q", filepath.Ext(resolved))
		}

		res, err := loader.LoadFile(resolved)
		if err != nil {
			return s.errf("loading external resource %d: %v", id, err)
		}
		if res.Kind() != kind {
			return s.errf("external resource %d is %s, file decodes as %s", id, kind, res.Kind())
		}

		e.insertResource(res, id, path)

	case "internal":
		if len(fields) != 5 {
			return s.errf("malformed internal res record %q", line)
		}

		count, err := strconv.Atoi(fields[4])
		if err != nil || count < 0 {
			return s.errf("bad payload byte count %q", fields[4])
		}

		payload, err := s.readBytes(count)
		if err != nil {
			return err
		}

		ctor, ok := e.resourceCtors[kind]
		if !ok {
			return s.errf("unknown resource kind %q", kind)
		}

		res := ctor()
		if err := res.Load(payload); err != nil {
			return s.errf("decoding resource %d: %v", id, err)
		}

		e.insertResource(res, id, "")

	default:
		return s.errf("unknown storage tag %q", fields[3])
	}

	return nil
}

func (e *Engine) insertResource(res Resource, id uint32, path string) {
	h := newResourceHandle(res, id, path)
	e.resources[id] = h
	kind := res.Kind()
	e.resourceKinds[kind] = append(e.resourceKinds[kind], id)
}

func (e *Engine) loadNodeRecord(s *projectScanner, fields []string) error {
	if len(fields) != 3 {
		return s.errf("malformed node record")
	}

	id64, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return s.errf("bad node id %q: %v", fields[1], err)
	}
	id := uint32(id64)

	if _, dup := e.nodes[id]; dup {
		return s.errf("duplicate node id %d", id)
	}

	ctorName := fields[2]
	ctor, ok := e.ctors[ctorName]
	if !ok {
		return s.errf("unknown node constructor %q", ctorName)
	}

	inst := NewNodeInstance(ctor(), ctorName)
	e.nodes[id] = inst
	e.invalidateOrder()

	inputCounter := 0
	paramCounter := 0

	for {
		line, ok := s.nextLine()
		if !ok || line == "" {
			return nil
		}

		if strings.HasPrefix(line, ";") {
			continue
		}

		body := strings.Fields(line)
		if len(body) == 0 {
			return nil
		}

		switch body[0] {
		case "in":
			if inputCounter >= inst.InputCount() {
				return s.errf("node %d declares %d inputs, file has more", id, inst.InputCount())
			}

			for _, refText := range body[1:] {
				ref, err := parseOutputRef(refText)
				if err != nil {
					return s.errf("node %d input %d: %v", id, inputCounter, err)
				}
				inst.connectInput(inputCounter, ref)
			}
			inputCounter++

		case "tl":
			if inst.tl == nil {
				return s.errf("node %d is not timeline-capable", id)
			}
			if len(body) != 4 {
				return s.errf("malformed tl record %q", line)
			}

			var ticks [3]TlUnit
			for i, text := range body[1:] {
				v, err := strconv.ParseUint(text, 10, 64)
				if err != nil {
					return s.errf("bad tl value %q: %v", text, err)
				}
				ticks[i] = TlUnit(v)
			}

			inst.SetTimelineTransform(TimelineTransform{
				Position:    ticks[0],
				StartOffset: ticks[1],
				EndOffset:   ticks[2],
			})

		case "param":
			if paramCounter >= len(inst.params) {
				return s.errf("node %d declares %d params, file has more", id, len(inst.params))
			}

			value, err := ParseParamValue(strings.TrimPrefix(line, "param "))
			if err != nil {
				return s.errf("node %d: %v", id, err)
			}

			inst.SetParam(paramCounter, value)
			paramCounter++

		case "r":
			if len(body) < 2 || len(body) > 3 {
				return s.errf("malformed r record %q", line)
			}

			if len(body) == 2 {
				// declared but unbound slot
				continue
			}

			resID, err := strconv.ParseUint(body[2], 10, 32)
			if err != nil {
				return s.errf("bad resource id %q: %v", body[2], err)
			}

			if err := e.LinkResource(id, body[1], uint32(resID)); err != nil {
				return s.errf("node %d: %v", id, err)
			}

		case "meta":
			if len(body) < 3 {
				return s.errf("malformed meta record %q", line)
			}

			key := body[1]
			value, err := ParseParamValue(strings.TrimPrefix(line, "meta "+key+" "))
			if err != nil {
				return s.errf("node %d: %v", id, err)
			}

			inst.SetMetadata(key, value)

		default:
			return s.errf("unexpected node body record %q", body[0])
		}
	}
}

func parseOutputRef(text string) (OutputRef, error) {
	node, output, found := strings.Cut(text, ".")
	if !found {
		return OutputRef{}, fmt.Errorf("malformed output ref %q", text)
	}

	nodeID, err := strconv.ParseUint(node, 10, 32)
	if err != nil {
		return OutputRef{}, fmt.Errorf("malformed output ref %q: %w", text, err)
	}

	outputIdx, err := strconv.ParseUint(output, 10, 8)
	if err != nil {
		return OutputRef{}, fmt.Errorf("malformed output ref %q: %w", text, err)
	}

	return OutputRef{Node: uint32(nodeID), Output: uint8(outputIdx)}, nil
}
