// Package persist reads and writes the world snapshot: one UTF-8 text file,
// one entity per line, depth-first pre-order with leading tabs encoding the
// parent/child forest.
//
//	<tabs*depth><uid>|"<source>"|px,py,pz|rx,ry,rz|sx,sy,sz|<size>|<json-properties>
package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/worldstream/engine/internal/world"
	"go.uber.org/zap"
)

// tailFields is the number of pipe-separated fields after the quoted source:
// position, rotation, scale, size, properties.
const tailFields = 5

// Save writes the store as an indented forest. The file is written to a temp
// path and renamed over the target, so a failed save leaves the previous
// snapshot intact. Records unreachable from any root (a corrupted parent
// cycle) cannot be placed in the tree; they are skipped with a warning.
func Save(path string, store *world.Store, log *zap.Logger) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", tmp, err)
	}

	written := 0
	w := bufio.NewWriter(f)
	writeErr := func() error {
		for _, root := range store.Roots() {
			n, err := writeTree(w, store, root, 0)
			written += n
			if err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot %s: %w", path, writeErr)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}
	if written != store.Len() {
		log.Warn("snapshot omitted unreachable entities",
			zap.String("path", path),
			zap.Int("written", written),
			zap.Int("stored", store.Len()))
	}
	return nil
}

func writeTree(w *bufio.Writer, store *world.Store, uid string, depth int) (int, error) {
	e := store.Get(uid)
	if e == nil {
		return 0, nil
	}
	line, err := formatLine(e, depth)
	if err != nil {
		return 0, err
	}
	if _, err := w.WriteString(line); err != nil {
		return 0, err
	}
	if err := w.WriteByte('\n'); err != nil {
		return 0, err
	}
	written := 1
	for _, child := range store.Children(uid) {
		n, err := writeTree(w, store, child, depth+1)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func formatLine(e *world.Entity, depth int) (string, error) {
	props := e.Properties
	if props == nil {
		props = map[string]any{}
	}
	propJSON, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encode properties of %s: %w", e.UID, err)
	}

	var b strings.Builder
	for i := 0; i < depth; i++ {
		b.WriteByte('\t')
	}
	b.WriteString(e.UID)
	b.WriteByte('|')
	b.WriteString(strconv.Quote(e.Source))
	b.WriteByte('|')
	b.WriteString(formatVec(e.Position))
	b.WriteByte('|')
	b.WriteString(formatVec(e.Rotation))
	b.WriteByte('|')
	b.WriteString(formatVec(e.Scale))
	b.WriteByte('|')
	b.WriteString(formatFloat(e.Size))
	b.WriteByte('|')
	b.Write(propJSON)
	return b.String(), nil
}

func formatVec(v world.Vec3) string {
	return formatFloat(v.X) + "," + formatFloat(v.Y) + "," + formatFloat(v.Z)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Load parses a snapshot into a fresh slice of records, reconstructing
// parent UIDs from indentation. Malformed lines are logged and skipped, not
// fatal. An I/O error returns without touching any caller state.
func Load(path string, log *zap.Logger) ([]*world.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	type frame struct {
		uid   string
		depth int
	}
	var (
		entities []*world.Entity
		stack    []frame
		lineNo   int
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		depth := 0
		for depth < len(line) && line[depth] == '\t' {
			depth++
		}

		e, err := parseLine(line[depth:])
		if err != nil {
			log.Warn("skipping malformed snapshot line",
				zap.String("path", path),
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}

		// Parent is the nearest shallower preceding line.
		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			e.ParentUID = stack[len(stack)-1].uid
		}
		stack = append(stack, frame{uid: e.UID, depth: depth})
		entities = append(entities, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return entities, nil
}

func parseLine(rest string) (*world.Entity, error) {
	uid, after, found := strings.Cut(rest, "|")
	if !found {
		return nil, fmt.Errorf("no field delimiters")
	}
	if uid == "" {
		return nil, fmt.Errorf("empty uid")
	}

	// The quoted source may itself contain pipes, so it is consumed
	// quote-aware before the remaining fields are split.
	quoted, err := strconv.QuotedPrefix(after)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	source, err := strconv.Unquote(quoted)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", quoted, err)
	}
	after = after[len(quoted):]
	if !strings.HasPrefix(after, "|") {
		return nil, fmt.Errorf("missing delimiter after source")
	}

	fields := strings.SplitN(after[1:], "|", tailFields)
	if len(fields) != tailFields {
		return nil, fmt.Errorf("expected %d fields after source, got %d", tailFields, len(fields))
	}
	pos, err := parseVec(fields[0])
	if err != nil {
		return nil, fmt.Errorf("position: %w", err)
	}
	rot, err := parseVec(fields[1])
	if err != nil {
		return nil, fmt.Errorf("rotation: %w", err)
	}
	scale, err := parseVec(fields[2])
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	size, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}

	props := map[string]any{}
	if raw := strings.TrimSpace(fields[4]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			return nil, fmt.Errorf("properties: %w", err)
		}
	}

	return &world.Entity{
		UID:        fields[0],
		Source:     source,
		Position:   pos,
		Rotation:   rot,
		Scale:      scale,
		Size:       size,
		Properties: props,
	}, nil
}

func parseVec(s string) (world.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return world.Vec3{}, fmt.Errorf("expected 3 components, got %d", len(parts))
	}
	var out [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return world.Vec3{}, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = f
	}
	return world.Vec3{X: out[0], Y: out[1], Z: out[2]}, nil
}
