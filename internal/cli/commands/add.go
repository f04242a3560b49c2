package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ministore/objectdb/internal/cliopt"
	"github.com/ministore/objectdb/internal/cliutil"
	"github.com/ministore/objectdb/objectdb"
)

// RunAdd adds one object from --set pairs, or one object per JSON line read
// from stdin (--json) or a file (--import).
func RunAdd(g cliopt.GlobalOptions, argv []string) int {
	fs := newFlagSet("add")
	var typeName, parentRef, importPath string
	var jsonStdin bool
	var sets cliutil.MultiString
	fs.StringVar(&typeName, "type", "", "object type")
	fs.StringVar(&typeName, "t", "", "object type")
	fs.StringVar(&parentRef, "parent", "", "parent object type:id")
	fs.Var(&sets, "set", "set k=v (repeatable)")
	fs.BoolVar(&jsonStdin, "json", false, "read JSON objects, one per line, from stdin")
	fs.StringVar(&importPath, "import", "", "import a JSON lines file")
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if typeName == "" {
		return usage("missing --type")
	}

	var parent *objectdb.ObjectRef
	if parentRef != "" {
		ref, err := cliutil.ParseRef(parentRef)
		if err != nil {
			return usage(err.Error())
		}
		parent = &ref
	}

	ctx := background()
	s, err := cliutil.Open(ctx, g)
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	// single object mode
	if len(sets) > 0 {
		t, err := cliutil.FindType(s.DB, typeName)
		if err != nil {
			return fail(err)
		}
		attrs, err := cliutil.ParseSets(t, sets)
		if err != nil {
			return usage(err.Error())
		}
		obj, err := s.DB.Add(ctx, typeName, parent, attrs)
		if err != nil {
			return fail(err)
		}
		if err := s.Close(); err != nil {
			return fail(err)
		}
		fmt.Fprintf(os.Stdout, "%s:%d\n", obj.Type, obj.ID)
		return 0
	}

	// import/jsonl mode
	var r io.Reader
	switch {
	case importPath != "":
		f, err := os.Open(importPath)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		r = f
	case jsonStdin:
		r = os.Stdin
	default:
		return usage("provide --set, --json or --import")
	}

	batch, err := readJSONLines(r, typeName, parent)
	if err != nil {
		return fail(err)
	}
	n, err := s.DB.Apply(ctx, batch)
	if err != nil {
		return fail(err)
	}
	if err := s.Close(); err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stdout, "added %d\n", n)
	return 0
}

func readJSONLines(r io.Reader, typeName string, parent *objectdb.ObjectRef) (*objectdb.Batch, error) {
	batch := objectdb.NewBatch()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var attrs objectdb.Attrs
		if err := dec.Decode(&attrs); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := batch.Add(typeName, parent, attrs); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}
