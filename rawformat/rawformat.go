// Copyright © 2024 The ELPS authors

// Package rawformat compiles declarative test documents.  A document is YAML
// (and therefore also JSON) of the form
//
//	fixtures:
//	  - name: Fixture1
//	    pageUrl: example.org
//	    tests:
//	      - name: Fixture1Test1
//	        commands:
//	          - {type: click, selector: "#submit"}
//
// Each compiled test issues its commands to the test run in order and stops
// at the first command that fails.
package rawformat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/luthersystems/e2ec/diagnostic"
	"github.com/luthersystems/e2ec/suite"
)

// DefaultExtensions are the file extensions compiled as raw documents.
var DefaultExtensions = []string{".e2e"}

type document struct {
	Fixtures []fixtureDoc `yaml:"fixtures"`
}

type fixtureDoc struct {
	Name    interface{} `yaml:"name"`
	PageURL interface{} `yaml:"pageUrl"`
	Tests   []testDoc   `yaml:"tests"`
}

type testDoc struct {
	Name     interface{}              `yaml:"name"`
	Commands []map[string]interface{} `yaml:"commands"`
}

// Parse compiles the raw document src read from path.
func Parse(path string, src []byte) ([]*suite.Test, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(src))
	err := dec.Decode(&root)
	if errors.Is(err, io.EOF) {
		return nil, shapeError(path, "the document is empty")
	}
	if err != nil {
		return nil, diagnostic.RawFormatParse(path, diagnostic.ClassSyntax, err.Error(), err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, shapeError(path, "the document must be a mapping with a fixtures list")
	}
	var doc document
	if err := root.Decode(&doc); err != nil {
		return nil, diagnostic.RawFormatParse(path, diagnostic.ClassError, err.Error(), err)
	}

	var tests []*suite.Test
	for i, fd := range doc.Fixtures {
		name, ok := fd.Name.(string)
		if !ok {
			return nil, shapeError(path, fmt.Sprintf("fixtures[%d]: the fixture name is expected to be a string", i))
		}
		fixture := suite.NewFixture(name, path)
		if fd.PageURL != nil {
			url, ok := fd.PageURL.(string)
			if !ok {
				return nil, shapeError(path, fmt.Sprintf("fixtures[%d]: the page URL is expected to be a string", i))
			}
			fixture.SetPage(url)
		}
		for j, td := range fd.Tests {
			name, ok := td.Name.(string)
			if !ok {
				return nil, shapeError(path, fmt.Sprintf("fixtures[%d].tests[%d]: the test name is expected to be a string", i, j))
			}
			commands := make([]suite.Command, len(td.Commands))
			for k, c := range td.Commands {
				commands[k] = suite.Command(c)
			}
			tests = append(tests, &suite.Test{
				Name:    name,
				Fixture: fixture,
				Fn:      sequence(commands),
			})
		}
	}
	return tests, nil
}

func shapeError(path, msg string) error {
	return diagnostic.RawFormatParse(path, diagnostic.ClassError, msg, nil)
}

// sequence returns a test function issuing commands one at a time.
func sequence(commands []suite.Command) suite.TestFunc {
	return func(ctx context.Context, run suite.TestRun) (interface{}, error) {
		for _, cmd := range commands {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := run.ExecuteCommand(ctx, cmd); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
}
