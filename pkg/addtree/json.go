package addtree

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

//go:embed schema.json
var schemaJSON []byte

// Sentinel errors for model decoding.
var (
	// ErrSchema indicates the model document does not match the ensemble schema.
	ErrSchema = errors.New("model does not match schema")
	// ErrMalformedTree indicates node ids or child links that do not form a tree.
	ErrMalformedTree = errors.New("malformed tree")
)

type jsonNode struct {
	ID        int      `json:"id"`
	Feature   *int     `json:"feature,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Left      *int     `json:"left,omitempty"`
	Right     *int     `json:"right,omitempty"`
	Value     *float64 `json:"value,omitempty"`
}

type jsonTree struct {
	Nodes []jsonNode `json:"nodes"`
}

type jsonModel struct {
	BaseScore float64    `json:"base_score"`
	Trees     []jsonTree `json:"trees"`
}

// Validate checks a JSON model document against the embedded schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validate model: %w", err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		msgs = append(msgs, re.String())
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
}

// MarshalJSON encodes the ensemble in the forestcheck model format.
func (a *AddTree) MarshalJSON() ([]byte, error) {
	m := jsonModel{BaseScore: a.BaseScore, Trees: make([]jsonTree, len(a.trees))}

	for i, t := range a.trees {
		nodes := make([]jsonNode, len(t.nodes))

		for id, n := range t.nodes {
			jn := jsonNode{ID: id}

			if n.IsLeaf() {
				v := n.Value
				jn.Value = &v
			} else {
				f, th, l, r := n.Split.Feature, n.Split.Threshold, n.Left, n.Right
				jn.Feature, jn.Threshold, jn.Left, jn.Right = &f, &th, &l, &r
			}

			nodes[id] = jn
		}

		m.Trees[i] = jsonTree{Nodes: nodes}
	}

	return json.Marshal(m)
}

// UnmarshalJSON validates and decodes a model document.
func (a *AddTree) UnmarshalJSON(data []byte) error {
	if err := Validate(data); err != nil {
		return err
	}

	var m jsonModel
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}

	trees := make([]*Tree, len(m.Trees))

	for i, jt := range m.Trees {
		t, err := buildTree(jt.Nodes)
		if err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}

		trees[i] = t
	}

	a.trees = trees
	a.BaseScore = m.BaseScore

	return nil
}

func buildTree(jns []jsonNode) (*Tree, error) {
	nodes := make([]Node, len(jns))
	seen := make([]bool, len(jns))

	for i := range nodes {
		nodes[i] = Node{Left: noNode, Right: noNode, Parent: noNode}
	}

	for _, jn := range jns {
		if jn.ID < 0 || jn.ID >= len(jns) || seen[jn.ID] {
			return nil, fmt.Errorf("%w: node id %d not dense or duplicated", ErrMalformedTree, jn.ID)
		}

		seen[jn.ID] = true

		if jn.Value != nil {
			nodes[jn.ID].Value = *jn.Value

			continue
		}

		l, r := *jn.Left, *jn.Right
		if l >= len(jns) || r >= len(jns) || l == r {
			return nil, fmt.Errorf("%w: node %d has invalid children %d, %d", ErrMalformedTree, jn.ID, l, r)
		}

		nodes[jn.ID].Split = domain.Split{Feature: *jn.Feature, Threshold: *jn.Threshold}
		nodes[jn.ID].Left = l
		nodes[jn.ID].Right = r
	}

	for id, n := range nodes {
		if n.IsLeaf() {
			continue
		}

		for _, c := range []int{n.Left, n.Right} {
			if nodes[c].Parent != noNode || c == rootID {
				return nil, fmt.Errorf("%w: node %d has more than one parent", ErrMalformedTree, c)
			}

			nodes[c].Parent = id
		}
	}

	visited, stack := 0, []int{rootID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++

		if !nodes[id].IsLeaf() {
			stack = append(stack, nodes[id].Left, nodes[id].Right)
		}
	}

	if visited != len(nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes reachable from the root", ErrMalformedTree, visited, len(nodes))
	}

	return &Tree{nodes: nodes}, nil
}

// Decode reads a model document from r.
func Decode(r io.Reader) (*AddTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	a := New()
	if err := a.UnmarshalJSON(data); err != nil {
		return nil, err
	}

	return a, nil
}

// Read loads a model file.
func Read(path string) (*AddTree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Write stores the ensemble as indented JSON.
func (a *AddTree) Write(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	return nil
}
