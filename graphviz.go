// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ambuild2

import (
	"fmt"
	"io"
)

// WriteDot renders the whole graph as Graphviz dot, adapted from the
// teacher's GraphViz (graphviz.go): same rankdir=LR / boxed-node layout,
// generalized from ninja's single in-edge-per-node shape to ambuild2's
// three edge relations, each given a distinct line style so `dot -Tpng`
// output reads the same way QueryGraph's tree view does.
func WriteDot(w io.Writer, store *Store) error {
	fmt.Fprintln(w, "digraph ambuild2 {")
	fmt.Fprintln(w, `rankdir="LR"`)
	fmt.Fprintln(w, "node [fontsize=10, shape=box, height=0.25]")
	fmt.Fprintln(w, "edge [fontsize=10]")

	nodes, err := store.QueryAllNodes()
	if err != nil {
		return err
	}

	for _, node := range nodes {
		fmt.Fprintf(w, "%q [label=%q%s]\n", nodeID(node), EncodeJSONString(node.Format()), shapeFor(node))
	}

	for _, node := range nodes {
		if err := writeEdgesFor(w, store, node); err != nil {
			return err
		}
	}

	fmt.Fprintln(w, "}")
	return nil
}

func writeEdgesFor(w io.Writer, store *Store, node *Entry) error {
	strong, err := store.QueryStrongInputs(node)
	if err != nil {
		return err
	}
	for _, in := range strong {
		fmt.Fprintf(w, "%q -> %q\n", nodeID(in), nodeID(node))
	}
	weak, err := store.QueryWeakInputs(node)
	if err != nil {
		return err
	}
	for _, in := range weak {
		fmt.Fprintf(w, "%q -> %q [style=dotted]\n", nodeID(in), nodeID(node))
	}
	dyn, err := store.QueryDynamicInputs(node)
	if err != nil {
		return err
	}
	for _, in := range dyn {
		fmt.Fprintf(w, "%q -> %q [style=dashed, color=blue]\n", nodeID(in), nodeID(node))
	}
	return nil
}

func nodeID(e *Entry) string {
	return fmt.Sprintf("n%d", e.ID)
}

func shapeFor(e *Entry) string {
	switch e.Type {
	case Group:
		return ", shape=ellipse"
	case Mkdir:
		return ", shape=folder"
	default:
		if e.Command() {
			return ", shape=ellipse, style=filled, fillcolor=lightgrey"
		}
		return ""
	}
}
