package lbl

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

var graphvizFormats = map[string]graphviz.Format{
	"png": graphviz.PNG,
	"svg": graphviz.SVG,
	"jpg": graphviz.JPG,
}

//DrawGraph builds a bipartite graph: one box per output linked to an ellipse for every
//feature its LUTs look at. The caller closes the graph and the graphviz instance.
func (m *Model) DrawGraph() (*graphviz.Graphviz, *cgraph.Graph, error) {
	graphViz := graphviz.New()
	graph, err := graphViz.Graph()
	if err != nil {
		return nil, nil, errors.Wrap(err, "create graph")
	}

	featureNodes := make(map[int]*cgraph.Node)
	for _, f := range m.Features() {
		node, err := graph.CreateNode(fmt.Sprintf("f%d", f))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "create node of feature %d", f)
		}
		node.Set("label", fmt.Sprintf("%d: %s", f, m.Describe(f)))
		featureNodes[f] = node
	}

	for o := 0; o < m.NOutputs(); o++ {
		outputNode, err := graph.CreateNode(fmt.Sprintf("o%d", o))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "create node of output %d", o)
		}
		outputNode.Set("label", fmt.Sprintf("%s (%d LUTs)", m.OutputName(o), m.NLuts(o)))
		outputNode.Set("shape", "box")

		linked := make(map[int]bool)
		for _, lut := range m.mluts[o] {
			if linked[lut.Feature] {
				continue
			}
			linked[lut.Feature] = true
			if _, err := graph.CreateEdge("", outputNode, featureNodes[lut.Feature]); err != nil {
				return nil, nil, errors.Wrapf(err, "link output %d to feature %d", o, lut.Feature)
			}
		}
	}
	return graphViz, graph, nil
}

//RenderGraph draws the model into fileName; figureType is one of png, svg and jpg.
func (m *Model) RenderGraph(fileName, figureType string) error {
	format, ok := graphvizFormats[strings.ToLower(figureType)]
	if !ok {
		return unknownKind("figure type", figureType)
	}
	graphViz, graph, err := m.DrawGraph()
	if err != nil {
		return err
	}
	defer func() {
		_ = graph.Close()
		_ = graphViz.Close()
	}()
	return errors.Wrapf(graphViz.RenderFilename(graph, format, fileName), "render %s", fileName)
}
