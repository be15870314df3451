package graph

import (
	"context"
	"sort"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/store"
	"github.com/ocilxc/lxc-deployer/internal/synth"
)

// outputSrc remembers which template produces a value and any declared
// default.
type outputSrc struct {
	template string
	value    any
}

// Resolve builds the ordered template trace for the request's task and
// resolves every referenced parameter to exactly one source.
func (b *Builder) Resolve(ctx context.Context, req *Request) (*Result, error) {
	refs, err := b.expand(req)
	if err != nil {
		return nil, err
	}

	chain, err := b.store.BaseChain(req.App)
	if err != nil {
		return nil, err
	}

	userValues := make(map[string]any)
	for _, pv := range req.Values {
		userValues[pv.ID] = pv.Value
	}
	for _, f := range req.UploadFiles {
		if f.Content != "" {
			userValues[synth.ContentParamID(f.Destination)] = f.Content
		}
		userValues[synth.DestinationParamID(f.Destination)] = f.Destination
	}

	// Fixed properties across the chain; derived entries shadow base ones.
	props := make(map[string]any)
	for _, app := range chain {
		for _, p := range app.Properties {
			props[p.ID] = p.Value
		}
	}

	loaded := make([]*templateEntry, 0, len(refs))
	for _, ref := range refs {
		res, err := b.loadTemplate(req, ref.Name)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, &templateEntry{name: ref.Name, res: res})
	}

	// Every output id mapped to the template positions declaring it, for
	// detecting references to outputs that are only produced later.
	outputPositions := make(map[string][]int)
	for pos, lt := range loaded {
		for _, c := range lt.res.Template.Commands {
			for _, o := range c.Outputs {
				outputPositions[o.ID] = append(outputPositions[o.ID], pos)
			}
		}
	}

	st := &resolveState{
		req:          req,
		result:       &Result{Effective: make(map[string]any)},
		userValues:   userValues,
		props:        props,
		outputsAvail: make(map[string]outputSrc),
		cmdProps:     make(map[string]outputSrc),
		traceSeen:    make(map[string]bool),
	}

	// Application-level parameters form a virtual leading group; derived
	// declarations shadow base ones.
	appParams := mergedChainParameters(chain)
	if err := st.processGroup(ctx, b, "General", appParams, -1, outputPositions); err != nil {
		return nil, err
	}

	for pos, lt := range loaded {
		tpl := lt.res.Template
		entry := models.TemplateTraceEntry{
			Name:        lt.name,
			Path:        lt.res.Path,
			Origin:      lt.res.Origin,
			IsShared:    lt.res.IsShared,
			Conditional: len(tpl.SkipIfAllMissing) > 0 || tpl.SkipIfPropertySet != "",
		}

		if st.shouldSkip(tpl) {
			entry.Skipped = true
			st.result.TemplateTrace = append(st.result.TemplateTrace, entry)
			continue
		}

		st.result.TemplateTrace = append(st.result.TemplateTrace, entry)
		st.result.Steps = append(st.result.Steps, Step{Trace: entry, Template: tpl})

		groupName := tpl.Name
		if groupName == "" {
			groupName = "General"
		}
		if err := st.processGroup(ctx, b, groupName, tpl.Parameters, pos, outputPositions); err != nil {
			return nil, err
		}

		// Outputs and command properties become available to everything
		// after this template.
		for _, c := range tpl.Commands {
			for _, o := range c.Outputs {
				st.outputsAvail[o.ID] = outputSrc{template: lt.name, value: o.Default}
			}
			for _, po := range c.Properties {
				st.cmdProps[po.ID] = outputSrc{template: lt.name, value: po.Value}
			}
		}
	}

	return st.result, nil
}

type templateEntry struct {
	name string
	res  *store.ResolvedTemplate
}

type resolveState struct {
	req          *Request
	result       *Result
	userValues   map[string]any
	props        map[string]any
	outputsAvail map[string]outputSrc
	cmdProps     map[string]outputSrc
	traceSeen    map[string]bool
}

// resolveOne applies the source priority chain: user input, earlier
// template output, fixed property, declared default, missing.
func (st *resolveState) resolveOne(id string, def any) models.ParameterTraceEntry {
	if v, ok := st.userValues[id]; ok {
		return models.ParameterTraceEntry{ID: id, Value: v, Source: models.SourceUserInput}
	}
	if o, ok := st.outputsAvail[id]; ok {
		return models.ParameterTraceEntry{
			ID: id, Value: o.value,
			Source:         models.SourceTemplateOutput,
			SourceTemplate: o.template,
			SourceKind:     models.KindOutputs,
		}
	}
	if v, ok := st.props[id]; ok {
		return models.ParameterTraceEntry{ID: id, Value: v, Source: models.SourceTemplateProperties, SourceKind: models.KindProperties}
	}
	if o, ok := st.cmdProps[id]; ok {
		return models.ParameterTraceEntry{
			ID: id, Value: o.value,
			Source:         models.SourceTemplateProperties,
			SourceTemplate: o.template,
			SourceKind:     models.KindProperties,
		}
	}
	if def != nil {
		return models.ParameterTraceEntry{ID: id, Value: def, Source: models.SourceDefault}
	}
	return models.ParameterTraceEntry{ID: id, Source: models.SourceMissing}
}

func (st *resolveState) record(e models.ParameterTraceEntry) {
	if st.traceSeen[e.ID] {
		return
	}
	st.traceSeen[e.ID] = true
	st.result.ParameterTrace = append(st.result.ParameterTrace, e)
	if e.Value != nil {
		st.result.Effective[e.ID] = e.Value
	}
}

// condValue looks a flag up across everything resolution knows so far.
func (st *resolveState) condValue(id string) any {
	if v, ok := st.result.Effective[id]; ok {
		return v
	}
	if v, ok := st.props[id]; ok {
		return v
	}
	if o, ok := st.outputsAvail[id]; ok {
		return o.value
	}
	return nil
}

// shouldSkip applies the template's skip conditions against the current
// resolution state.
func (st *resolveState) shouldSkip(tpl *models.Template) bool {
	if len(tpl.SkipIfAllMissing) > 0 {
		allMissing := true
		for _, id := range tpl.SkipIfAllMissing {
			if st.resolveOne(id, declaredDefault(tpl, id)).Source != models.SourceMissing {
				allMissing = false
				break
			}
		}
		if allMissing {
			return true
		}
	}
	if tpl.SkipIfPropertySet != "" {
		if _, ok := st.props[tpl.SkipIfPropertySet]; ok {
			return true
		}
	}
	return false
}

func (st *resolveState) processGroup(ctx context.Context, b *Builder, groupName string, params []models.Parameter, pos int, outputPositions map[string][]int) error {
	var group []models.Parameter
	for _, p := range params {
		e := st.resolveOne(p.ID, p.Default)

		// A template consuming an output that only a later template
		// produces is a defect in the graph, not user input.
		if e.Source == models.SourceMissing && pos >= 0 {
			if positions, ok := outputPositions[p.ID]; ok && allLater(positions, pos) {
				return apperr.Configuration(
					"template %q references output %q that no earlier template declares", groupName, p.ID)
			}
		}
		st.record(e)

		out := p
		if out.TemplateName == "" {
			out.TemplateName = groupName
		}
		applyOverrides(&out, st.req.App, st.req.Context)

		if out.Type == models.TypeEnum && out.EnumValues == nil && b.discovery != nil {
			values, err := b.discovery.Discover(ctx, out.ID, false)
			if err != nil {
				values, err = b.discovery.Discover(ctx, out.ID, true)
			}
			if err == nil {
				out.EnumValues = values
			}
			// A discovered empty list hides the field; an undefined list
			// (discovery failed or unknown kind) keeps it visible so the
			// caller can flag the error.
			if out.EnumValues != nil && len(out.EnumValues) == 0 {
				continue
			}
		}

		if !Eval(ParseCondition(out.If), st.condValue) {
			continue
		}
		if st.req.Flat {
			out.Advanced = false
		}

		if out.Required && e.Source == models.SourceMissing {
			st.result.MissingRequired = append(st.result.MissingRequired, out.ID)
		}

		if e.Source == models.SourceMissing ||
			(e.Source == models.SourceDefault && st.props[out.ID] == nil) {
			st.result.Unresolved = append(st.result.Unresolved, out)
		}

		group = append(group, out)
	}

	// Required parameters sort before optional ones, stable otherwise.
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].Required && !group[j].Required
	})
	st.result.Parameters = append(st.result.Parameters, group...)
	return nil
}

func declaredDefault(tpl *models.Template, id string) any {
	for _, p := range tpl.Parameters {
		if p.ID == id {
			return p.Default
		}
	}
	return nil
}

func allLater(positions []int, pos int) bool {
	for _, p := range positions {
		if p <= pos {
			return false
		}
	}
	return true
}

func mergedChainParameters(chain []*models.Application) []models.Parameter {
	index := make(map[string]int)
	var merged []models.Parameter
	for _, app := range chain {
		for _, p := range app.Parameters {
			if i, ok := index[p.ID]; ok {
				merged[i] = p
				continue
			}
			index[p.ID] = len(merged)
			merged = append(merged, p)
		}
	}
	return merged
}
