// Package graph builds the ordered template trace for an application task
// and resolves every referenced parameter to exactly one source.
package graph

import (
	"context"

	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/store"
)

// Discovery resolves dynamic enum values against the target context. A
// refresh forces the underlying probe to bypass its cache.
type Discovery interface {
	Discover(ctx context.Context, kind string, refresh bool) ([]string, error)
}

// Builder expands installation categories, splices addons, applies skip
// conditions, and resolves parameters.
type Builder struct {
	store     *store.Store
	discovery Discovery
}

// NewBuilder creates a Builder. discovery may be nil when dynamic enums
// are not needed (tests, previews without enum parameters).
func NewBuilder(st *store.Store, discovery Discovery) *Builder {
	return &Builder{store: st, discovery: discovery}
}

// Request carries everything one resolution pass needs. App may be a
// persisted application or an in-memory draft; DraftTemplates supplies
// not-yet-persisted templates for drafts.
type Request struct {
	App            *models.Application
	Task           string
	Context        ResolveContext
	Values         []models.ParameterValue
	UploadFiles    []models.UploadFile
	Addons         []string
	DraftTemplates map[string]*models.Template
	Flat           bool
}

// Step is one surviving template of the ordered trace.
type Step struct {
	Trace    models.TemplateTraceEntry
	Template *models.Template
}

// Result is the output of one resolution pass.
type Result struct {
	Steps          []Step
	TemplateTrace  []models.TemplateTraceEntry
	ParameterTrace []models.ParameterTraceEntry
	Parameters     []models.Parameter
	Unresolved     []models.Parameter
	Effective      map[string]any
	// MissingRequired lists required parameters that resolved to no usable
	// value; installs must refuse to start while this is non-empty.
	MissingRequired []string
}

// expand flattens the task's categories across the extends chain and
// splices compatible addon references at their declared anchors.
func (b *Builder) expand(req *Request) ([]models.TemplateRef, error) {
	chain, err := b.store.BaseChain(req.App)
	if err != nil {
		return nil, err
	}

	categories := make(map[string][]placedRef)
	for _, name := range models.CategoryNames {
		for _, app := range chain {
			for _, ref := range app.Task(req.Task).Category(name) {
				categories[name] = append(categories[name], placedRef{ref: ref})
			}
		}
	}

	for _, id := range req.Addons {
		addon, err := b.store.Addon(id)
		if err != nil {
			return nil, err
		}
		if !addon.CompatibleWith(req.App) {
			continue
		}
		categories["pre_start"] = splice(categories["pre_start"], addon.PreStart)
		categories["post_start"] = splice(categories["post_start"], addon.PostStart)
	}

	var ordered []models.TemplateRef
	for _, name := range models.CategoryNames {
		for _, p := range categories[name] {
			ordered = append(ordered, p.ref)
		}
	}
	return ordered, nil
}

// placedRef remembers the anchor an entry was spliced behind so ties
// between addons resolve stably in declaration order.
type placedRef struct {
	ref         models.TemplateRef
	afterAnchor string
}

func splice(seq []placedRef, entries []models.TemplateRef) []placedRef {
	for _, e := range entries {
		switch {
		case e.Before != "":
			if i := indexOfRef(seq, e.Before); i >= 0 {
				seq = insertAt(seq, i, placedRef{ref: e})
				continue
			}
			seq = append(seq, placedRef{ref: e})
		case e.After != "":
			if i := indexOfRef(seq, e.After); i >= 0 {
				// Skip past entries already spliced behind the same anchor
				// so earlier declarations stay first.
				pos := i + 1
				for pos < len(seq) && seq[pos].afterAnchor == e.After {
					pos++
				}
				seq = insertAt(seq, pos, placedRef{ref: e, afterAnchor: e.After})
				continue
			}
			seq = append(seq, placedRef{ref: e, afterAnchor: e.After})
		default:
			seq = append(seq, placedRef{ref: e})
		}
	}
	return seq
}

func indexOfRef(seq []placedRef, name string) int {
	for i, p := range seq {
		if p.ref.Name == name {
			return i
		}
	}
	return -1
}

func insertAt(seq []placedRef, i int, p placedRef) []placedRef {
	seq = append(seq, placedRef{})
	copy(seq[i+1:], seq[i:])
	seq[i] = p
	return seq
}

// loadTemplate resolves a template, preferring draft templates supplied
// with the request.
func (b *Builder) loadTemplate(req *Request, name string) (*store.ResolvedTemplate, error) {
	if tpl, ok := req.DraftTemplates[name]; ok {
		return &store.ResolvedTemplate{
			Template: tpl,
			Origin:   models.OriginApplicationLocal,
		}, nil
	}
	if tpl, ok := req.DraftTemplates[name+".json"]; ok {
		return &store.ResolvedTemplate{
			Template: tpl,
			Origin:   models.OriginApplicationLocal,
		}, nil
	}
	return b.store.Template(req.App.ID, name)
}
