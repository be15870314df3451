// Package synth is the application synthesizer: it turns a framework id
// plus user-supplied parameter values and upload files into a persisted
// Application definition in the writable store layer.
package synth

import (
	"log"
	"sync"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/store"
	"github.com/ocilxc/lxc-deployer/internal/validation"
)

// Synthesizer creates applications from frameworks.
type Synthesizer struct {
	store *store.Store

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates a Synthesizer over the given store.
func New(st *store.Store) *Synthesizer {
	return &Synthesizer{
		store:    st,
		inFlight: make(map[string]bool),
	}
}

// Draft is a not-yet-persisted synthesis result. Preview resolution runs
// against a draft before anything is written.
type Draft struct {
	Application *models.Application
	Templates   map[string]*models.Template
	Scripts     map[string]string
}

// CreateApplication synthesizes and persists an application. Concurrent
// synthesis of the same applicationId is rejected with Conflict, as is an
// existing entry in the writable layer unless update is set. Returns the
// applicationId.
func (s *Synthesizer) CreateApplication(req *models.CreateApplicationRequest) (string, error) {
	if err := validation.ValidateApplicationID(req.ApplicationID); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.inFlight[req.ApplicationID] {
		s.mu.Unlock()
		return "", apperr.Conflict("synthesis of %q already in progress", req.ApplicationID)
	}
	s.inFlight[req.ApplicationID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, req.ApplicationID)
		s.mu.Unlock()
	}()

	if !req.Update && s.store.ApplicationExistsLocal(req.ApplicationID) {
		return "", apperr.Conflict("application %q already exists", req.ApplicationID)
	}

	draft, err := s.BuildDraft(req)
	if err != nil {
		return "", err
	}

	if err := s.store.SaveApplication(draft.Application, draft.Templates, draft.Scripts); err != nil {
		return "", err
	}

	log.Printf("[Synth] Created application %q from framework %q", req.ApplicationID, req.FrameworkID)
	return req.ApplicationID, nil
}

// BuildDraft resolves the framework and assembles the application
// definition without persisting anything. Fails with NotFound when the
// framework does not resolve.
func (s *Synthesizer) BuildDraft(req *models.CreateApplicationRequest) (*Draft, error) {
	fw, err := s.store.Framework(req.FrameworkID)
	if err != nil {
		return nil, err
	}

	base, err := s.store.Application(fw.Extends)
	if err != nil {
		return nil, err
	}
	chain, err := s.store.BaseChain(base)
	if err != nil {
		return nil, err
	}

	pol := policyFor(fw.ID)

	valueMap := make(map[string]any, len(req.ParameterValues))
	for _, pv := range req.ParameterValues {
		valueMap[pv.ID] = pv.Value
	}

	promoted := make(map[string]bool)
	for _, ref := range fw.Properties {
		if ref.Default {
			promoted[ref.ID] = true
		}
	}

	// Framework properties with default:true become editable parameters;
	// the supplied value becomes their default.
	var parameters []models.Parameter
	for _, ref := range fw.Properties {
		if !ref.Default {
			continue
		}
		p := models.Parameter{ID: ref.ID, Type: models.TypeString}
		if d := declaredParameter(chain, ref.ID); d != nil {
			p = *d
		}
		if v, ok := valueMap[ref.ID]; ok && !pol.drops(ref.ID) {
			p.Default = v
		}
		parameters = append(parameters, p)
	}

	// Everything else, recognized or not, is retained as a fixed property.
	// Unrecognized ids pass through verbatim so downstream templates that
	// rely on them still see values.
	var properties []models.OutputObject
	for _, pv := range req.ParameterValues {
		if promoted[pv.ID] || pol.drops(pv.ID) {
			continue
		}
		properties = append(properties, models.OutputObject{ID: pv.ID, Value: pv.Value})
	}

	if pol.hostnameFallback {
		if _, ok := valueMap["hostname"]; !ok {
			found := false
			for i := range parameters {
				if parameters[i].ID == "hostname" {
					parameters[i].Default = req.ApplicationID
					found = true
					break
				}
			}
			if !found {
				p := models.Parameter{ID: "hostname", Name: "Hostname", Type: models.TypeString}
				if d := declaredParameter(chain, "hostname"); d != nil {
					p = *d
				}
				p.Default = req.ApplicationID
				parameters = append(parameters, p)
			}
			properties = append(properties, models.OutputObject{ID: "hostname", Value: req.ApplicationID})
		}
	}

	if pol.detectEnvMarkers {
		if v, ok := valueMap["env_file"]; ok {
			if content, isString := v.(string); isString && content != "" && hasMarkers(content) {
				properties = append(properties, models.OutputObject{ID: "env_file_has_markers", Value: true})
			}
		}
	}

	if pol.extractVolumes {
		_, hasVolumes := valueMap["volumes"]
		if v, ok := valueMap["compose_file"]; ok && !hasVolumes {
			if content, isString := v.(string); isString && content != "" {
				if volumes := extractComposeVolumes(content); volumes != "" {
					properties = append(properties, models.OutputObject{ID: "volumes", Value: volumes})
				}
			}
		}
	}

	arts, err := buildUploadArtifacts(req.UploadFiles)
	if err != nil {
		return nil, err
	}

	app := &models.Application{
		ID:          req.ApplicationID,
		Name:        req.Name,
		Description: req.Description,
		Extends:     fw.Extends,
		Tags:        req.Tags,
		StackType:   req.StackType,
		Parameters:  parameters,
		Properties:  properties,
	}
	if len(arts.preStart) > 0 {
		app.Installation = &models.Installation{PreStart: arts.preStart}
	}

	return &Draft{
		Application: app,
		Templates:   arts.templates,
		Scripts:     arts.scripts,
	}, nil
}

// declaredParameter finds the declaration of a parameter id anywhere in
// the base chain, most-derived application first.
func declaredParameter(chain []*models.Application, id string) *models.Parameter {
	for i := len(chain) - 1; i >= 0; i-- {
		if p := chain[i].Parameter(id); p != nil {
			return p
		}
	}
	return nil
}
