package synth

import (
	"fmt"
	"strings"

	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/validation"
)

// uploadLibraryScript is the shared routine every generated upload script
// calls. It lives in the shared script library of the store.
const uploadLibraryScript = "upload-lib.sh"

// uploadArtifacts is everything synthesized for one application's upload
// files.
type uploadArtifacts struct {
	templates map[string]*models.Template
	scripts   map[string]string
	preStart  []models.TemplateRef
}

// buildUploadArtifacts generates one template and one companion script per
// upload file, preserving input order in the pre_start registrations. A
// certificate-bearing upload gets an index-prefixed template name so its
// location stays predictable.
func buildUploadArtifacts(files []models.UploadFile) (*uploadArtifacts, error) {
	arts := &uploadArtifacts{
		templates: make(map[string]*models.Template),
		scripts:   make(map[string]string),
	}

	for i, f := range files {
		if err := validation.ValidateDestination(f.Destination); err != nil {
			return nil, err
		}

		contentID := ContentParamID(f.Destination)
		destinationID := DestinationParamID(f.Destination)
		uploadedID := UploadedOutputID(f.Destination)

		templateName := UploadTemplateName(f.Destination)
		scriptName := UploadScriptName(f.Destination)
		if f.CertType != "" {
			templateName = fmt.Sprintf("%d-%s", i, templateName)
			scriptName = fmt.Sprintf("%d-%s", i, scriptName)
		}

		contentParam := models.Parameter{
			ID:       contentID,
			Name:     uploadDisplayName(f),
			Type:     models.TypeString,
			Required: f.Required,
			Advanced: f.Advanced,
			Upload:   true,
			CertType: f.CertType,
		}
		if f.Content != "" {
			contentParam.Default = f.Content
		}

		destinationParam := models.Parameter{
			ID:      destinationID,
			Type:    models.TypeString,
			Default: f.Destination,
		}

		tpl := &models.Template{
			Name:             "Upload Files",
			ExecuteOn:        "ve",
			SkipIfAllMissing: []string{contentID},
			Parameters:       []models.Parameter{contentParam, destinationParam},
			Commands: []models.Command{{
				Name:    strings.TrimSuffix(templateName, ".json"),
				Script:  scriptName,
				Library: uploadLibraryScript,
				Outputs: []models.OutputRef{{ID: uploadedID}},
			}},
		}

		arts.templates[templateName] = tpl
		arts.scripts[scriptName] = uploadScriptBody(contentID, destinationID, uploadedID)
		arts.preStart = append(arts.preStart, models.TemplateRef{
			Name: strings.TrimSuffix(templateName, ".json"),
		})
	}

	return arts, nil
}

func uploadDisplayName(f models.UploadFile) string {
	if f.Label != "" {
		return f.Label
	}
	return uploadBaseName(f.Destination)
}

func uploadScriptBody(contentID, destinationID, uploadedID string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("set -e\n\n")
	fmt.Fprintf(&b, "upload_file \"{{ %s }}\" \"{{ %s }}\"\n", contentID, destinationID)
	fmt.Fprintf(&b, "echo \"OUTPUT %s=true\"\n", uploadedID)
	return b.String()
}
